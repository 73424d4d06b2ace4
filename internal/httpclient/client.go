// Package httpclient executes DAV requests against a base URL.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// maxResponseBytes bounds how much of a response body is read.
var maxResponseBytes int64 = 32 << 20

// ErrResponseTooLarge is returned for bodies over the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// Request is a method, a path (absolute or relative to the base URL), headers and a body.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response carries the status, headers and the fully read body. URL is the
// final URL after redirects; relative hrefs in the body resolve against it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer executes one request and returns the complete response. Non-2xx
// statuses are not errors at this level.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client is the net/http Doer.
type Client struct {
	client  *http.Client
	baseURL *url.URL
	logger  *slog.Logger
}

// New creates a client resolving request paths against baseURL.
func New(client *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{client: client, baseURL: u, logger: logger}, nil
}

// BaseURL returns a copy of the base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ResolveURL resolves a URL string against the base URL
func (c *Client) ResolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// Do executes the request.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	c.logger.Debug("starting "+r.Method+" request",
		"path", r.Path,
		"body_length", len(r.Body))

	resolvedURL, err := c.ResolveURL(r.Path)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", r.Path, "error", err)
		return nil, err
	}
	c.logger.Debug("resolved URL", "url", resolvedURL.String())

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, resolvedURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("received response", "status", resp.Status)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > maxResponseBytes {
		return nil, fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, r.Method, resolvedURL, maxResponseBytes)
	}

	finalURL := resolvedURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	c.logger.Debug(r.Method+" request complete",
		"status_code", resp.StatusCode,
		"response_length", len(data))
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        finalURL,
	}, nil
}
