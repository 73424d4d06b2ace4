package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cyp0633/davcal/internal/credentials"
)

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// authentication to outgoing requests, resolving the credential per request.
type BasicAuthTransport struct {
	Credentials credentials.Provider
	Transport   http.RoundTripper
	Logger      *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport with the given
// provider and optional underlying transport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(provider credentials.Provider, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Credentials: provider,
		Transport:   transport,
		Logger:      logger,
	}
}

// RoundTrip implements the http.RoundTripper interface. It adds Basic Auth
// credentials to a clone of the request and delegates to the underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Credentials == nil {
		return nil, errors.New("credential provider cannot be nil")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	// Log request details
	reqBody := ""
	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		reqBody = string(bodyBytes)
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}
	t.Logger.Debug("outgoing request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", redact(req.Header),
		"body", reqBody)

	cred, err := t.Credentials.Credential(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials: %w", err)
	}
	if cred.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if cred.Secret == "" {
		return nil, errors.New("basic auth password cannot be empty")
	}

	authed := req.Clone(req.Context())
	authed.SetBasicAuth(cred.Username, cred.Secret)
	resp, err := t.Transport.RoundTrip(authed)

	if err == nil && resp != nil {
		// Log response details
		respBody := ""
		if resp.Body != nil {
			bodyBytes, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			respBody = string(bodyBytes)
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		t.Logger.Debug("incoming response",
			"status", resp.Status,
			"headers", resp.Header,
			"body", respBody)
	}

	return resp, err
}

func redact(h http.Header) http.Header {
	out := h.Clone()
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "[REDACTED]")
	}
	return out
}
