// Package davclient is a CalDAV session: calendar discovery, event CRUD,
// free/busy lookups and RFC 8607 managed attachments.
package davclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/davcal/internal/httpclient"
	"github.com/cyp0633/davcal/internal/xml"
)

type (
	// Transport executes one request; see httpclient.Doer.
	Transport = httpclient.Doer
	Request   = httpclient.Request
	Response  = httpclient.Response
	// TimeRange is a UTC interval, start inclusive and end exclusive.
	TimeRange = xml.TimeRange
)

// Client is one CalDAV session. Discovery runs once and is cached; nothing
// else is kept between calls.
type Client struct {
	http     Transport
	server   *url.URL
	logger   *slog.Logger
	policy   AttachmentPolicy
	fallback map[int]bool
	parallel int
	now      func() time.Time
	newUID   func() string
	resolver DNSResolver

	mu      sync.Mutex
	session *Session
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; nil discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAttachmentPolicy replaces DefaultAttachmentPolicy.
func WithAttachmentPolicy(p AttachmentPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithFreeBusyFallback sets the free-busy-query statuses answered by
// deriving busy time from events instead of failing.
func WithFreeBusyFallback(statuses ...int) Option {
	return func(c *Client) {
		c.fallback = make(map[int]bool, len(statuses))
		for _, s := range statuses {
			c.fallback[s] = true
		}
	}
}

// WithParallelQueries bounds concurrent per-calendar REPORTs. 1 (the
// default) queries calendars one after another.
func WithParallelQueries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallel = n
		}
	}
}

// WithClock overrides time.Now, used for DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithUIDGenerator overrides the UID assigned to created events.
func WithUIDGenerator(gen func() string) Option {
	return func(c *Client) { c.newUID = gen }
}

// WithResolver sets the resolver used for DNS SRV discovery. Nil disables SRV lookups.
func WithResolver(r DNSResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// New creates a client for serverURL. Requests go through t, which is
// expected to resolve paths against the same URL and to authenticate.
func New(t Transport, serverURL string, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidArgument)
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid server URL %q", ErrInvalidArgument, serverURL)
	}

	c := &Client{
		http:     t,
		server:   u,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy:   DefaultAttachmentPolicy(),
		parallel: 1,
		now:      time.Now,
		newUID:   func() string { return strings.ToUpper(uuid.NewString()) },
		resolver: &net.Resolver{},
	}
	WithFreeBusyFallback(DefaultFallbackStatuses...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do executes r and logs failures at debug level.
func (c *Client) do(ctx context.Context, r *Request) (*Response, error) {
	resp, err := c.http.Do(ctx, r)
	if err != nil {
		c.logger.Debug("request failed", "method", r.Method, "path", r.Path, "error", err)
		return nil, err
	}
	return resp, nil
}

// resolve turns href into an absolute URL string relative to the URL that
// answered resp, or to requested when the transport did not report one.
func resolve(resp *Response, requested, href string) string {
	base := resp.URL
	if base == nil {
		var err error
		if base, err = url.Parse(requested); err != nil {
			return href
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
