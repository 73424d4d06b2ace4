package davclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davcal/internal/davtest"
	"github.com/cyp0633/davcal/internal/httpclient"
)

// mockTransport records requests and answers them with handler.
type mockTransport struct {
	mu      sync.Mutex
	calls   []*Request
	handler func(*Request) (*Response, error)
}

func (m *mockTransport) Do(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.handler == nil {
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	return m.handler(req)
}

func (m *mockTransport) Calls() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.calls...)
}

// mockResolver implements DNSResolver for testing
type mockResolver struct {
	srvRecords map[string][]*net.SRV
	txtRecords map[string][]string
}

func (m *mockResolver) LookupSRV(_ context.Context, _, _, name string) (string, []*net.SRV, error) {
	if records, ok := m.srvRecords[name]; ok {
		return "", records, nil
	}
	return "", nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (m *mockResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if records, ok := m.txtRecords[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func respond(status int, body string) *Response {
	return &Response{StatusCode: status, Header: http.Header{}, Body: []byte(body)}
}

// multistatusOf wraps calendar objects, keyed by href, in a calendar-query reply.
func multistatusOf(objects map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` +
		`<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">`)
	for href, data := range objects {
		fmt.Fprintf(&b, `<D:response><D:href>%s</D:href><D:propstat><D:prop>`+
			`<D:getetag>"1"</D:getetag><C:calendar-data><![CDATA[%s]]></C:calendar-data>`+
			`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`, href, data)
	}
	b.WriteString(`</D:multistatus>`)
	return b.String()
}

func eventICS(uid, summary string, start, end time.Time) string {
	return "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//Example Corp.//CalDAV Server//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:" + uid + "\r\n" +
		"DTSTAMP:20260301T080000Z\r\n" +
		"DTSTART:" + start.UTC().Format("20060102T150405Z") + "\r\n" +
		"DTEND:" + end.UTC().Format("20060102T150405Z") + "\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 5, hour, minute, 0, 0, time.UTC)
}

// withCalendars returns a client over t whose discovery is already done.
func withCalendars(t *testing.T, transport Transport, cals []CalendarRef, opts ...Option) *Client {
	t.Helper()
	c, err := New(transport, "https://caldav.example.com/", opts...)
	require.NoError(t, err)
	c.session = &Session{
		PrincipalURL: "https://caldav.example.com/principals/jane/",
		HomeSetURL:   "https://caldav.example.com/calendars/jane/",
		Calendars:    cals,
	}
	return c
}

var fixedNow = time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)

// newServerClient starts a davtest server with a Work and a Personal calendar.
func newServerClient(t *testing.T, opts ...Option) (*Client, *davtest.Server) {
	t.Helper()
	srv := davtest.New(nil)
	t.Cleanup(srv.Close)
	srv.AddCalendar("work", "Work")
	srv.AddCalendar("personal", "Personal")

	hc, err := httpclient.New(srv.Client(), srv.URL, nil)
	require.NoError(t, err)
	base := []Option{
		WithResolver(nil),
		WithClock(func() time.Time { return fixedNow }),
	}
	c, err := New(hc, srv.URL, append(base, opts...)...)
	require.NoError(t, err)
	return c, srv
}
