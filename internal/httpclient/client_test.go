package httpclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davcal/internal/credentials"
)

func TestClientDo(t *testing.T) {
	var gotMethod, gotPath, gotDepth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotDepth = r.Header.Get("Depth")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte("<multistatus/>"))
	}))
	defer server.Close()

	c, err := New(server.Client(), server.URL+"/dav/", nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), NewReport("calendars/work/", 1, []byte("<query/>")))
	require.NoError(t, err)

	assert.Equal(t, MethodReport, gotMethod)
	assert.Equal(t, "/dav/calendars/work/", gotPath)
	assert.Equal(t, "1", gotDepth)
	assert.Equal(t, "<query/>", gotBody)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.True(t, resp.Success())
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	assert.Equal(t, "<multistatus/>", string(resp.Body))
	assert.Equal(t, "/dav/calendars/work/", resp.URL.Path)
}

func TestClientDoResponseLimit(t *testing.T) {
	defer func(n int64) { maxResponseBytes = n }(maxResponseBytes)
	maxResponseBytes = 8

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/large" {
			w.Write([]byte("123456789"))
			return
		}
		w.Write([]byte("12345678"))
	}))
	defer server.Close()
	c, err := New(server.Client(), server.URL+"/", nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), NewGet("small"))
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(resp.Body))

	_, err = c.Do(context.Background(), NewGet("large"))
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClientDoFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/caldav", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/principals/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/principals/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := New(server.Client(), server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), NewGet("/.well-known/caldav"))
	require.NoError(t, err)
	assert.False(t, resp.Success())
	assert.Equal(t, "/principals/", resp.URL.Path)
}

func TestNew(t *testing.T) {
	_, err := New(nil, "/relative", nil)
	assert.Error(t, err)
	_, err = New(nil, "://bad", nil)
	assert.Error(t, err)

	c, err := New(nil, "https://caldav.example.com/base/", nil)
	require.NoError(t, err)
	u, err := c.ResolveURL("/other/x.ics")
	require.NoError(t, err)
	assert.Equal(t, "https://caldav.example.com/other/x.ics", u.String())
	assert.Equal(t, "https://caldav.example.com/base/", c.BaseURL().String())
}

func TestRequestBuilders(t *testing.T) {
	put := NewPut("/c/e.ics", []byte("BEGIN:VCALENDAR"), true)
	assert.Equal(t, http.MethodPut, put.Method)
	assert.Equal(t, "*", put.Header.Get("If-None-Match"))
	assert.Equal(t, "text/calendar; charset=utf-8", put.Header.Get("Content-Type"))

	update := NewPut("/c/e.ics", nil, false)
	assert.Empty(t, update.Header.Get("If-None-Match"))
	assert.Empty(t, update.Header.Get("If-Match"))

	pf := NewPropfind("/", 0, nil)
	assert.Equal(t, "0", pf.Header.Get("Depth"))
	assert.Equal(t, http.MethodDelete, NewDelete("/c/e.ics").Method)
	assert.Equal(t, "image/png", NewPost("/c/e.ics", "image/png", nil).Header.Get("Content-Type"))
}

func TestBasicAuthTransport(t *testing.T) {
	var user, pass string
	var ok bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	transport := NewBasicAuthTransport(credentials.Static{Username: "jane", Secret: "app-specific"}, nil, logger)

	c, err := New(&http.Client{Transport: transport}, server.URL, logger)
	require.NoError(t, err)
	req := NewDelete("/c/e.ics")
	req.Header.Set("Authorization", "Bearer leaked")
	// the explicit header is replaced by SetBasicAuth on the clone
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, ok)
	assert.Equal(t, "jane", user)
	assert.Equal(t, "app-specific", pass)
	assert.NotContains(t, logs.String(), "app-specific")
	assert.NotContains(t, logs.String(), "leaked")
	assert.Contains(t, logs.String(), "outgoing request")
}

func TestBasicAuthTransportWithoutCredential(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	transport := NewBasicAuthTransport(credentials.Chain{}, nil, nil)
	c, err := New(&http.Client{Transport: transport}, server.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), NewGet("/x.ics"))
	assert.ErrorIs(t, err, credentials.ErrNotFound)
	assert.False(t, called)
}
