package davclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		transport Transport
		url       string
		wantErr   bool
	}{
		{"valid", &mockTransport{}, "https://caldav.example.com/", false},
		{"nil transport", nil, "https://caldav.example.com/", true},
		{"relative", &mockTransport{}, "/dav/", true},
		{"unsupported scheme", &mockTransport{}, "ftp://caldav.example.com/", true},
		{"empty", &mockTransport{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.transport, tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOperationError(t *testing.T) {
	resp := respond(http.StatusInternalServerError, "database on fire")
	err := rejected("update event", resp).WithCalendar("Work").WithUID("abc")

	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.Equal(t, `update event in calendar "Work" for event "abc" failed with status 500: request rejected by server`, err.Error())
	assert.Equal(t, 500, StatusCode(err))
	assert.Equal(t, "database on fire", err.Body)

	notFound := rejected("get event", respond(http.StatusNotFound, ""))
	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.NotErrorIs(t, notFound, ErrRemoteRejected)

	wrapped := errors.Join(errors.New("other"), notFound)
	assert.Equal(t, 404, StatusCode(wrapped))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestOperationErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	err := rejected("list events", &Response{StatusCode: 502, Body: long})
	require.Len(t, err.Body, maxErrorBody+3)
}

func TestValidateUID(t *testing.T) {
	for _, uid := range []string{"abc", "7F3A-11@example.com", "a.b_c:d+e"} {
		assert.NoError(t, ValidateUID(uid), uid)
	}
	for _, uid := range []string{"", "../etc/passwd", "with space", "semi;colon", string(make([]byte, 256))} {
		assert.ErrorIs(t, ValidateUID(uid), ErrInvalidArgument, uid)
	}
}
