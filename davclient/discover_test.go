package davclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davcal/internal/davtest"
)

func TestDiscovery(t *testing.T) {
	c, srv := newServerClient(t)
	srv.AddCollection(&davtest.Calendar{ID: "tasks", Name: "Tasks", Components: []string{"VTODO"}})
	srv.AddCollection(&davtest.Calendar{ID: "shared", Name: "Holidays", ReadOnly: true, Color: "#FF0000FF"})
	srv.AddCollection(&davtest.Calendar{ID: "misc", Components: []string{"VEVENT", "VTODO"}})

	s, err := c.Session(context.Background())
	require.NoError(t, err)

	assert.Equal(t, srv.URL+davtest.PrincipalPath, s.PrincipalURL)
	assert.Equal(t, srv.URL+davtest.HomePath, s.HomeSetURL)
	assert.Equal(t, srv.URL+davtest.OutboxPath, s.OutboxURL)
	assert.Equal(t, []string{davtest.UserAddress, davtest.PrincipalPath}, s.UserAddresses)

	var names []string
	for _, cal := range s.Calendars {
		names = append(names, cal.Name)
	}
	// VTODO-only and plain collections are skipped; a missing displayname
	// falls back to the last path segment
	assert.Equal(t, []string{"Holidays", "misc", "Personal", "Work"}, names)

	holidays := s.Calendars[0]
	assert.Equal(t, srv.URL+davtest.HomePath+"shared/", holidays.URL)
	assert.True(t, holidays.ReadOnly)
	assert.Equal(t, "#FF0000FF", holidays.Color)
	assert.NotEmpty(t, holidays.CTag)
	assert.False(t, s.Calendars[3].ReadOnly)

	// the well-known redirect is followed; nothing else is tried
	propfinds := srv.RequestsFor("PROPFIND")
	require.Len(t, propfinds, 4)
	assert.Equal(t, "/.well-known/caldav", propfinds[0].Path)
	assert.Equal(t, davtest.PrincipalPath, propfinds[1].Path)
	assert.Equal(t, davtest.PrincipalPath, propfinds[2].Path)
	assert.Equal(t, davtest.HomePath, propfinds[3].Path)
	assert.Equal(t, "1", propfinds[3].Header.Get("Depth"))
}

func TestDiscoveryIsCached(t *testing.T) {
	c, srv := newServerClient(t)

	_, err := c.Calendars(context.Background())
	require.NoError(t, err)
	n := len(srv.Requests())

	_, err = c.Calendar(context.Background(), "work")
	require.NoError(t, err)
	assert.Len(t, srv.Requests(), n)
}

func TestDiscoveryFallsBackToRoot(t *testing.T) {
	c, srv := newServerClient(t)
	srv.Configure(func(b *davtest.Behavior) { b.DisableWellKnown = true })

	cals, err := c.Calendars(context.Background())
	require.NoError(t, err)
	assert.Len(t, cals, 2)

	propfinds := srv.RequestsFor("PROPFIND")
	require.GreaterOrEqual(t, len(propfinds), 2)
	assert.Equal(t, "/.well-known/caldav", propfinds[0].Path)
	assert.Equal(t, "/", propfinds[1].Path)
}

func TestCalendarLookup(t *testing.T) {
	c, _ := newServerClient(t)

	cal, err := c.Calendar(context.Background(), "WORK")
	require.NoError(t, err)
	assert.Equal(t, "Work", cal.Name)

	_, err = c.Calendar(context.Background(), "Gym")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscoveryWithoutPrincipal(t *testing.T) {
	transport := &mockTransport{handler: func(req *Request) (*Response, error) {
		return respond(404, ""), nil
	}}
	c, err := New(transport, "https://caldav.example.com/dav/", WithResolver(nil))
	require.NoError(t, err)

	_, err = c.Calendars(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	var paths []string
	for _, call := range transport.Calls() {
		paths = append(paths, call.Path)
	}
	assert.Equal(t, []string{
		"https://caldav.example.com/dav/",
		"https://caldav.example.com/.well-known/caldav",
		"https://caldav.example.com/",
	}, paths)
}

func TestCandidatesWithSRV(t *testing.T) {
	resolver := &mockResolver{
		srvRecords: map[string][]*net.SRV{
			"_caldavs._tcp.example.com": {{Target: "dav.example.com.", Port: 8443}},
		},
		txtRecords: map[string][]string{
			"_caldavs._tcp.example.com": {"txtvers=1", "path=/caldav/"},
		},
	}
	c, err := New(&mockTransport{}, "https://example.com/users/jane/", WithResolver(resolver))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/users/jane/",
		"https://dav.example.com:8443/caldav/",
		"https://example.com/.well-known/caldav",
		"https://example.com/",
	}, c.candidates(context.Background()))
}
