package davclient

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davcal/internal/davtest"
)

func writeFile(t *testing.T, path string, data string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestAttachmentPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "share")
	notes := writeFile(t, filepath.Join(root, "notes.txt"), "agenda")
	upper := writeFile(t, filepath.Join(root, "SCAN.PDF"), "%PDF-1.4")
	outside := writeFile(t, filepath.Join(dir, "elsewhere", "report.pdf"), "%PDF-1.4")
	exe := writeFile(t, filepath.Join(root, "setup.exe"), "MZ")
	sshDir := writeFile(t, filepath.Join(root, ".ssh", "config.txt"), "Host *")
	key := writeFile(t, filepath.Join(dir, "server.key"), "-----BEGIN")
	big := writeFile(t, filepath.Join(root, "big.csv"), strings.Repeat("a,b\n", 100))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "folder.pdf"), 0o755))

	disguised := filepath.Join(root, "innocent.txt")
	require.NoError(t, os.Symlink(key, disguised))
	escaping := filepath.Join(root, "link.pdf")
	require.NoError(t, os.Symlink(outside, escaping))

	policy := DefaultAttachmentPolicy()
	policy.Root = root
	policy.MaxBytes = 100

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"allowed", notes, true},
		{"extension case ignored", upper, true},
		{"not on allow-list", exe, false},
		{"outside root", outside, false},
		{"symlink escaping root", escaping, false},
		{"symlink to key material", disguised, false},
		{"sensitive directory", sshDir, false},
		{"too large", big, false},
		{"directory", filepath.Join(root, "folder.pdf"), false},
		{"missing", filepath.Join(root, "absent.pdf"), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := policy.Check(tt.path)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrAttachmentRejected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Base(tt.path), file.Name)
			assert.True(t, filepath.IsAbs(file.Path))
		})
	}

	// without a root, files anywhere pass
	policy.Root = ""
	_, err := policy.Check(outside)
	assert.NoError(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("a.pdf", nil))
	assert.True(t, strings.HasPrefix(contentType("a.txt", []byte("hi")), "text/plain"))
	assert.Equal(t, "image/png", contentType("a.unknownext", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")))
}

func TestAddAttachmentRejectedMakesNoCalls(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "installer.exe"), "MZ")
	transport := &mockTransport{}
	c, err := New(transport, "https://caldav.example.com/")
	require.NoError(t, err)

	_, err = c.AddAttachment(context.Background(), "Work", "weekly", path)
	assert.ErrorIs(t, err, ErrAttachmentRejected)
	assert.Empty(t, transport.Calls())
}

func TestAddAttachment(t *testing.T) {
	c, srv := newServerClient(t)
	srv.PutObject("work", "weekly.ics", []byte(richEvent))
	path := writeFile(t, filepath.Join(t.TempDir(), "agenda notes.txt"), "1. budget\n2. hiring\n")

	result, err := c.AddAttachment(context.Background(), "Work", "weekly", path)
	require.NoError(t, err)
	require.NotEmpty(t, result.ManagedID)
	assert.Equal(t, "agenda notes.txt", result.Attachment.Filename)
	assert.Equal(t, srv.URL+"/attachments/"+result.ManagedID, result.Attachment.URI)
	assert.EqualValues(t, 20, result.Attachment.Size)
	assert.True(t, result.Event.Event.HasAttachment(result.ManagedID))

	data, ok := srv.Attachment(result.ManagedID)
	require.True(t, ok)
	assert.Equal(t, "1. budget\n2. hiring\n", string(data))

	posts := srv.RequestsFor(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "/calendars/jane/work/weekly.ics", posts[0].Path)
	assert.Equal(t, "action=attachment-add", posts[0].Query)
	assert.Equal(t, `attachment; filename="agenda notes.txt"`, posts[0].Header.Get("Content-Disposition"))
	assert.Equal(t, "return=representation", posts[0].Header.Get("Prefer"))
	assert.True(t, strings.HasPrefix(posts[0].Header.Get("Content-Type"), "text/plain"))

	// unrelated properties survive the server-side rewrite
	stored := mustDecode(t, srv.Object("work", "weekly.ics"))
	assert.Len(t, stored.Props.Get("VALARM"), 1)
	assert.Len(t, stored.Props.Get("RRULE"), 1)
	// the reply carried the event, so no second GET
	assert.Len(t, srv.RequestsFor(http.MethodGet), 1)
}

func TestAddAttachmentWithoutManagedIDHeader(t *testing.T) {
	c, srv := newServerClient(t)
	srv.Configure(func(b *davtest.Behavior) {
		b.OmitManagedIDHeader = true
		b.EmptyAttachmentReply = true
	})
	srv.PutObject("work", "weekly.ics", []byte(richEvent))
	path := writeFile(t, filepath.Join(t.TempDir(), "slides.pdf"), "%PDF-1.4")

	result, err := c.AddAttachment(context.Background(), "Work", "weekly", path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Attachment.URI, "/attachments/"+result.ManagedID))
	assert.Equal(t, "application/pdf", result.Attachment.FormatType)
	// empty reply: the event is fetched again
	assert.Len(t, srv.RequestsFor(http.MethodGet), 2)
}

func TestAddAttachmentServerRefuses(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInsufficientStorage} {
		c, srv := newServerClient(t)
		srv.Configure(func(b *davtest.Behavior) { b.AttachmentStatus = status })
		srv.PutObject("work", "weekly.ics", []byte(richEvent))
		path := writeFile(t, filepath.Join(t.TempDir(), "big.zip"), "PK")

		_, err := c.AddAttachment(context.Background(), "Work", "weekly", path)
		assert.ErrorIs(t, err, ErrAttachmentUploadFailed)
		assert.Equal(t, status, StatusCode(err))
	}
}

func TestAddAttachmentMissingEvent(t *testing.T) {
	c, srv := newServerClient(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "notes.md"), "# notes")

	_, err := c.AddAttachment(context.Background(), "Work", "ghost", path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, srv.RequestsFor(http.MethodPost))
}

func TestRemoveAttachment(t *testing.T) {
	c, srv := newServerClient(t)
	srv.PutObject("work", "weekly.ics", []byte(richEvent))
	path := writeFile(t, filepath.Join(t.TempDir(), "notes.txt"), "x")
	added, err := c.AddAttachment(context.Background(), "Work", "weekly", path)
	require.NoError(t, err)

	updated, err := c.RemoveAttachment(context.Background(), "Work", "weekly", added.ManagedID)
	require.NoError(t, err)
	assert.False(t, updated.Event.HasAttachment(added.ManagedID))
	assert.False(t, mustDecode(t, srv.Object("work", "weekly.ics")).HasAttachment(added.ManagedID))

	posts := srv.RequestsFor(http.MethodPost)
	require.Len(t, posts, 2)
	assert.Equal(t, "action=attachment-remove&managed-id="+added.ManagedID, posts[1].Query)
	assert.Empty(t, srv.RequestsFor(http.MethodDelete))
	assert.Empty(t, srv.RequestsFor(http.MethodPut))

	_, err = c.RemoveAttachment(context.Background(), "Work", "weekly", added.ManagedID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAttachmentFallsBackToDelete(t *testing.T) {
	c, srv := newServerClient(t)
	srv.PutObject("work", "weekly.ics", []byte(richEvent))
	path := writeFile(t, filepath.Join(t.TempDir(), "notes.txt"), "x")
	added, err := c.AddAttachment(context.Background(), "Work", "weekly", path)
	require.NoError(t, err)

	srv.Configure(func(b *davtest.Behavior) {
		b.RefuseAttachmentRemove = true
		b.IgnoreAttachmentDelete = true
	})

	updated, err := c.RemoveAttachment(context.Background(), "Work", "weekly", added.ManagedID)
	require.NoError(t, err)
	assert.False(t, updated.Event.HasAttachment(added.ManagedID))

	deletes := srv.RequestsFor(http.MethodDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "managed-id="+added.ManagedID, deletes[0].Query)

	// the server kept the link, so it was stripped and written back
	puts := srv.RequestsFor(http.MethodPut)
	require.Len(t, puts, 1)
	assert.NotContains(t, string(puts[0].Body), added.ManagedID)
	assert.Contains(t, string(puts[0].Body), "RRULE:FREQ=WEEKLY;BYDAY=TH")
	assert.False(t, mustDecode(t, srv.Object("work", "weekly.ics")).HasAttachment(added.ManagedID))
}

func TestRemoveAttachmentArguments(t *testing.T) {
	transport := &mockTransport{}
	c := withCalendars(t, transport, []CalendarRef{calA})

	_, err := c.RemoveAttachment(context.Background(), "A", "weekly", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.RemoveAttachment(context.Background(), "A", "bad uid", "id")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, transport.Calls())
}
