package ics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachments(t *testing.T) {
	e := Event{
		UID:   "att",
		Start: NewDay(2026, 3, 5),
		End:   NewDay(2026, 3, 5),
		Props: Properties{
			{Name: "ATTACH", Lines: []string{"ATTACH;MANAGED-ID=M1;FILENAME=a.pdf;FMTTYPE=application/pdf;SIZE=1024:https://example.com/a"}},
			{Name: "ATTACH", Lines: []string{"ATTACH:https://example.com/unmanaged"}},
			{Name: "ATTACH", Lines: []string{"ATTACH;ENCODING=BASE64;VALUE=BINARY:aGVsbG8="}},
			{Name: "ATTACH", Lines: []string{`ATTACH;MANAGED-ID="M2";FILENAME="notes; v2.txt":https://example.com/b`}},
		},
	}

	got := e.Attachments()
	require.Len(t, got, 3)
	assert.Equal(t, Attachment{URI: "https://example.com/a", ManagedID: "M1", Filename: "a.pdf", FormatType: "application/pdf", Size: 1024}, got[0])
	assert.Empty(t, got[1].ManagedID)
	assert.Equal(t, "notes; v2.txt", got[2].Filename)

	id, ok := e.ManagedIDFor("https://example.com/b")
	assert.True(t, ok)
	assert.Equal(t, "M2", id)
	_, ok = e.ManagedIDFor("https://example.com/unmanaged")
	assert.False(t, ok)

	stripped := e.WithoutAttachment("M1")
	assert.False(t, stripped.HasAttachment("M1"))
	assert.True(t, stripped.HasAttachment("M2"))
	assert.Len(t, stripped.Props, 3)
	assert.True(t, e.HasAttachment("M1"), "original must keep its link")
}
