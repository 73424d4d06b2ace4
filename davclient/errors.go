package davclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cyp0633/davcal/ics"
	"github.com/cyp0633/davcal/internal/httpclient"
	"github.com/cyp0633/davcal/internal/xml"
)

var (
	// ErrAttachmentRejected is returned when the local attachment policy
	// refuses a file. No request is sent in that case.
	ErrAttachmentRejected = errors.New("attachment rejected by policy")
	// ErrAttachmentUploadFailed is returned when the server refuses an upload (quota, permission).
	ErrAttachmentUploadFailed = errors.New("attachment upload failed")
	// ErrRemoteRejected is any other non-2xx reply.
	ErrRemoteRejected = errors.New("request rejected by server")
	// ErrNotFound is returned for a missing calendar, event or attachment.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports caller input refused before any request.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrMalformedCalendarData = ics.ErrMalformedCalendarData
	ErrConflictingUpdate     = ics.ErrConflictingUpdate
	ErrInvalidUpdate         = ics.ErrInvalidUpdate
	ErrMalformedResponse     = xml.ErrMalformedResponse
)

// maxErrorBody bounds the response body kept for diagnostics.
const maxErrorBody = 512

// OperationError identifies the operation and target that failed.
type OperationError struct {
	Op         string // e.g. "list events", "add attachment"
	Calendar   string
	UID        string
	Href       string
	StatusCode int    // 0 if no HTTP status is involved
	Body       string // truncated response body
	Err        error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Calendar != "" {
		fmt.Fprintf(&b, " in calendar %q", e.Calendar)
	}
	if e.UID != "" {
		fmt.Fprintf(&b, " for event %q", e.UID)
	} else if e.Href != "" {
		fmt.Fprintf(&b, " for %s", e.Href)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " failed with status %d", e.StatusCode)
	} else {
		b.WriteString(" failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error wrapping
func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(op string, err error) *OperationError {
	return &OperationError{Op: op, Err: err}
}

// WithCalendar adds the calendar name to the error for context
func (e *OperationError) WithCalendar(name string) *OperationError {
	e.Calendar = name
	return e
}

// WithUID adds the event UID to the error for context
func (e *OperationError) WithUID(uid string) *OperationError {
	e.UID = uid
	return e
}

// WithHref adds the resource path to the error for context
func (e *OperationError) WithHref(href string) *OperationError {
	e.Href = href
	return e
}

// WithResponse adds the response status and body to the error for debugging
func (e *OperationError) WithResponse(resp *httpclient.Response) *OperationError {
	e.StatusCode = resp.StatusCode
	body := strings.TrimSpace(string(resp.Body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	e.Body = body
	return e
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	return 0
}

// rejected maps a non-2xx reply: 404 becomes ErrNotFound, everything else
// ErrRemoteRejected.
func rejected(op string, resp *httpclient.Response) *OperationError {
	kind := ErrRemoteRejected
	if resp.StatusCode == 404 {
		kind = ErrNotFound
	}
	return opError(op, kind).WithResponse(resp)
}
