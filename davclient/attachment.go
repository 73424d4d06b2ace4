package davclient

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cyp0633/davcal/ics"
	"github.com/cyp0633/davcal/internal/httpclient"
)

// AttachmentPolicy is the local guardrail applied before any upload.
type AttachmentPolicy struct {
	// AllowedExtensions, with the leading dot, compared ignoring case. An
	// empty list allows nothing.
	AllowedExtensions []string
	// Root, when set, is the only directory tree files may come from.
	Root string
	// SensitivePatterns are filepath.Match patterns tested against every
	// element of the given and the resolved path.
	SensitivePatterns []string
	// MaxBytes limits the file size; 0 is unlimited.
	MaxBytes int64
}

// DefaultAttachmentPolicy allows common document and image types and refuses
// key material and credential stores.
func DefaultAttachmentPolicy() AttachmentPolicy {
	return AttachmentPolicy{
		AllowedExtensions: []string{
			".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg", ".gif", ".heic",
			".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".csv", ".ics", ".zip",
		},
		SensitivePatterns: []string{".ssh", ".gnupg", ".aws", "*.pem", "*.key", "id_rsa*", "id_ed25519*", ".env", "*.keychain*"},
		MaxBytes:          20 << 20,
	}
}

// CheckedFile is a file that passed the policy.
type CheckedFile struct {
	Path        string // resolved, absolute
	Name        string // base name of the path the caller gave
	Size        int64
	ContentType string
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAttachmentRejected, fmt.Sprintf(format, args...))
}

// Check applies the policy to p without touching the network.
func (p AttachmentPolicy) Check(path string) (CheckedFile, error) {
	if path == "" {
		return CheckedFile{}, rejectf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return CheckedFile{}, rejectf("%v", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return CheckedFile{}, rejectf("cannot resolve %s: %v", path, err)
	}

	for _, candidate := range []string{abs, resolved} {
		if !p.allowedExtension(filepath.Ext(candidate)) {
			return CheckedFile{}, rejectf("extension %q is not allowed", filepath.Ext(candidate))
		}
		if pattern, ok := p.sensitive(candidate); ok {
			return CheckedFile{}, rejectf("%s matches sensitive pattern %q", candidate, pattern)
		}
	}

	if p.Root != "" {
		root, err := filepath.Abs(p.Root)
		if err == nil {
			root, err = filepath.EvalSymlinks(root)
		}
		if err != nil {
			return CheckedFile{}, rejectf("cannot resolve attachment root %s: %v", p.Root, err)
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return CheckedFile{}, rejectf("%s is outside %s", resolved, root)
		}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return CheckedFile{}, rejectf("%v", err)
	}
	if !info.Mode().IsRegular() {
		return CheckedFile{}, rejectf("%s is not a regular file", path)
	}
	if p.MaxBytes > 0 && info.Size() > p.MaxBytes {
		return CheckedFile{}, rejectf("%s is %d bytes, limit is %d", path, info.Size(), p.MaxBytes)
	}
	return CheckedFile{Path: resolved, Name: filepath.Base(abs), Size: info.Size()}, nil
}

func (p AttachmentPolicy) allowedExtension(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range p.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func (p AttachmentPolicy) sensitive(path string) (string, bool) {
	elements := strings.Split(filepath.ToSlash(path), "/")
	for _, pattern := range p.SensitivePatterns {
		pattern = strings.ToLower(pattern)
		for _, el := range elements {
			if el == "" {
				continue
			}
			if ok, _ := filepath.Match(pattern, strings.ToLower(el)); ok {
				return pattern, true
			}
		}
	}
	return "", false
}

// contentType is inferred from the extension, then from the content.
func contentType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}

// AttachmentResult is the outcome of an add.
type AttachmentResult struct {
	ManagedID  string
	Attachment ics.Attachment
	Event      StoredEvent
}

func withQuery(href string, q url.Values) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AddAttachment uploads the file at path to the event as an RFC 8607
// managed attachment. The policy is checked before any request is made.
// The event returned by the server (or fetched again) is authoritative.
func (c *Client) AddAttachment(ctx context.Context, calendar, uid, path string) (AttachmentResult, error) {
	const op = "add attachment"

	if err := ValidateUID(uid); err != nil {
		return AttachmentResult{}, opError(op, err).WithUID(uid)
	}
	file, err := c.policy.Check(path)
	if err != nil {
		return AttachmentResult{}, opError(op, err).WithUID(uid)
	}
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return AttachmentResult{}, opError(op, fmt.Errorf("%w: %v", ErrAttachmentRejected, err)).WithUID(uid)
	}
	file.ContentType = contentType(file.Name, data)

	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return AttachmentResult{}, err
	}
	current, err := c.fetch(ctx, cal, uid)
	if err != nil {
		return AttachmentResult{}, err
	}

	target, err := withQuery(current.Href, url.Values{"action": {"attachment-add"}})
	if err != nil {
		return AttachmentResult{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	req := httpclient.NewPost(target, file.ContentType, data)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	req.Header.Set("Prefer", "return=representation")

	c.logger.Debug("uploading attachment", "uid", uid, "file", file.Name, "size", file.Size, "content_type", file.ContentType)
	resp, err := c.do(ctx, req)
	if err != nil {
		return AttachmentResult{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusInsufficientStorage:
		return AttachmentResult{}, opError(op, ErrAttachmentUploadFailed).WithResponse(resp).WithCalendar(cal.Name).WithUID(uid)
	case !resp.Success():
		return AttachmentResult{}, rejected(op, resp).WithCalendar(cal.Name).WithUID(uid)
	}

	updated, err := c.eventFrom(ctx, cal, current, resp)
	if err != nil {
		return AttachmentResult{}, err
	}

	id := resp.Header.Get("Cal-Managed-ID")
	if id == "" {
		id = managedIDFromLocation(updated.Event, resp, current.Href)
	}
	if id == "" {
		id = managedIDByFilename(updated.Event, file.Name)
	}
	if id == "" {
		return AttachmentResult{}, opError(op, fmt.Errorf("%w: server returned no managed-id", ErrAttachmentUploadFailed)).
			WithCalendar(cal.Name).WithUID(uid)
	}
	if !updated.Event.HasAttachment(id) {
		// some servers answer before the link is visible in the representation
		if updated, err = c.fetch(ctx, cal, uid); err != nil {
			return AttachmentResult{}, err
		}
		if !updated.Event.HasAttachment(id) {
			return AttachmentResult{}, opError(op, fmt.Errorf("%w: managed-id %s not linked to the event", ErrAttachmentUploadFailed, id)).
				WithCalendar(cal.Name).WithUID(uid)
		}
	}

	result := AttachmentResult{ManagedID: id, Event: updated}
	for _, a := range updated.Event.Attachments() {
		if a.ManagedID == id {
			result.Attachment = a
		}
	}
	return result, nil
}

// eventFrom decodes the updated event from an RFC 8607 reply, fetching it
// again when the reply carries no usable representation.
func (c *Client) eventFrom(ctx context.Context, cal CalendarRef, current StoredEvent, resp *Response) (StoredEvent, error) {
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		e, err := ics.Decode(resp.Body)
		if err == nil && e.UID == current.Event.UID {
			etag := resp.Header.Get("ETag")
			if etag == "" {
				etag = current.ETag
			}
			return StoredEvent{Calendar: cal.Name, Href: current.Href, ETag: etag, Event: e}, nil
		}
		c.logger.Debug("ignoring attachment reply body", "uid", current.Event.UID, "error", err)
	}
	return c.fetch(ctx, cal, current.Event.UID)
}

func managedIDFromLocation(e ics.Event, resp *Response, href string) string {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return ""
	}
	if id, ok := e.ManagedIDFor(loc); ok {
		return id
	}
	if id, ok := e.ManagedIDFor(resolve(resp, href, loc)); ok {
		return id
	}
	return ""
}

func managedIDByFilename(e ics.Event, name string) string {
	id := ""
	for _, a := range e.Attachments() {
		if a.ManagedID != "" && a.Filename == name {
			id = a.ManagedID
		}
	}
	return id
}

// RemoveAttachment unlinks a managed attachment. The RFC 8607
// attachment-remove action is tried first; servers refusing it get a DELETE
// carrying the managed-id. If the link survives either, it is stripped from
// the event and the event is written back.
func (c *Client) RemoveAttachment(ctx context.Context, calendar, uid, managedID string) (StoredEvent, error) {
	const op = "remove attachment"

	if err := ValidateUID(uid); err != nil {
		return StoredEvent{}, opError(op, err).WithUID(uid)
	}
	if managedID == "" {
		return StoredEvent{}, opError(op, fmt.Errorf("%w: empty managed-id", ErrInvalidArgument)).WithUID(uid)
	}
	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return StoredEvent{}, err
	}
	current, err := c.fetch(ctx, cal, uid)
	if err != nil {
		return StoredEvent{}, err
	}
	if !current.Event.HasAttachment(managedID) {
		return StoredEvent{}, opError(op, fmt.Errorf("%w: managed-id %s", ErrNotFound, managedID)).
			WithCalendar(cal.Name).WithUID(uid)
	}

	target, err := withQuery(current.Href, url.Values{"action": {"attachment-remove"}, "managed-id": {managedID}})
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	resp, err := c.do(ctx, &Request{Method: http.MethodPost, Path: target, Header: http.Header{"Prefer": {"return=representation"}}})
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		c.logger.Debug("attachment-remove refused, trying DELETE", "uid", uid, "status", resp.StatusCode)
		target, err = withQuery(current.Href, url.Values{"managed-id": {managedID}})
		if err != nil {
			return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
		}
		resp, err = c.do(ctx, httpclient.NewDelete(target))
		if err != nil {
			return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
		}
	}
	if !resp.Success() {
		return StoredEvent{}, rejected(op, resp).WithCalendar(cal.Name).WithUID(uid)
	}

	updated, err := c.eventFrom(ctx, cal, current, resp)
	if err != nil {
		return StoredEvent{}, err
	}
	if !updated.Event.HasAttachment(managedID) {
		return updated, nil
	}

	c.logger.Debug("attachment link still present, stripping it", "uid", uid, "managed_id", managedID)
	stripped := updated.Event.WithoutAttachment(managedID)
	stripped.Stamp = c.now().UTC().Truncate(time.Second)
	data, err := ics.Encode(stripped)
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	if _, err := c.put(ctx, op, cal, current.Href, stripped, data, false); err != nil {
		return StoredEvent{}, err
	}
	final, err := c.fetch(ctx, cal, uid)
	if err != nil {
		return StoredEvent{}, err
	}
	if final.Event.HasAttachment(managedID) {
		return StoredEvent{}, opError(op, fmt.Errorf("%w: link to %s persists", ErrRemoteRejected, managedID)).
			WithCalendar(cal.Name).WithUID(uid)
	}
	return final, nil
}
