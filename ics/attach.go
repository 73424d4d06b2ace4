package ics

import "strconv"

// Attachment is an ATTACH link on an event. ManagedID is empty for links the
// server does not manage.
type Attachment struct {
	URI        string `json:"uri"`
	ManagedID  string `json:"managed_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	FormatType string `json:"format_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// Attachments lists the event's ATTACH properties by reference. Inline
// binary attachments are skipped.
func (e Event) Attachments() []Attachment {
	var out []Attachment
	for _, p := range e.Props.Get("ATTACH") {
		if v, _ := p.Param("VALUE"); v == "BINARY" {
			continue
		}
		a := Attachment{URI: p.Value()}
		a.ManagedID, _ = p.Param("MANAGED-ID")
		a.Filename, _ = p.Param("FILENAME")
		a.FormatType, _ = p.Param("FMTTYPE")
		if size, ok := p.Param("SIZE"); ok {
			a.Size, _ = strconv.ParseInt(size, 10, 64)
		}
		out = append(out, a)
	}
	return out
}

// ManagedIDFor returns the managed-id of the ATTACH link pointing at uri.
func (e Event) ManagedIDFor(uri string) (string, bool) {
	for _, a := range e.Attachments() {
		if a.URI == uri && a.ManagedID != "" {
			return a.ManagedID, true
		}
	}
	return "", false
}

// HasAttachment reports whether a link with the managed-id is present.
func (e Event) HasAttachment(managedID string) bool {
	for _, a := range e.Attachments() {
		if a.ManagedID == managedID {
			return true
		}
	}
	return false
}

// WithoutAttachment returns a copy of e with every ATTACH link carrying the
// managed-id removed.
func (e Event) WithoutAttachment(managedID string) Event {
	out := e.Clone()
	out.Props = e.Props.Without(func(p Property) bool {
		if p.Name != "ATTACH" {
			return false
		}
		id, ok := p.Param("MANAGED-ID")
		return ok && id == managedID
	})
	return out
}
