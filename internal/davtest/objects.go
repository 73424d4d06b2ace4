package davtest

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cyp0633/davcal/ics"
)

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, cal *Calendar, name string, body []byte) {
	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, cal, name)
	case http.MethodPut:
		s.handlePut(w, r, cal, name, body)
	case http.MethodDelete:
		if id := r.URL.Query().Get("managed-id"); id != "" {
			s.handleAttachmentDelete(w, cal, name, id)
			return
		}
		s.handleDelete(w, cal, name)
	case http.MethodPost:
		switch r.URL.Query().Get("action") {
		case "attachment-add":
			s.handleAttachmentAdd(w, r, cal, name, body)
		case "attachment-remove":
			s.handleAttachmentRemove(w, r, cal, name)
		default:
			http.Error(w, "Unsupported action", http.StatusBadRequest)
		}
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, cal *Calendar, name string) {
	s.mu.Lock()
	o, ok := cal.objects[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", calendarType)
	w.Header().Set("ETag", o.etag)
	w.Write(o.data)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, cal *Calendar, name string, body []byte) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/calendar") {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}
	if _, err := ics.Decode(body); err != nil {
		http.Error(w, "Invalid iCalendar data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cal.ReadOnly {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	_, exists := cal.objects[name]
	if exists && r.Header.Get("If-None-Match") == "*" {
		http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
		return
	}
	o := &object{data: body, etag: generateETag(body)}
	cal.objects[name] = o
	w.Header().Set("ETag", o.etag)
	if exists {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Location", cal.Path()+name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, cal *Calendar, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := cal.objects[name]; !ok {
		http.NotFound(w, nil)
		return
	}
	delete(cal.objects, name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachmentURL(id string) string {
	return s.URL + attachmentPath + id
}

// updateEvent decodes the stored object, applies fn and stores the result.
// Callers hold s.mu.
func (s *Server) updateEvent(cal *Calendar, name string, fn func(*ics.Event)) (*object, error) {
	o, ok := cal.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	e, err := ics.Decode(o.data)
	if err != nil {
		return nil, err
	}
	fn(&e)
	data, err := ics.Encode(e)
	if err != nil {
		return nil, err
	}
	updated := &object{data: data, etag: generateETag(data)}
	cal.objects[name] = updated
	return updated, nil
}

func (s *Server) handleAttachmentAdd(w http.ResponseWriter, r *http.Request, cal *Calendar, name string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.behavior.AttachmentStatus != 0 {
		http.Error(w, http.StatusText(s.behavior.AttachmentStatus), s.behavior.AttachmentStatus)
		return
	}
	if _, ok := cal.objects[name]; !ok {
		http.NotFound(w, nil)
		return
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition"))
	if err != nil || params["filename"] == "" {
		http.Error(w, "Missing filename", http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	s.attachments[id] = &attachment{filename: params["filename"], contentType: contentType, data: body}
	link := fmt.Sprintf("ATTACH;MANAGED-ID=%s;FILENAME=%s;FMTTYPE=%s;SIZE=%d:%s",
		id, quote(params["filename"]), quote(contentType), len(body), s.attachmentURL(id))

	o, err := s.updateEvent(cal, name, func(e *ics.Event) {
		e.Props = append(e.Props, ics.Property{Name: "ATTACH", Lines: []string{link}})
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", o.etag)
	w.Header().Set("Location", s.attachmentURL(id))
	if !s.behavior.OmitManagedIDHeader {
		w.Header().Set("Cal-Managed-ID", id)
	}
	if s.behavior.EmptyAttachmentReply {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.Header().Set("Content-Type", calendarType)
	w.WriteHeader(http.StatusCreated)
	w.Write(o.data)
}

func quote(v string) string {
	if strings.ContainsAny(v, ";:,") {
		return `"` + v + `"`
	}
	return v
}

func (s *Server) unlink(cal *Calendar, name, id string) error {
	if _, ok := s.attachments[id]; !ok {
		return fmt.Errorf("attachment %s not found", id)
	}
	delete(s.attachments, id)
	_, err := s.updateEvent(cal, name, func(e *ics.Event) {
		*e = e.WithoutAttachment(id)
	})
	return err
}

func (s *Server) handleAttachmentRemove(w http.ResponseWriter, r *http.Request, cal *Calendar, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.behavior.RefuseAttachmentRemove {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.unlink(cal, name, r.URL.Query().Get("managed-id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachmentDelete(w http.ResponseWriter, cal *Calendar, name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.behavior.IgnoreAttachmentDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.unlink(cal, name, id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachmentGet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	a, ok := s.attachments[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", a.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.data)))
	w.Write(a.data)
}
