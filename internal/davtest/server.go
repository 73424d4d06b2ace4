// Package davtest runs an in-memory CalDAV server for tests. It answers
// discovery PROPFINDs, calendar-query and free-busy-query REPORTs, object
// GET/PUT/DELETE and RFC 8607 attachment POSTs, and records every request.
package davtest

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	PrincipalPath  = "/principals/jane/"
	HomePath       = "/calendars/jane/"
	OutboxPath     = "/calendars/jane/outbox/"
	attachmentPath = "/attachments/"
	UserAddress    = "mailto:jane@example.com"
)

// Recorded is one request the server received.
type Recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type object struct {
	data []byte
	etag string
}

type attachment struct {
	filename    string
	contentType string
	data        []byte
}

// Calendar is a calendar collection served under HomePath.
type Calendar struct {
	ID       string
	Name     string
	Color    string
	ReadOnly bool
	// Components advertised in supported-calendar-component-set; empty
	// advertises nothing.
	Components []string

	objects map[string]*object
}

// Path is the collection path of the calendar.
func (c *Calendar) Path() string {
	return HomePath + c.ID + "/"
}

// Behavior switches the server into the less common answers real servers give.
type Behavior struct {
	// AttachmentStatus, when non-zero, answers every attachment-add with it.
	AttachmentStatus int
	// RefuseAttachmentRemove answers attachment-remove with 405.
	RefuseAttachmentRemove bool
	// IgnoreAttachmentDelete acknowledges DELETE ?managed-id without unlinking.
	IgnoreAttachmentDelete bool
	// OmitManagedIDHeader drops Cal-Managed-ID from attachment-add replies.
	OmitManagedIDHeader bool
	// EmptyAttachmentReply answers attachment-add without a body.
	EmptyAttachmentReply bool
	// DisableWellKnown makes /.well-known/caldav answer 404.
	DisableWellKnown bool
}

// Server is the fake.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	calendars   map[string]*Calendar
	attachments map[string]*attachment
	requests    []Recorded
	logger      *slog.Logger

	freeBusyStatus map[string]int
	delays         map[string]time.Duration
	behavior       Behavior
}

// New starts a server. The caller closes it.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		calendars:      make(map[string]*Calendar),
		attachments:    make(map[string]*attachment),
		freeBusyStatus: make(map[string]int),
		delays:         make(map[string]time.Duration),
		logger:         logger,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	return s
}

// AddCalendar registers a VEVENT calendar.
func (s *Server) AddCalendar(id, name string) *Calendar {
	return s.AddCollection(&Calendar{ID: id, Name: name, Components: []string{"VEVENT"}})
}

// AddCollection registers c as is.
func (s *Server) AddCollection(c *Calendar) *Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.objects = make(map[string]*object)
	s.calendars[c.ID] = c
	return c
}

// PutObject stores raw iCalendar data under name in calendar id.
func (s *Server) PutObject(id, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[id].objects[name] = &object{data: data, etag: generateETag(data)}
}

// Object returns the stored data, or nil.
func (s *Server) Object(id, name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[id]
	if !ok {
		return nil
	}
	if o, ok := cal.objects[name]; ok {
		return o.data
	}
	return nil
}

// SetFreeBusyStatus makes free-busy-query on calendar id fail with status.
func (s *Server) SetFreeBusyStatus(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeBusyStatus[id] = status
}

// SetDelay delays REPORT replies for calendar id.
func (s *Server) SetDelay(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[id] = d
}

// Configure changes the server behavior.
func (s *Server) Configure(fn func(*Behavior)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.behavior)
}

// Attachment returns an uploaded file's content.
func (s *Server) Attachment(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[id]
	if !ok {
		return nil, false
	}
	return a.data, true
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.requests...)
}

// RequestsFor returns the recorded requests with the given method.
func (s *Server) RequestsFor(method string) []Recorded {
	var out []Recorded
	for _, r := range s.Requests() {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func generateETag(data []byte) string {
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

func (s *Server) sortedCalendars() []*Calendar {
	cals := make([]*Calendar, 0, len(s.calendars))
	for _, c := range s.calendars {
		cals = append(cals, c)
	}
	sort.Slice(cals, func(i, j int) bool { return cals[i].ID < cals[j].ID })
	return cals
}

// ServeHTTP records the request and routes it by path and method.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.requests = append(s.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	behavior := s.behavior
	s.mu.Unlock()
	s.logger.Debug("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery)

	p := r.URL.Path
	switch {
	case p == "/.well-known/caldav":
		if behavior.DisableWellKnown {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, PrincipalPath, http.StatusPermanentRedirect)
	case p == "/" || p == PrincipalPath:
		s.handlePrincipal(w, r, body)
	case p == HomePath:
		s.handleHome(w, r)
	case strings.HasPrefix(p, attachmentPath):
		s.handleAttachmentGet(w, r, strings.TrimPrefix(p, attachmentPath))
	case strings.HasPrefix(p, HomePath):
		rest := strings.TrimPrefix(p, HomePath)
		id, name, _ := strings.Cut(rest, "/")
		s.mu.Lock()
		cal, ok := s.calendars[id]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if name == "" {
			s.handleCollection(w, r, cal, body)
			return
		}
		s.handleObject(w, r, cal, name, body)
	default:
		http.NotFound(w, r)
	}
}
