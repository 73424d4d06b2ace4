package davtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/cyp0633/davcal/ics"
)

const (
	nsCalDAV     = "urn:ietf:params:xml:ns:caldav"
	nsCS         = "http://calendarserver.org/ns/"
	nsApple      = "http://apple.com/ns/ical/"
	timeLayout   = "20060102T150405Z"
	calendarType = "text/calendar; charset=utf-8"
)

// multistatus builds replies with DAV: as the default namespace and "cal"
// as the CalDAV prefix, unlike the prefixes the client sends.
type multistatus struct {
	doc  *etree.Document
	root *etree.Element
}

func newMultistatus() *multistatus {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("multistatus")
	root.CreateAttr("xmlns", "DAV:")
	root.CreateAttr("xmlns:cal", nsCalDAV)
	root.CreateAttr("xmlns:cs", nsCS)
	root.CreateAttr("xmlns:ical", nsApple)
	return &multistatus{doc: doc, root: root}
}

// response adds a <response> with one 200 propstat and returns its <prop>.
func (m *multistatus) response(href string) *etree.Element {
	resp := m.root.CreateElement("response")
	resp.CreateElement("href").SetText(href)
	ps := resp.CreateElement("propstat")
	prop := ps.CreateElement("prop")
	ps.CreateElement("status").SetText("HTTP/1.1 200 OK")
	return prop
}

// missing appends a 404 propstat for names to the response owning prop.
func missing(prop *etree.Element, names ...string) {
	resp := prop.Parent().Parent()
	ps := resp.CreateElement("propstat")
	p := ps.CreateElement("prop")
	for _, n := range names {
		p.CreateElement(n)
	}
	ps.CreateElement("status").SetText("HTTP/1.1 404 Not Found")
}

func (m *multistatus) write(w http.ResponseWriter) {
	m.doc.Indent(2)
	data, err := m.doc.WriteToBytes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(data)
}

func hrefProp(parent *etree.Element, name string, hrefs ...string) {
	el := parent.CreateElement(name)
	for _, h := range hrefs {
		el.CreateElement("href").SetText(h)
	}
}

func (s *Server) handlePrincipal(w http.ResponseWriter, r *http.Request, _ []byte) {
	if r.Method != "PROPFIND" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	ms := newMultistatus()
	prop := ms.response(PrincipalPath)
	hrefProp(prop, "current-user-principal", PrincipalPath)
	hrefProp(prop, "cal:calendar-home-set", HomePath)
	hrefProp(prop, "cal:schedule-outbox-URL", OutboxPath)
	hrefProp(prop, "cal:calendar-user-address-set", UserAddress, PrincipalPath)
	ms.write(w)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != "PROPFIND" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := newMultistatus()
	home := ms.response(HomePath)
	home.CreateElement("resourcetype").CreateElement("collection")
	home.CreateElement("displayname").SetText("Home")
	missing(home, "cal:supported-calendar-component-set")

	if r.Header.Get("Depth") != "0" {
		for _, c := range s.sortedCalendars() {
			prop := ms.response(c.Path())
			rt := prop.CreateElement("resourcetype")
			rt.CreateElement("collection")
			rt.CreateElement("cal:calendar")
			if c.Name != "" {
				prop.CreateElement("displayname").SetText(c.Name)
			}
			if c.Color != "" {
				prop.CreateElement("ical:calendar-color").SetText(c.Color)
			}
			if len(c.Components) > 0 {
				set := prop.CreateElement("cal:supported-calendar-component-set")
				for _, comp := range c.Components {
					set.CreateElement("cal:comp").CreateAttr("name", comp)
				}
			}
			privs := prop.CreateElement("current-user-privilege-set")
			privs.CreateElement("privilege").CreateElement("read")
			if !c.ReadOnly {
				privs.CreateElement("privilege").CreateElement("write")
			}
			prop.CreateElement("cs:getctag").SetText(c.ctag())
		}
		// a plain collection that must not be listed
		prop := ms.response(HomePath + "inbox/")
		prop.CreateElement("resourcetype").CreateElement("collection")
	}
	ms.write(w)
}

func (c *Calendar) ctag() string {
	var b strings.Builder
	for name, o := range c.objects {
		b.WriteString(name)
		b.WriteString(o.etag)
	}
	return generateETag([]byte(b.String()))
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request, cal *Calendar, body []byte) {
	if r.Method != "REPORT" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		http.Error(w, "Error parsing XML request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	delay := s.delays[cal.ID]
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	switch doc.Root().Tag {
	case "calendar-query":
		s.handleCalendarQuery(w, cal, doc)
	case "free-busy-query":
		s.handleFreeBusyQuery(w, cal, doc)
	default:
		http.Error(w, "Unsupported report type", http.StatusBadRequest)
	}
}

func parseRange(doc *etree.Document) (start, end time.Time, ok bool) {
	tr := doc.FindElement("//time-range")
	if tr == nil {
		return time.Time{}, time.Time{}, false
	}
	start, err1 := time.Parse(timeLayout, tr.SelectAttrValue("start", ""))
	end, err2 := time.Parse(timeLayout, tr.SelectAttrValue("end", ""))
	return start, end, err1 == nil && err2 == nil
}

// matching decodes the objects of cal that pass the range and UID filters.
func (s *Server) matching(cal *Calendar, doc *etree.Document) ([]string, []ics.Event) {
	start, end, ranged := parseRange(doc)
	uid := ""
	if tm := doc.FindElement("//text-match"); tm != nil {
		uid = strings.TrimSpace(tm.Text())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	var events []ics.Event
	for name, o := range cal.objects {
		e, err := ics.Decode(o.data)
		if err != nil {
			// still served, so the client sees the broken object
			if !ranged && uid == "" {
				names = append(names, name)
				events = append(events, ics.Event{})
			}
			continue
		}
		if ranged {
			occ, err := occurrences(e, start, end)
			if err != nil {
				s.logger.Warn("serving object with unusable recurrence", "name", name, "error", err)
			} else if len(occ) == 0 {
				continue
			}
		}
		if uid != "" && e.UID != uid {
			continue
		}
		names = append(names, name)
		events = append(events, e)
	}
	return names, events
}

func (s *Server) handleCalendarQuery(w http.ResponseWriter, cal *Calendar, doc *etree.Document) {
	names, _ := s.matching(cal, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	ms := newMultistatus()
	for _, name := range names {
		o := cal.objects[name]
		prop := ms.response(cal.Path() + name)
		prop.CreateElement("getetag").SetText(o.etag)
		prop.CreateElement("cal:calendar-data").CreateCData(string(o.data))
	}
	ms.write(w)
}

func (s *Server) handleFreeBusyQuery(w http.ResponseWriter, cal *Calendar, doc *etree.Document) {
	s.mu.Lock()
	status := s.freeBusyStatus[cal.ID]
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	start, end, ok := parseRange(doc)
	if !ok {
		http.Error(w, "free-busy-query needs a time-range", http.StatusBadRequest)
		return
	}
	_, events := s.matching(cal, doc)
	busy := []ics.Interval{}
	for _, e := range events {
		if e.UID == "" || isCancelled(e) {
			continue
		}
		occ, err := occurrences(e, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, iv := range occ {
			if iv.Start.Before(start) {
				iv.Start = start
			}
			if iv.End.After(end) {
				iv.End = end
			}
			busy = append(busy, iv)
		}
	}
	data, err := ics.EncodeFreeBusy(start, end, busy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", calendarType)
	w.Write(data)
}
