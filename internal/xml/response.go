package xml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	"github.com/cyp0633/davcal/ics"
)

var (
	// ErrMalformedResponse reports a body that is not a usable multistatus document.
	ErrMalformedResponse = errors.New("malformed multistatus response")
	// ErrPropertyUnavailable marks a property the server did not return with a 2xx status.
	ErrPropertyUnavailable = errors.New("property unavailable")
)

// PropertyError is the error marker stored for a property reported with a
// non-2xx propstat status, or not reported at all (Status 0).
type PropertyError struct {
	Prop   PropName
	Status int
}

func (e *PropertyError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("property %s not returned", e.Prop)
	}
	return fmt.Sprintf("property %s: HTTP %d", e.Prop, e.Status)
}

func (e *PropertyError) Is(target error) bool {
	return target == ErrPropertyUnavailable
}

// Response is one <response> of a multistatus document.
type Response struct {
	Href   string
	Status int
	Props  map[PropName]mo.Result[*etree.Element]
}

// ParseMultistatus parses a multistatus body. A non-2xx status on a
// propstat only marks its properties unavailable.
func ParseMultistatus(body []byte) ([]Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	root := doc.Root()
	if root == nil || !is(root, PropName{DAV, "multistatus"}) {
		return nil, fmt.Errorf("%w: missing DAV:multistatus root", ErrMalformedResponse)
	}

	responses := []Response{}
	for _, el := range children(root, PropName{DAV, "response"}) {
		resp, err := parseResponse(el)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func parseResponse(el *etree.Element) (Response, error) {
	href := child(el, PropName{DAV, "href"})
	if href == nil {
		return Response{}, fmt.Errorf("%w: response without href", ErrMalformedResponse)
	}
	resp := Response{
		Href:   strings.TrimSpace(href.Text()),
		Status: 200,
		Props:  make(map[PropName]mo.Result[*etree.Element]),
	}

	if st := child(el, PropName{DAV, "status"}); st != nil {
		code, err := parseStatus(st.Text())
		if err != nil {
			return Response{}, err
		}
		resp.Status = code
	}

	for _, ps := range children(el, PropName{DAV, "propstat"}) {
		code := 200
		if st := child(ps, PropName{DAV, "status"}); st != nil {
			var err error
			if code, err = parseStatus(st.Text()); err != nil {
				return Response{}, err
			}
		}
		prop := child(ps, PropName{DAV, "prop"})
		if prop == nil {
			continue
		}
		for _, p := range prop.ChildElements() {
			name := nameOf(p)
			if code >= 200 && code < 300 {
				resp.Props[name] = mo.Ok(p)
			} else {
				resp.Props[name] = mo.Err[*etree.Element](&PropertyError{Prop: name, Status: code})
			}
		}
	}
	return resp, nil
}

// parseStatus reads the code out of a status line such as "HTTP/1.1 404 Not Found".
func parseStatus(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: invalid status line %q", ErrMalformedResponse, line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 599 {
		return 0, fmt.Errorf("%w: invalid status line %q", ErrMalformedResponse, line)
	}
	return code, nil
}

// OK reports whether the resource itself was found.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Prop returns the property element or its error marker.
func (r Response) Prop(name PropName) mo.Result[*etree.Element] {
	if v, ok := r.Props[name]; ok {
		return v
	}
	return mo.Err[*etree.Element](&PropertyError{Prop: name})
}

// Text returns the trimmed text content of a property.
func (r Response) Text(name PropName) (string, bool) {
	el, err := r.Prop(name).Get()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(allText(el)), true
}

// Hrefs returns the DAV:href values nested in a property, in order.
func (r Response) Hrefs(name PropName) []string {
	el, err := r.Prop(name).Get()
	if err != nil {
		return nil
	}
	var out []string
	for _, h := range children(el, PropName{DAV, "href"}) {
		if s := strings.TrimSpace(h.Text()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FirstHref returns the first DAV:href nested in a property.
func (r Response) FirstHref(name PropName) (string, bool) {
	hrefs := r.Hrefs(name)
	if len(hrefs) == 0 {
		return "", false
	}
	return hrefs[0], true
}

// IsCalendar reports whether resourcetype contains CalDAV calendar.
func (r Response) IsCalendar() bool {
	el, err := r.Prop(PropResourceType).Get()
	return err == nil && child(el, PropName{CalDAV, "calendar"}) != nil
}

// SupportsComponent reports whether the collection accepts comp. Collections
// that do not advertise a component set accept everything.
func (r Response) SupportsComponent(comp string) bool {
	el, err := r.Prop(PropSupportedComponentSet).Get()
	if err != nil {
		return true
	}
	for _, c := range children(el, PropName{CalDAV, "comp"}) {
		if strings.EqualFold(c.SelectAttrValue("name", ""), comp) {
			return true
		}
	}
	return false
}

// Writable reports whether current-user-privilege-set grants writing.
// A missing privilege set is treated as writable.
func (r Response) Writable() bool {
	el, err := r.Prop(PropCurrentUserPrivilegeSet).Get()
	if err != nil {
		return true
	}
	for _, priv := range children(el, PropName{DAV, "privilege"}) {
		for _, p := range priv.ChildElements() {
			if p.NamespaceURI() != DAV {
				continue
			}
			switch p.Tag {
			case "all", "write", "write-content", "bind":
				return true
			}
		}
	}
	return false
}

// ETag returns the getetag value.
func (r Response) ETag() string {
	s, _ := r.Text(PropGetETag)
	return s
}

// CalendarData decodes the calendar-data property.
func (r Response) CalendarData() mo.Result[ics.Event] {
	text, ok := r.Text(PropCalendarData)
	if !ok {
		_, err := r.Prop(PropCalendarData).Get()
		return mo.Err[ics.Event](err)
	}
	e, err := ics.Decode([]byte(text))
	if err != nil {
		return mo.Err[ics.Event](err)
	}
	return mo.Ok(e)
}
