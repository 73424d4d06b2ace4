package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal carries calendar-color and calendar-order
	AppleICal = "http://apple.com/ns/ical/"
)

// prefixes used when building requests. Responses are matched by URI only.
var prefixes = map[string]string{
	DAV:            "D",
	CalDAV:         "C",
	CalendarServer: "CS",
	AppleICal:      "A",
}

// PropName is a fully qualified element name.
type PropName struct {
	Space string
	Local string
}

func (n PropName) String() string {
	return "{" + n.Space + "}" + n.Local
}

func (n PropName) qualified() string {
	return prefixes[n.Space] + ":" + n.Local
}

// Properties requested or read by the client.
var (
	PropDisplayName             = PropName{DAV, "displayname"}
	PropResourceType            = PropName{DAV, "resourcetype"}
	PropGetETag                 = PropName{DAV, "getetag"}
	PropCurrentUserPrincipal    = PropName{DAV, "current-user-principal"}
	PropCurrentUserPrivilegeSet = PropName{DAV, "current-user-privilege-set"}
	PropCalendarHomeSet         = PropName{CalDAV, "calendar-home-set"}
	PropCalendarUserAddressSet  = PropName{CalDAV, "calendar-user-address-set"}
	PropScheduleOutboxURL       = PropName{CalDAV, "schedule-outbox-URL"}
	PropSupportedComponentSet   = PropName{CalDAV, "supported-calendar-component-set"}
	PropCalendarData            = PropName{CalDAV, "calendar-data"}
	PropGetCTag                 = PropName{CalendarServer, "getctag"}
	PropCalendarColor           = PropName{AppleICal, "calendar-color"}
)

func is(e *etree.Element, name PropName) bool {
	return e != nil && e.Tag == name.Local && e.NamespaceURI() == name.Space
}

func nameOf(e *etree.Element) PropName {
	return PropName{Space: e.NamespaceURI(), Local: e.Tag}
}

// children returns the child elements of e matching name.
func children(e *etree.Element, name PropName) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if is(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func child(e *etree.Element, name PropName) *etree.Element {
	for _, c := range e.ChildElements() {
		if is(c, name) {
			return c
		}
	}
	return nil
}

// allText concatenates the character data directly under e, CDATA included.
func allText(e *etree.Element) string {
	var s string
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			s += cd.Data
		}
	}
	return s
}
