package xml

import (
	"time"

	"github.com/beevik/etree"
)

const timeRangeLayout = "20060102T150405Z"

// newDocument creates a document whose root declares every namespace used
// by the elements below it.
func newDocument(root PropName, spaces ...string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	el := doc.CreateElement(root.qualified())
	seen := map[string]bool{}
	for _, ns := range append([]string{root.Space}, spaces...) {
		if seen[ns] {
			continue
		}
		seen[ns] = true
		el.CreateAttr("xmlns:"+prefixes[ns], ns)
	}
	return doc, el
}

func createElement(parent *etree.Element, name PropName) *etree.Element {
	return parent.CreateElement(name.qualified())
}

func serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	return doc.WriteToBytes()
}

// PropfindRequest is a PROPFIND body selecting individual properties.
type PropfindRequest struct {
	Props []PropName
}

// ToXML converts a PropfindRequest to an XML document
func (r PropfindRequest) ToXML() *etree.Document {
	spaces := make([]string, 0, len(r.Props))
	for _, p := range r.Props {
		spaces = append(spaces, p.Space)
	}
	doc, root := newDocument(PropName{DAV, "propfind"}, spaces...)
	prop := createElement(root, PropName{DAV, "prop"})
	for _, p := range r.Props {
		createElement(prop, p)
	}
	return doc
}

// Bytes serializes the request body.
func (r PropfindRequest) Bytes() ([]byte, error) {
	return serialize(r.ToXML())
}

// TimeRange is a UTC interval, start inclusive and end exclusive.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range cannot contain anything.
func (tr TimeRange) Empty() bool {
	return !tr.End.After(tr.Start)
}

func (tr TimeRange) toElement(parent *etree.Element) {
	el := createElement(parent, PropName{CalDAV, "time-range"})
	el.CreateAttr("start", tr.Start.UTC().Format(timeRangeLayout))
	el.CreateAttr("end", tr.End.UTC().Format(timeRangeLayout))
}

// CalendarQuery is a calendar-query REPORT over VEVENT components. Range and
// UID are optional filters; both may be combined.
type CalendarQuery struct {
	Range *TimeRange
	UID   string
}

// ToXML converts a CalendarQuery to an XML document
func (q CalendarQuery) ToXML() *etree.Document {
	doc, root := newDocument(PropName{CalDAV, "calendar-query"}, DAV)

	prop := createElement(root, PropName{DAV, "prop"})
	createElement(prop, PropGetETag)
	createElement(prop, PropCalendarData)

	filter := createElement(root, PropName{CalDAV, "filter"})
	vcal := createElement(filter, PropName{CalDAV, "comp-filter"})
	vcal.CreateAttr("name", "VCALENDAR")
	vevent := createElement(vcal, PropName{CalDAV, "comp-filter"})
	vevent.CreateAttr("name", "VEVENT")

	if q.Range != nil {
		q.Range.toElement(vevent)
	}
	if q.UID != "" {
		pf := createElement(vevent, PropName{CalDAV, "prop-filter"})
		pf.CreateAttr("name", "UID")
		tm := createElement(pf, PropName{CalDAV, "text-match"})
		tm.CreateAttr("collation", "i;octet")
		tm.SetText(q.UID)
	}
	return doc
}

// Bytes serializes the request body.
func (q CalendarQuery) Bytes() ([]byte, error) {
	return serialize(q.ToXML())
}

// FreeBusyQuery is a free-busy-query REPORT.
type FreeBusyQuery struct {
	Range TimeRange
}

// ToXML converts a FreeBusyQuery to an XML document
func (q FreeBusyQuery) ToXML() *etree.Document {
	doc, root := newDocument(PropName{CalDAV, "free-busy-query"})
	q.Range.toElement(root)
	return doc
}

// Bytes serializes the request body.
func (q FreeBusyQuery) Bytes() ([]byte, error) {
	return serialize(q.ToXML())
}
