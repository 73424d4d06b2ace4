// Package ics encodes and decodes the VEVENT objects exchanged with a CalDAV
// server. Only the fields the client edits are modeled; every other property
// and sub-component is carried verbatim so that partial updates never lose
// data the server or another client put there.
package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedCalendarData reports iCalendar text that cannot be decoded.
	ErrMalformedCalendarData = errors.New("malformed calendar data")
	// ErrConflictingUpdate reports a field that is both set and cleared in one change set.
	ErrConflictingUpdate = errors.New("conflicting update")
	// ErrInvalidUpdate reports a change set whose result would not be a valid event.
	ErrInvalidUpdate = errors.New("invalid update")
)

const (
	dateLayout          = "20060102"
	dateTimeLayout      = "20060102T150405"
	utcDateTimeLayout   = "20060102T150405Z"
	ProductID           = "-//cyp0633//davcal 1.0//EN"
	allDayBoundaryShift = 1 // days between the inclusive end and DTEND
)

// Date is a DTSTART/DTEND value: either a calendar date (all-day) or a
// date-time that is UTC, bound to a TZID, or floating.
type Date struct {
	Time     time.Time
	AllDay   bool
	TZID     string
	Floating bool
}

// NewDay returns an all-day date.
func NewDay(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), AllDay: true}
}

// NewDateTime returns a UTC date-time.
func NewDateTime(t time.Time) Date {
	return Date{Time: t.UTC()}
}

// Equal reports whether both values denote the same instant with the same form.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time) && d.AllDay == o.AllDay && d.TZID == o.TZID && d.Floating == o.Floating
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Time.IsZero()
}

// String renders the date the way it is exposed to callers: ISO 8601 date for
// all-day values, RFC 3339 otherwise.
func (d Date) String() string {
	if d.AllDay {
		return d.Time.Format(time.DateOnly)
	}
	return d.Time.Format(time.RFC3339)
}

// Property is one unmodeled VEVENT property, or a whole nested component such
// as VALARM, kept as unfolded raw lines.
type Property struct {
	Name  string
	Lines []string
}

// IsComponent reports whether the property holds a nested component.
func (p Property) IsComponent() bool {
	return len(p.Lines) > 1 || (len(p.Lines) == 1 && strings.HasPrefix(p.Lines[0], "BEGIN:"))
}

// Value returns the raw (escaped) value of a single-line property.
func (p Property) Value() string {
	if p.IsComponent() || len(p.Lines) == 0 {
		return ""
	}
	cl, err := parseLine(p.Lines[0])
	if err != nil {
		return ""
	}
	return cl.Value
}

// Param returns a parameter of a single-line property.
func (p Property) Param(name string) (string, bool) {
	if p.IsComponent() || len(p.Lines) == 0 {
		return "", false
	}
	cl, err := parseLine(p.Lines[0])
	if err != nil {
		return "", false
	}
	return param(cl.Params, name)
}

// Properties is an ordered bag of unmodeled properties. Repeated names keep
// their relative order.
type Properties []Property

// Get returns every property with the given name, in document order.
func (ps Properties) Get(name string) []Property {
	var out []Property
	for _, p := range ps {
		if strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	return out
}

// Names returns the distinct property names in order of first appearance.
func (ps Properties) Names() []string {
	seen := make(map[string]bool, len(ps))
	var names []string
	for _, p := range ps {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names
}

// Without returns a copy without the properties matched by drop.
func (ps Properties) Without(drop func(Property) bool) Properties {
	out := make(Properties, 0, len(ps))
	for _, p := range ps {
		if !drop(p) {
			out = append(out, p.clone())
		}
	}
	return out
}

// Clone returns a deep copy.
func (ps Properties) Clone() Properties {
	if ps == nil {
		return nil
	}
	out := make(Properties, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out
}

func (p Property) clone() Property {
	return Property{Name: p.Name, Lines: append([]string(nil), p.Lines...)}
}

// Event is the client-side view of a VEVENT.
//
// For all-day events End is the last day the event covers (inclusive); the
// codec converts it to and from the exclusive DTEND the server stores.
type Event struct {
	UID         string
	Summary     string
	Location    string
	Description string
	Start       Date
	End         Date
	Stamp       time.Time

	// Props holds every other VEVENT property and sub-component (RRULE,
	// VALARM, ATTACH, SEQUENCE, LAST-MODIFIED, ...).
	Props Properties
	// Calendar holds VCALENDAR content other than VERSION, PRODID and this
	// VEVENT: VTIMEZONE definitions, overridden instances, X- properties.
	Calendar Properties
}

// AllDay reports whether the event spans whole days.
func (e Event) AllDay() bool {
	return e.Start.AllDay
}

// Validate checks the invariants the server relies on.
func (e Event) Validate() error {
	if e.UID == "" {
		return errors.New("event has no UID")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return errors.New("event needs both start and end")
	}
	if e.Start.AllDay != e.End.AllDay {
		return errors.New("start and end must both be dates or both be date-times")
	}
	if e.End.Time.Before(e.Start.Time) {
		return fmt.Errorf("end %s is before start %s", e.End, e.Start)
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.Props = e.Props.Clone()
	out.Calendar = e.Calendar.Clone()
	return out
}

// Equal compares the modeled fields and the raw property bags.
func (e Event) Equal(o Event) bool {
	return e.UID == o.UID &&
		e.Summary == o.Summary &&
		e.Location == o.Location &&
		e.Description == o.Description &&
		e.Start.Equal(o.Start) &&
		e.End.Equal(o.End) &&
		e.Stamp.Equal(o.Stamp) &&
		equalProps(e.Props, o.Props) &&
		equalProps(e.Calendar, o.Calendar)
}

func equalProps(a, b Properties) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].Lines) != len(b[i].Lines) {
			return false
		}
		for j := range a[i].Lines {
			if a[i].Lines[j] != b[i].Lines[j] {
				return false
			}
		}
	}
	return true
}

// Overlaps reports whether the event intersects [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	s, en := e.Span()
	return s.Before(end) && en.After(start)
}

// Span returns the occupied instants, with all-day events covering whole UTC days.
func (e Event) Span() (time.Time, time.Time) {
	if e.AllDay() {
		return e.Start.Time, e.End.Time.AddDate(0, 0, allDayBoundaryShift)
	}
	return e.Start.Time, e.End.Time
}
