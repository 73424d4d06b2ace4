package ics

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TZID values must resolve on hosts without a zoneinfo database
)

// component is a parsed BEGIN/END block. Entries keep properties and nested
// components in document order.
type component struct {
	name    string
	entries []entry
	raw     []string
}

type entry struct {
	line  *contentLine
	child *component
}

func (c *component) props() []contentLine {
	var out []contentLine
	for _, e := range c.entries {
		if e.line != nil {
			out = append(out, *e.line)
		}
	}
	return out
}

func (c *component) children(name string) []*component {
	var out []*component
	for _, e := range c.entries {
		if e.child != nil && e.child.name == name {
			out = append(out, e.child)
		}
	}
	return out
}

func (c *component) has(prop string) bool {
	for _, p := range c.props() {
		if p.Name == prop {
			return true
		}
	}
	return false
}

// parseComponents builds the component tree for unfolded lines.
func parseComponents(lines []string) ([]*component, error) {
	var roots []*component
	var stack []*component

	for _, raw := range lines {
		cl, err := parseLine(raw)
		if err != nil {
			return nil, err
		}
		for _, open := range stack {
			open.raw = append(open.raw, raw)
		}

		switch cl.Name {
		case "BEGIN":
			c := &component{name: strings.ToUpper(cl.Value), raw: []string{raw}}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.entries = append(parent.entries, entry{child: c})
			} else {
				roots = append(roots, c)
			}
			stack = append(stack, c)
		case "END":
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: END:%s without BEGIN", ErrMalformedCalendarData, cl.Value)
			}
			top := stack[len(stack)-1]
			if !strings.EqualFold(top.name, cl.Value) {
				return nil, fmt.Errorf("%w: END:%s closes BEGIN:%s", ErrMalformedCalendarData, cl.Value, top.name)
			}
			stack = stack[:len(stack)-1]
		default:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: property %s outside a component", ErrMalformedCalendarData, cl.Name)
			}
			top := stack[len(stack)-1]
			line := cl
			top.entries = append(top.entries, entry{line: &line})
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: BEGIN:%s is never closed", ErrMalformedCalendarData, stack[len(stack)-1].name)
	}
	return roots, nil
}

// Decode parses a VCALENDAR (or a bare VEVENT) and returns its master event.
// The master is the first VEVENT without a RECURRENCE-ID; overridden
// instances and every other calendar-level item land in Event.Calendar.
func Decode(data []byte) (Event, error) {
	lines, err := unfold(string(data))
	if err != nil {
		return Event{}, err
	}
	roots, err := parseComponents(lines)
	if err != nil {
		return Event{}, err
	}
	if len(roots) != 1 {
		return Event{}, fmt.Errorf("%w: expected one top-level component, found %d", ErrMalformedCalendarData, len(roots))
	}

	root := roots[0]
	switch root.name {
	case "VEVENT":
		return decodeEvent(root)
	case "VCALENDAR":
	default:
		return Event{}, fmt.Errorf("%w: unexpected top-level component %s", ErrMalformedCalendarData, root.name)
	}

	events := root.children("VEVENT")
	if len(events) == 0 {
		return Event{}, fmt.Errorf("%w: no VEVENT in calendar", ErrMalformedCalendarData)
	}
	master := events[0]
	for _, ev := range events {
		if !ev.has("RECURRENCE-ID") {
			master = ev
			break
		}
	}

	e, err := decodeEvent(master)
	if err != nil {
		return Event{}, err
	}
	for _, en := range root.entries {
		switch {
		case en.child == master:
		case en.child != nil:
			e.Calendar = append(e.Calendar, Property{Name: en.child.name, Lines: en.child.raw})
		case en.line.Name == "VERSION", en.line.Name == "PRODID":
		default:
			e.Calendar = append(e.Calendar, Property{Name: en.line.Name, Lines: []string{en.line.Raw}})
		}
	}
	return e, nil
}

func decodeEvent(c *component) (Event, error) {
	var e Event
	seen := make(map[string]bool)

	for _, en := range c.entries {
		if en.child != nil {
			e.Props = append(e.Props, Property{Name: en.child.name, Lines: en.child.raw})
			continue
		}
		cl := *en.line
		switch cl.Name {
		case "UID", "DTSTART", "DTEND", "DTSTAMP", "SUMMARY", "LOCATION", "DESCRIPTION":
			if seen[cl.Name] {
				return Event{}, fmt.Errorf("%w: duplicate %s", ErrMalformedCalendarData, cl.Name)
			}
			seen[cl.Name] = true
		default:
			e.Props = append(e.Props, Property{Name: cl.Name, Lines: []string{cl.Raw}})
			continue
		}

		var err error
		switch cl.Name {
		case "UID":
			e.UID = cl.Value
		case "SUMMARY":
			e.Summary, err = UnescapeText(cl.Value)
		case "LOCATION":
			e.Location, err = UnescapeText(cl.Value)
		case "DESCRIPTION":
			e.Description, err = UnescapeText(cl.Value)
		case "DTSTART":
			e.Start, err = parseDate(cl)
		case "DTEND":
			e.End, err = parseDate(cl)
		case "DTSTAMP":
			var d Date
			d, err = parseDate(cl)
			e.Stamp = d.Time.UTC()
		}
		if err != nil {
			return Event{}, err
		}
	}

	for _, required := range []string{"UID", "DTSTART", "DTEND"} {
		if !seen[required] {
			return Event{}, fmt.Errorf("%w: VEVENT has no %s", ErrMalformedCalendarData, required)
		}
	}
	if e.UID == "" {
		return Event{}, fmt.Errorf("%w: empty UID", ErrMalformedCalendarData)
	}
	if e.Start.AllDay != e.End.AllDay {
		return Event{}, fmt.Errorf("%w: DTSTART and DTEND mix date and date-time values", ErrMalformedCalendarData)
	}
	if e.Start.AllDay {
		if !e.End.Time.After(e.Start.Time) {
			return Event{}, fmt.Errorf("%w: all-day DTEND must follow DTSTART", ErrMalformedCalendarData)
		}
		e.End.Time = e.End.Time.AddDate(0, 0, -allDayBoundaryShift)
	} else if e.End.Time.Before(e.Start.Time) {
		return Event{}, fmt.Errorf("%w: DTEND before DTSTART", ErrMalformedCalendarData)
	}
	return e, nil
}

func parseDate(cl contentLine) (Date, error) {
	value := cl.Value
	kind, hasKind := param(cl.Params, "VALUE")
	tzid, hasTZ := param(cl.Params, "TZID")

	isDate := strings.EqualFold(kind, "DATE") || (!hasKind && len(value) == len(dateLayout))
	if isDate {
		t, err := time.ParseInLocation(dateLayout, value, time.UTC)
		if err != nil {
			return Date{}, fmt.Errorf("%w: invalid date %q in %s", ErrMalformedCalendarData, value, cl.Name)
		}
		return Date{Time: t, AllDay: true}, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(utcDateTimeLayout, value)
		if err != nil {
			return Date{}, fmt.Errorf("%w: invalid date-time %q in %s", ErrMalformedCalendarData, value, cl.Name)
		}
		return Date{Time: t}, nil
	}

	loc := time.UTC
	if hasTZ {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(dateTimeLayout, value, loc)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date-time %q in %s", ErrMalformedCalendarData, value, cl.Name)
	}
	if hasTZ {
		return Date{Time: t, TZID: tzid}, nil
	}
	return Date{Time: t, Floating: true}, nil
}

func formatDate(name string, d Date) string {
	switch {
	case d.AllDay:
		return name + ";VALUE=DATE:" + d.Time.Format(dateLayout)
	case d.TZID != "":
		t := d.Time
		if loc, err := time.LoadLocation(d.TZID); err == nil {
			t = t.In(loc)
		} else {
			t = t.UTC()
		}
		return name + ";TZID=" + quoteParam(d.TZID) + ":" + t.Format(dateTimeLayout)
	case d.Floating:
		return name + ":" + d.Time.Format(dateTimeLayout)
	default:
		return name + ":" + d.Time.UTC().Format(utcDateTimeLayout)
	}
}

func quoteParam(v string) string {
	if strings.ContainsAny(v, ";:,") {
		return `"` + v + `"`
	}
	return v
}

// Encode renders the event as a complete VCALENDAR object. Unmodeled
// properties and calendar-level content are written back unchanged.
func Encode(e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("encode event %q: %w", e.UID, err)
	}

	var b strings.Builder
	writeLines(&b, "BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:"+ProductID)
	for _, p := range e.Calendar {
		if !p.IsComponent() {
			writeLines(&b, p.Lines...)
		}
	}
	for _, p := range e.Calendar {
		if p.IsComponent() && p.Name == "VTIMEZONE" {
			writeLines(&b, p.Lines...)
		}
	}

	writeLines(&b, "BEGIN:VEVENT", "UID:"+e.UID)
	if !e.Stamp.IsZero() {
		writeLines(&b, "DTSTAMP:"+e.Stamp.UTC().Format(utcDateTimeLayout))
	}
	end := e.End
	if end.AllDay {
		end.Time = end.Time.AddDate(0, 0, allDayBoundaryShift)
	}
	writeLines(&b, formatDate("DTSTART", e.Start), formatDate("DTEND", end))
	for _, f := range []struct{ name, value string }{
		{"SUMMARY", e.Summary},
		{"LOCATION", e.Location},
		{"DESCRIPTION", e.Description},
	} {
		if f.value != "" {
			writeLines(&b, f.name+":"+EscapeText(f.value))
		}
	}
	for _, p := range e.Props {
		writeLines(&b, p.Lines...)
	}
	writeLines(&b, "END:VEVENT")

	for _, p := range e.Calendar {
		if p.IsComponent() && p.Name != "VTIMEZONE" {
			writeLines(&b, p.Lines...)
		}
	}
	writeLines(&b, "END:VCALENDAR")
	return []byte(b.String()), nil
}
