package davtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cyp0633/davcal/ics"
)

var exdateLayouts = []string{"20060102T150405Z", "20060102T150405", "20060102"}

// occurrences returns the instances of e that overlap [start, end), the way
// a server evaluates a time-range filter on a recurring component. TZID
// parameters on EXDATE are ignored.
func occurrences(e ics.Event, start, end time.Time) ([]ics.Interval, error) {
	first, firstEnd := e.Span()
	length := firstEnd.Sub(first)

	rules := e.Props.Get("RRULE")
	if len(rules) == 0 {
		if e.Overlaps(start, end) {
			return []ics.Interval{{Start: first, End: firstEnd}}, nil
		}
		return nil, nil
	}

	var src strings.Builder
	fmt.Fprintf(&src, "DTSTART:%s", first.UTC().Format(timeLayout))
	for _, r := range rules {
		fmt.Fprintf(&src, "\nRRULE:%s", r.Value())
	}
	set, err := rrule.StrToRRuleSet(src.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE of %s: %w", e.UID, err)
	}
	excluded, err := exdates(e)
	if err != nil {
		return nil, err
	}

	var out []ics.Interval
	for _, t := range set.Between(start.Add(-length), end, true) {
		iv := ics.Interval{Start: t, End: t.Add(length)}
		if !iv.Start.Before(end) || !iv.End.After(start) || isExcluded(t, excluded) {
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}

func isCancelled(e ics.Event) bool {
	for _, p := range e.Props.Get("STATUS") {
		if strings.EqualFold(strings.TrimSpace(p.Value()), "CANCELLED") {
			return true
		}
	}
	return false
}

func exdates(e ics.Event) ([]time.Time, error) {
	var out []time.Time
	for _, p := range e.Props.Get("EXDATE") {
		for _, v := range strings.Split(p.Value(), ",") {
			t, err := parseExdate(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad EXDATE %q on %s", v, e.UID)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func parseExdate(v string) (time.Time, error) {
	var err error
	for _, layout := range exdateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// isExcluded matches exact instants, and whole days for date-only values.
func isExcluded(t time.Time, excluded []time.Time) bool {
	for _, x := range excluded {
		if t.Equal(x) {
			return true
		}
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			y, m, d := t.UTC().Date()
			if time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Equal(x) {
				return true
			}
		}
	}
	return false
}
