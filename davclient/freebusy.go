package davclient

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/cyp0633/davcal/ics"
	"github.com/cyp0633/davcal/internal/httpclient"
	"github.com/cyp0633/davcal/internal/xml"
)

// DefaultFallbackStatuses are the free-busy-query statuses meaning the
// server does not support the report for a collection.
var DefaultFallbackStatuses = []int{400, 403}

// Method tells how busy time was obtained.
type Method string

const (
	// MethodServer is the server's VFREEBUSY reply. It is authoritative.
	MethodServer Method = "server"
	// MethodDerived is computed from an event listing; every event that is
	// not cancelled counts as busy regardless of its transparency.
	MethodDerived Method = "derived"
	// MethodNone means nothing was queried because the range is empty.
	MethodNone Method = "none"
)

// FreeBusyResult is the busy time of one calendar.
type FreeBusyResult struct {
	Calendar string         `json:"calendar"`
	Method   Method         `json:"method"`
	Busy     []ics.Interval `json:"busy"`
	// FallbackStatus is the free-busy-query status that caused a derived result.
	FallbackStatus int `json:"fallback_status,omitempty"`
}

// CalendarInterval is a busy interval tagged with its calendar.
type CalendarInterval struct {
	ics.Interval
	Calendar string `json:"calendar"`
}

// FreeBusy resolves busy time for one calendar. A free-busy-query rejected
// with one of the fallback statuses is answered from a calendar-query over
// the same range; any other failure is returned as is. Objects that fail to
// decode during the fallback are reported in the error next to the busy time
// derived from the rest.
func (c *Client) FreeBusy(ctx context.Context, calendar string, tr TimeRange) (FreeBusyResult, error) {
	if err := ValidateRange(tr); err != nil {
		return FreeBusyResult{}, opError("free busy", err).WithCalendar(calendar)
	}
	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return FreeBusyResult{}, err
	}
	return c.freeBusy(ctx, cal, tr)
}

func (c *Client) freeBusy(ctx context.Context, cal CalendarRef, tr TimeRange) (FreeBusyResult, error) {
	const op = "free busy"

	result := FreeBusyResult{Calendar: cal.Name, Busy: []ics.Interval{}}
	if tr.Empty() {
		result.Method = MethodNone
		return result, nil
	}

	body, err := xml.FreeBusyQuery{Range: tr}.Bytes()
	if err != nil {
		return FreeBusyResult{}, opError(op, err).WithCalendar(cal.Name)
	}
	resp, err := c.do(ctx, httpclient.NewReport(cal.URL, 1, body))
	if err != nil {
		return FreeBusyResult{}, opError(op, err).WithCalendar(cal.Name)
	}

	switch {
	case resp.Success():
		busy, err := ics.ParseFreeBusy(resp.Body)
		if err != nil {
			return FreeBusyResult{}, opError(op, err).WithCalendar(cal.Name)
		}
		result.Method = MethodServer
		result.Busy = clip(busy, tr)
		return result, nil
	case c.fallback[resp.StatusCode]:
		c.logger.Debug("free-busy-query unsupported, deriving from events",
			"calendar", cal.Name, "status", resp.StatusCode)
		// A partial listing still yields busy time; err is returned alongside.
		events, err := c.queryCalendar(ctx, cal, xml.CalendarQuery{Range: &tr})
		if events == nil {
			return FreeBusyResult{}, err
		}
		plain := make([]ics.Event, len(events))
		for i, se := range events {
			plain[i] = se.Event
		}
		result.Method = MethodDerived
		result.FallbackStatus = resp.StatusCode
		result.Busy = DeriveBusy(plain, tr)
		return result, err
	default:
		return FreeBusyResult{}, rejected(op, resp).WithCalendar(cal.Name)
	}
}

// DeriveBusy turns events into busy intervals clipped to tr. Each event
// yields its own interval; overlapping intervals are not coalesced. All-day
// events cover whole days. Cancelled events and intervals left empty by
// clipping are skipped.
func DeriveBusy(events []ics.Event, tr TimeRange) []ics.Interval {
	busy := []ics.Interval{}
	for _, e := range events {
		if cancelled(e) {
			continue
		}
		start, end := e.Span()
		iv := clipOne(ics.Interval{Start: start, End: end}, tr)
		if !iv.Start.Before(iv.End) {
			continue
		}
		busy = append(busy, iv)
	}
	sortIntervals(busy)
	return busy
}

func cancelled(e ics.Event) bool {
	for _, p := range e.Props.Get("STATUS") {
		if strings.EqualFold(strings.TrimSpace(p.Value()), "CANCELLED") {
			return true
		}
	}
	return false
}

func clip(intervals []ics.Interval, tr TimeRange) []ics.Interval {
	out := []ics.Interval{}
	for _, iv := range intervals {
		if iv.Start.Before(tr.End) && iv.End.After(tr.Start) {
			out = append(out, clipOne(iv, tr))
		}
	}
	sortIntervals(out)
	return out
}

func clipOne(iv ics.Interval, tr TimeRange) ics.Interval {
	if iv.Start.Before(tr.Start) {
		iv.Start = tr.Start
	}
	if iv.End.After(tr.End) {
		iv.End = tr.End
	}
	return ics.Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

func sortIntervals(busy []ics.Interval) {
	sort.SliceStable(busy, func(i, j int) bool {
		if !busy[i].Start.Equal(busy[j].Start) {
			return busy[i].Start.Before(busy[j].Start)
		}
		return busy[i].End.Before(busy[j].End)
	})
}

// FreeBusyMulti resolves several calendars (all when names is empty) and
// also returns every interval combined, ordered by start, end and calendar.
func (c *Client) FreeBusyMulti(ctx context.Context, names []string, tr TimeRange) ([]FreeBusyResult, []CalendarInterval, error) {
	if err := ValidateRange(tr); err != nil {
		return nil, nil, opError("free busy", err)
	}
	cals, err := c.selectCalendars(ctx, names)
	if err != nil {
		return nil, nil, err
	}

	results := make([]FreeBusyResult, len(cals))
	errs := make([]error, len(cals))
	c.eachCalendar(cals, func(i int, cal CalendarRef) {
		results[i], errs[i] = c.freeBusy(ctx, cal, tr)
	})

	out := make([]FreeBusyResult, 0, len(cals))
	combined := []CalendarInterval{}
	for _, r := range results {
		if r.Method == "" {
			continue
		}
		out = append(out, r)
		for _, iv := range r.Busy {
			combined = append(combined, CalendarInterval{Interval: iv, Calendar: r.Calendar})
		}
	}
	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.Calendar < b.Calendar
	})
	return out, combined, errors.Join(errs...)
}
