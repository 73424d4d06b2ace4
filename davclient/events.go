package davclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyp0633/davcal/ics"
	"github.com/cyp0633/davcal/internal/httpclient"
	"github.com/cyp0633/davcal/internal/xml"
)

// StoredEvent is an event together with where it lives on the server.
type StoredEvent struct {
	Calendar string
	Href     string
	ETag     string
	Event    ics.Event
}

// ListOptions selects events across calendars.
type ListOptions struct {
	// Calendars are display names; empty means every calendar.
	Calendars []string
	// Range restricts results to events overlapping it. Nil lists everything.
	Range *TimeRange
	// Query keeps events whose summary, location or description contains
	// it, ignoring case.
	Query string
	// Max limits the merged result; 0 is unlimited.
	Max int
}

// ValidateRange checks that a range does not end before it starts.
func ValidateRange(tr TimeRange) error {
	if tr.End.Before(tr.Start) {
		return fmt.Errorf("%w: range end %s is before start %s", ErrInvalidArgument,
			tr.End.UTC().Format(time.RFC3339), tr.Start.UTC().Format(time.RFC3339))
	}
	return nil
}

// ListEvents queries each selected calendar with its own REPORT and merges
// the results by start time, then UID. When some calendars fail, the events
// of the others are returned together with the joined errors.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) ([]StoredEvent, error) {
	if opts.Range != nil {
		if err := ValidateRange(*opts.Range); err != nil {
			return nil, opError("list events", err)
		}
	}
	cals, err := c.selectCalendars(ctx, opts.Calendars)
	if err != nil {
		return nil, err
	}
	if opts.Range != nil && opts.Range.Empty() {
		return []StoredEvent{}, nil
	}

	results := make([][]StoredEvent, len(cals))
	errs := make([]error, len(cals))
	c.eachCalendar(cals, func(i int, cal CalendarRef) {
		results[i], errs[i] = c.queryCalendar(ctx, cal, xml.CalendarQuery{Range: opts.Range})
	})

	merged := mergeEvents(results)
	if q := strings.ToLower(opts.Query); q != "" {
		filtered := merged[:0]
		for _, se := range merged {
			if matches(se.Event, q) {
				filtered = append(filtered, se)
			}
		}
		merged = filtered
	}
	if opts.Max > 0 && len(merged) > opts.Max {
		merged = merged[:opts.Max]
	}
	return merged, errors.Join(errs...)
}

// eachCalendar runs fn for every calendar, at most c.parallel at a time.
func (c *Client) eachCalendar(cals []CalendarRef, fn func(int, CalendarRef)) {
	if c.parallel <= 1 || len(cals) <= 1 {
		for i, cal := range cals {
			fn(i, cal)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i, cal := range cals {
		i, cal := i, cal
		g.Go(func() error {
			fn(i, cal)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Client) selectCalendars(ctx context.Context, names []string) ([]CalendarRef, error) {
	if len(names) == 0 {
		return c.Calendars(ctx)
	}
	out := make([]CalendarRef, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		cal, err := c.Calendar(ctx, name)
		if err != nil {
			return nil, err
		}
		if seen[cal.URL] {
			continue
		}
		seen[cal.URL] = true
		out = append(out, cal)
	}
	return out, nil
}

// mergeEvents flattens per-calendar results into a deterministic order.
func mergeEvents(results [][]StoredEvent) []StoredEvent {
	merged := []StoredEvent{}
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.Event.Start.Time.Equal(b.Event.Start.Time) {
			return a.Event.Start.Time.Before(b.Event.Start.Time)
		}
		if a.Event.UID != b.Event.UID {
			return a.Event.UID < b.Event.UID
		}
		if a.Calendar != b.Calendar {
			return a.Calendar < b.Calendar
		}
		return a.Href < b.Href
	})
	return merged
}

func matches(e ics.Event, lowerQuery string) bool {
	for _, field := range []string{e.Summary, e.Location, e.Description} {
		if strings.Contains(strings.ToLower(field), lowerQuery) {
			return true
		}
	}
	return false
}

// queryCalendar runs one calendar-query REPORT. Objects whose calendar
// data cannot be decoded are reported in the error; the others are kept.
func (c *Client) queryCalendar(ctx context.Context, cal CalendarRef, q xml.CalendarQuery) ([]StoredEvent, error) {
	const op = "query calendar"

	body, err := q.Bytes()
	if err != nil {
		return nil, opError(op, err).WithCalendar(cal.Name)
	}
	resp, err := c.do(ctx, httpclient.NewReport(cal.URL, 1, body))
	if err != nil {
		return nil, opError(op, err).WithCalendar(cal.Name)
	}
	if !resp.Success() {
		return nil, rejected(op, resp).WithCalendar(cal.Name)
	}
	responses, err := xml.ParseMultistatus(resp.Body)
	if err != nil {
		return nil, opError(op, err).WithCalendar(cal.Name)
	}

	events := []StoredEvent{}
	var errs []error
	for _, r := range responses {
		if !r.OK() {
			continue
		}
		e, err := r.CalendarData().Get()
		if errors.Is(err, xml.ErrPropertyUnavailable) {
			continue
		}
		if err != nil {
			errs = append(errs, opError(op, err).WithCalendar(cal.Name).WithHref(r.Href))
			continue
		}
		// Servers expand recurring masters themselves; only single
		// instances are checked against the range here.
		if q.Range != nil && len(e.Props.Get("RRULE")) == 0 && !e.Overlaps(q.Range.Start, q.Range.End) {
			continue
		}
		if q.UID != "" && e.UID != q.UID {
			continue
		}
		events = append(events, StoredEvent{
			Calendar: cal.Name,
			Href:     resolve(resp, cal.URL, r.Href),
			ETag:     r.ETag(),
			Event:    e,
		})
	}
	c.logger.Debug("calendar query complete", "calendar", cal.Name, "events", len(events))
	return events, errors.Join(errs...)
}

// objectURL is where an event with uid is created in cal.
func objectURL(cal CalendarRef, uid string) string {
	base := cal.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(uid) + ".ics"
}

// GetEvent fetches an event by UID, first at its conventional object path
// and then with a UID-filtered calendar-query.
func (c *Client) GetEvent(ctx context.Context, calendar, uid string) (StoredEvent, error) {
	if err := ValidateUID(uid); err != nil {
		return StoredEvent{}, opError("get event", err).WithUID(uid)
	}
	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return StoredEvent{}, err
	}
	return c.fetch(ctx, cal, uid)
}

func (c *Client) fetch(ctx context.Context, cal CalendarRef, uid string) (StoredEvent, error) {
	const op = "get event"

	href := objectURL(cal, uid)
	resp, err := c.do(ctx, httpclient.NewGet(href))
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	switch {
	case resp.Success():
		e, err := ics.Decode(resp.Body)
		if err != nil {
			return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
		}
		if e.UID == uid {
			return StoredEvent{
				Calendar: cal.Name,
				Href:     href,
				ETag:     resp.Header.Get("ETag"),
				Event:    e,
			}, nil
		}
		c.logger.Debug("object path holds another UID", "href", href, "uid", e.UID)
	case resp.StatusCode == 404:
	default:
		return StoredEvent{}, rejected(op, resp).WithCalendar(cal.Name).WithUID(uid)
	}

	found, err := c.queryCalendar(ctx, cal, xml.CalendarQuery{UID: uid})
	if len(found) > 0 {
		return found[0], nil
	}
	if err != nil {
		return StoredEvent{}, err
	}
	return StoredEvent{}, opError(op, ErrNotFound).WithCalendar(cal.Name).WithUID(uid)
}

// CreateEvent stores e as a new object. An empty UID is replaced by a
// generated one; an existing object is never overwritten.
func (c *Client) CreateEvent(ctx context.Context, calendar string, e ics.Event) (StoredEvent, error) {
	const op = "create event"

	e = e.Clone()
	if e.UID == "" {
		e.UID = c.newUID()
	}
	if err := ValidateUID(e.UID); err != nil {
		return StoredEvent{}, opError(op, err).WithUID(e.UID)
	}
	e.Stamp = c.now().UTC().Truncate(time.Second)
	data, err := ics.Encode(e)
	if err != nil {
		return StoredEvent{}, opError(op, fmt.Errorf("%w: %v", ErrInvalidArgument, err)).WithUID(e.UID)
	}

	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return StoredEvent{}, err
	}
	return c.put(ctx, op, cal, objectURL(cal, e.UID), e, data, true)
}

func (c *Client) put(ctx context.Context, op string, cal CalendarRef, href string, e ics.Event, data []byte, createOnly bool) (StoredEvent, error) {
	resp, err := c.do(ctx, httpclient.NewPut(href, data, createOnly))
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(e.UID)
	}
	if !resp.Success() {
		return StoredEvent{}, rejected(op, resp).WithCalendar(cal.Name).WithUID(e.UID)
	}
	return StoredEvent{
		Calendar: cal.Name,
		Href:     href,
		ETag:     resp.Header.Get("ETag"),
		Event:    e,
	}, nil
}

// UpdateEvent fetches the event, applies changes and writes it back to the
// same object. There is no If-Match: a concurrent edit between the fetch and
// the write is overwritten.
func (c *Client) UpdateEvent(ctx context.Context, calendar, uid string, changes ics.Changes) (StoredEvent, error) {
	const op = "update event"

	if err := ValidateUID(uid); err != nil {
		return StoredEvent{}, opError(op, err).WithUID(uid)
	}
	if changes.IsEmpty() {
		return StoredEvent{}, opError(op, fmt.Errorf("%w: no changes", ErrInvalidArgument)).WithUID(uid)
	}
	if err := changes.Check(); err != nil {
		return StoredEvent{}, opError(op, err).WithUID(uid)
	}

	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return StoredEvent{}, err
	}
	current, err := c.fetch(ctx, cal, uid)
	if err != nil {
		return StoredEvent{}, err
	}
	updated, err := ics.ApplyAt(current.Event, changes, c.now())
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	data, err := ics.Encode(updated)
	if err != nil {
		return StoredEvent{}, opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	return c.put(ctx, op, cal, current.Href, updated, data, false)
}

// DeleteEvent removes the object holding uid.
func (c *Client) DeleteEvent(ctx context.Context, calendar, uid string) error {
	const op = "delete event"

	if err := ValidateUID(uid); err != nil {
		return opError(op, err).WithUID(uid)
	}
	cal, err := c.Calendar(ctx, calendar)
	if err != nil {
		return err
	}
	current, err := c.fetch(ctx, cal, uid)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, httpclient.NewDelete(current.Href))
	if err != nil {
		return opError(op, err).WithCalendar(cal.Name).WithUID(uid)
	}
	if !resp.Success() {
		return rejected(op, resp).WithCalendar(cal.Name).WithUID(uid)
	}
	return nil
}
