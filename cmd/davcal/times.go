package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/davcal/davclient"
	"github.com/cyp0633/davcal/ics"
)

// Layouts accepted for instants. Values without an offset are UTC.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"20060102T150405Z",
	"20060102T150405",
	time.DateOnly,
	"20060102",
}

func parseInstant(value string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q, use ISO 8601 (e.g. 2026-03-05T09:00:00Z)", value)
}

// parseDay reads an all-day date. Full timestamps are accepted and reduced
// to their UTC date.
func parseDay(value string) (ics.Date, error) {
	for _, layout := range []string{time.DateOnly, "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ics.NewDay(t.Date()), nil
		}
	}
	t, err := parseInstant(value)
	if err != nil {
		return ics.Date{}, fmt.Errorf("invalid date %q for all-day event", value)
	}
	return ics.NewDay(t.Date()), nil
}

func parseDate(value string, allDay bool) (ics.Date, error) {
	if allDay {
		return parseDay(value)
	}
	t, err := parseInstant(value)
	if err != nil {
		return ics.Date{}, err
	}
	return ics.NewDateTime(t), nil
}

// checkOrder rejects a timed span that does not move forward, or an all-day
// span ending before it starts. All-day ends are the last day covered.
func checkOrder(start, end ics.Date) error {
	if start.AllDay {
		if end.Time.Before(start.Time) {
			return fmt.Errorf("%w: --end must be the same day or later for all-day events", davclient.ErrInvalidArgument)
		}
		return nil
	}
	if !end.Time.After(start.Time) {
		return fmt.Errorf("%w: --end must be later than --start", davclient.ErrInvalidArgument)
	}
	return nil
}

func parseRange(from, to string) (davclient.TimeRange, error) {
	if from == "" || to == "" {
		return davclient.TimeRange{}, errors.New("--from and --to are required")
	}
	start, err := parseInstant(from)
	if err != nil {
		return davclient.TimeRange{}, err
	}
	end, err := parseInstant(to)
	if err != nil {
		return davclient.TimeRange{}, err
	}
	if !end.After(start) {
		return davclient.TimeRange{}, fmt.Errorf("%w: --to must be later than --from", davclient.ErrInvalidArgument)
	}
	return davclient.TimeRange{Start: start, End: end}, nil
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
