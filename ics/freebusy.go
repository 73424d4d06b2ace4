package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// Interval is a busy period, [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseFreeBusy extracts the busy periods from the VFREEBUSY components of a
// free-busy-query reply. Periods typed FREE are skipped; every other FBTYPE
// counts as busy.
func ParseFreeBusy(data []byte) ([]Interval, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCalendarData, err)
	}

	found := false
	intervals := []Interval{}
	for _, comp := range cal.Children {
		if comp.Name != ical.CompFreeBusy {
			continue
		}
		found = true
		for _, prop := range comp.Props.Values(ical.PropFreeBusy) {
			if strings.EqualFold(prop.Params.Get("FBTYPE"), "FREE") {
				continue
			}
			for _, period := range strings.Split(prop.Value, ",") {
				iv, err := parsePeriod(strings.TrimSpace(period))
				if err != nil {
					return nil, err
				}
				intervals = append(intervals, iv)
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no VFREEBUSY component", ErrMalformedCalendarData)
	}
	return intervals, nil
}

// parsePeriod accepts both "start/end" and "start/duration" periods.
func parsePeriod(s string) (Interval, error) {
	startText, endText, ok := strings.Cut(s, "/")
	if !ok {
		return Interval{}, fmt.Errorf("%w: invalid period %q", ErrMalformedCalendarData, s)
	}
	start, err := time.Parse(utcDateTimeLayout, startText)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid period start %q", ErrMalformedCalendarData, startText)
	}
	if strings.HasPrefix(endText, "P") || strings.HasPrefix(endText, "+P") {
		d, err := parseDuration(endText)
		if err != nil {
			return Interval{}, err
		}
		return Interval{Start: start, End: start.Add(d)}, nil
	}
	end, err := time.Parse(utcDateTimeLayout, endText)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid period end %q", ErrMalformedCalendarData, endText)
	}
	return Interval{Start: start, End: end}, nil
}

// parseDuration handles the RFC 5545 dur-value grammar (PnW, PnDTnHnMnS).
func parseDuration(s string) (time.Duration, error) {
	bad := fmt.Errorf("%w: invalid duration %q", ErrMalformedCalendarData, s)
	s = strings.TrimPrefix(s, "+")
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, bad
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	n := -1
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if n < 0 {
				n = 0
			}
			n = n*10 + int(r-'0')
			continue
		case r == 'T':
			if inTime || n >= 0 {
				return 0, bad
			}
			inTime = true
			continue
		}
		if n < 0 {
			return 0, bad
		}
		unit := map[rune]time.Duration{'W': 7 * 24 * time.Hour, 'D': 24 * time.Hour}
		if inTime {
			unit = map[rune]time.Duration{'H': time.Hour, 'M': time.Minute, 'S': time.Second}
		}
		u, ok := unit[r]
		if !ok {
			return 0, bad
		}
		total += time.Duration(n) * u
		n = -1
	}
	if n >= 0 {
		return 0, bad
	}
	return total, nil
}

// EncodeFreeBusy renders intervals as a VFREEBUSY reply covering [start, end).
func EncodeFreeBusy(start, end time.Time, busy []Interval) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	fb := ical.NewComponent(ical.CompFreeBusy)
	fb.Props.SetText(ical.PropUID, strings.ToUpper(uuid.NewString()))
	fb.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	fb.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	fb.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	for _, iv := range busy {
		prop := ical.NewProp(ical.PropFreeBusy)
		prop.Params.Set("FBTYPE", "BUSY")
		prop.Value = iv.Start.UTC().Format(utcDateTimeLayout) + "/" + iv.End.UTC().Format(utcDateTimeLayout)
		fb.Props.Add(prop)
	}
	cal.Children = append(cal.Children, fb)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode free/busy: %w", err)
	}
	return buf.Bytes(), nil
}
