package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreeBusy(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//Example//Server//EN\r\n" +
		"BEGIN:VFREEBUSY\r\n" +
		"UID:fb-1\r\n" +
		"DTSTAMP:20260305T000000Z\r\n" +
		"DTSTART:20260305T000000Z\r\n" +
		"DTEND:20260306T000000Z\r\n" +
		"FREEBUSY;FBTYPE=BUSY:20260305T090000Z/20260305T100000Z\r\n" +
		"FREEBUSY;FBTYPE=FREE:20260305T100000Z/20260305T110000Z\r\n" +
		"FREEBUSY:20260305T120000Z/PT30M,20260305T140000Z/20260305T150000Z\r\n" +
		"FREEBUSY;FBTYPE=BUSY-TENTATIVE:20260305T160000Z/P1DT1H\r\n" +
		"END:VFREEBUSY\r\n" +
		"END:VCALENDAR\r\n"

	got, err := ParseFreeBusy([]byte(data))
	require.NoError(t, err)

	at := func(day, hour, min int) time.Time { return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC) }
	assert.Equal(t, []Interval{
		{Start: at(5, 9, 0), End: at(5, 10, 0)},
		{Start: at(5, 12, 0), End: at(5, 12, 30)},
		{Start: at(5, 14, 0), End: at(5, 15, 0)},
		{Start: at(5, 16, 0), End: at(6, 17, 0)},
	}, got)
}

func TestParseFreeBusyErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not icalendar", "<html>nope</html>"},
		{"no vfreebusy", "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:x\r\nBEGIN:VEVENT\r\nUID:1\r\nDTSTAMP:20260305T000000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"},
		{"bad period", "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:x\r\nBEGIN:VFREEBUSY\r\nUID:1\r\nDTSTAMP:20260305T000000Z\r\nFREEBUSY:20260305T090000Z\r\nEND:VFREEBUSY\r\nEND:VCALENDAR\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFreeBusy([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformedCalendarData)
		})
	}
}

func TestEncodeFreeBusyRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: start.Add(9 * time.Hour), End: start.Add(10 * time.Hour)},
		{Start: start.Add(9 * time.Hour), End: start.Add(11 * time.Hour)},
	}

	data, err := EncodeFreeBusy(start, start.Add(24*time.Hour), busy)
	require.NoError(t, err)

	got, err := ParseFreeBusy(data)
	require.NoError(t, err)
	assert.Equal(t, busy, got)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "PT1H30M", want: 90 * time.Minute},
		{in: "P2W", want: 14 * 24 * time.Hour},
		{in: "+P1DT2S", want: 24*time.Hour + 2*time.Second},
		{in: "P", wantErr: true},
		{in: "PT", wantErr: true},
		{in: "P1H", wantErr: true},
		{in: "PT5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedCalendarData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
