package xml

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reparse(t *testing.T, body []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(body))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

func TestPropfindRequest(t *testing.T) {
	body, err := PropfindRequest{Props: []PropName{
		PropDisplayName, PropResourceType, PropSupportedComponentSet, PropCalendarColor,
	}}.Bytes()
	require.NoError(t, err)

	root := reparse(t, body)
	assert.True(t, is(root, PropName{DAV, "propfind"}))
	prop := child(root, PropName{DAV, "prop"})
	require.NotNil(t, prop)

	var got []PropName
	for _, c := range prop.ChildElements() {
		got = append(got, nameOf(c))
	}
	assert.Equal(t, []PropName{PropDisplayName, PropResourceType, PropSupportedComponentSet, PropCalendarColor}, got)
	assert.Contains(t, string(body), `<?xml version="1.0" encoding="utf-8"?>`)
}

func TestCalendarQuery(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	tr := TimeRange{
		Start: time.Date(2026, 3, 5, 1, 0, 0, 0, berlin),
		End:   time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name      string
		query     CalendarQuery
		wantRange bool
		wantUID   string
	}{
		{name: "time range", query: CalendarQuery{Range: &tr}, wantRange: true},
		{name: "uid", query: CalendarQuery{UID: "ABC-123"}, wantUID: "ABC-123"},
		{name: "both", query: CalendarQuery{Range: &tr, UID: "x@y"}, wantRange: true, wantUID: "x@y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.query.Bytes()
			require.NoError(t, err)
			root := reparse(t, body)
			assert.True(t, is(root, PropName{CalDAV, "calendar-query"}))

			prop := child(root, PropName{DAV, "prop"})
			require.NotNil(t, prop)
			assert.NotNil(t, child(prop, PropGetETag))
			assert.NotNil(t, child(prop, PropCalendarData))

			filter := child(root, PropName{CalDAV, "filter"})
			require.NotNil(t, filter)
			vcal := child(filter, PropName{CalDAV, "comp-filter"})
			require.NotNil(t, vcal)
			assert.Equal(t, "VCALENDAR", vcal.SelectAttrValue("name", ""))
			vevent := child(vcal, PropName{CalDAV, "comp-filter"})
			require.NotNil(t, vevent)
			assert.Equal(t, "VEVENT", vevent.SelectAttrValue("name", ""))

			timeRange := child(vevent, PropName{CalDAV, "time-range"})
			if tt.wantRange {
				require.NotNil(t, timeRange)
				assert.Equal(t, "20260305T000000Z", timeRange.SelectAttrValue("start", ""))
				assert.Equal(t, "20260306T000000Z", timeRange.SelectAttrValue("end", ""))
			} else {
				assert.Nil(t, timeRange)
			}

			pf := child(vevent, PropName{CalDAV, "prop-filter"})
			if tt.wantUID == "" {
				assert.Nil(t, pf)
				return
			}
			require.NotNil(t, pf)
			assert.Equal(t, "UID", pf.SelectAttrValue("name", ""))
			tm := child(pf, PropName{CalDAV, "text-match"})
			require.NotNil(t, tm)
			assert.Equal(t, "i;octet", tm.SelectAttrValue("collation", ""))
			assert.Equal(t, tt.wantUID, tm.Text())
		})
	}
}

func TestFreeBusyQuery(t *testing.T) {
	start := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	body, err := FreeBusyQuery{Range: TimeRange{Start: start, End: start}}.Bytes()
	require.NoError(t, err)

	root := reparse(t, body)
	assert.True(t, is(root, PropName{CalDAV, "free-busy-query"}))
	tr := child(root, PropName{CalDAV, "time-range"})
	require.NotNil(t, tr)
	assert.Equal(t, "20260305T000000Z", tr.SelectAttrValue("start", ""))
	assert.Equal(t, "20260305T000000Z", tr.SelectAttrValue("end", ""))
}

func TestTimeRangeEmpty(t *testing.T) {
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	assert.True(t, TimeRange{Start: now, End: now}.Empty())
	assert.True(t, TimeRange{Start: now, End: now.Add(-time.Second)}.Empty())
	assert.False(t, TimeRange{Start: now, End: now.Add(time.Second)}.Empty())
}
