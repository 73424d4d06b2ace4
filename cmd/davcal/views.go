package main

import (
	"github.com/cyp0633/davcal/davclient"
	"github.com/cyp0633/davcal/ics"
)

// JSON views. Fields are declared in key order.

type eventView struct {
	AllDay      bool             `json:"all_day"`
	Attachments []ics.Attachment `json:"attachments,omitempty"`
	Calendar    string           `json:"calendar"`
	Description string           `json:"description,omitempty"`
	End         string           `json:"end"`
	ETag        string           `json:"etag,omitempty"`
	Href        string           `json:"href"`
	Location    string           `json:"location,omitempty"`
	Start       string           `json:"start"`
	Summary     string           `json:"summary"`
	UID         string           `json:"uid"`
}

func newEventView(se davclient.StoredEvent) eventView {
	e := se.Event
	return eventView{
		AllDay:      e.AllDay(),
		Attachments: e.Attachments(),
		Calendar:    se.Calendar,
		Description: e.Description,
		End:         e.End.String(),
		ETag:        se.ETag,
		Href:        se.Href,
		Location:    e.Location,
		Start:       e.Start.String(),
		Summary:     e.Summary,
		UID:         e.UID,
	}
}

func newEventViews(events []davclient.StoredEvent) []eventView {
	out := make([]eventView, 0, len(events))
	for _, se := range events {
		out = append(out, newEventView(se))
	}
	return out
}

type statusView struct {
	Calendar string `json:"calendar,omitempty"`
	Href     string `json:"href,omitempty"`
	Status   string `json:"status"`
	UID      string `json:"uid"`
}

type doctorView struct {
	Addresses []string `json:"addresses"`
	Calendars int      `json:"calendars"`
	Home      string   `json:"home"`
	Outbox    string   `json:"outbox,omitempty"`
	Principal string   `json:"principal"`
	Status    string   `json:"status"`
	Username  string   `json:"username,omitempty"`
}

type intervalView struct {
	Calendar string `json:"calendar,omitempty"`
	End      string `json:"end"`
	Start    string `json:"start"`
}

type calendarBusyView struct {
	Busy           []intervalView `json:"busy"`
	Calendar       string         `json:"calendar"`
	FallbackStatus int            `json:"fallback_status,omitempty"`
	Method         string         `json:"method"`
}

type freeBusyView struct {
	Busy      []intervalView     `json:"busy"`
	Calendars []calendarBusyView `json:"calendars"`
	From      string             `json:"from"`
	To        string             `json:"to"`
}

func newFreeBusyView(tr davclient.TimeRange, results []davclient.FreeBusyResult, combined []davclient.CalendarInterval) freeBusyView {
	v := freeBusyView{
		Busy:      make([]intervalView, 0, len(combined)),
		Calendars: make([]calendarBusyView, 0, len(results)),
		From:      formatInstant(tr.Start),
		To:        formatInstant(tr.End),
	}
	for _, iv := range combined {
		v.Busy = append(v.Busy, intervalView{Calendar: iv.Calendar, End: formatInstant(iv.End), Start: formatInstant(iv.Start)})
	}
	for _, r := range results {
		cv := calendarBusyView{
			Busy:           make([]intervalView, 0, len(r.Busy)),
			Calendar:       r.Calendar,
			FallbackStatus: r.FallbackStatus,
			Method:         string(r.Method),
		}
		for _, iv := range r.Busy {
			cv.Busy = append(cv.Busy, intervalView{End: formatInstant(iv.End), Start: formatInstant(iv.Start)})
		}
		v.Calendars = append(v.Calendars, cv)
	}
	return v
}

type attachView struct {
	AttachURL string `json:"attach_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	ManagedID string `json:"managed_id"`
	Status    string `json:"status"`
	UID       string `json:"uid"`
}
