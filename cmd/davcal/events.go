package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/davcal/davclient"
	"github.com/cyp0633/davcal/ics"
)

const defaultListWindow = 7 * 24 * time.Hour

func requireValue(flag, value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", fmt.Errorf("%w: --%s must not be empty", davclient.ErrInvalidArgument, flag)
	}
	return clean, nil
}

func (a *App) newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List, create, update and delete events",
	}
	cmd.AddCommand(
		a.newEventsListCmd(),
		a.newEventsCreateCmd(),
		a.newEventsUpdateCmd(),
		a.newEventsDeleteCmd(),
	)
	return cmd
}

func (a *App) newEventsListCmd() *cobra.Command {
	var (
		calendars []string
		from, to  string
		query     string
		maxItems  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events overlapping a time range across calendars",
		Long: `List events overlapping [--from, --to) in every --calendar (all calendars
when none is given). The range defaults to the next seven days. Results are
merged and ordered by start time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxItems < 0 {
				return fmt.Errorf("%w: --max must be >= 0", davclient.ErrInvalidArgument)
			}
			now := time.Now().UTC().Truncate(time.Second)
			if from == "" {
				from = formatInstant(now)
			}
			if to == "" {
				to = formatInstant(now.Add(defaultListWindow))
			}
			tr, err := parseRange(from, to)
			if err != nil {
				return err
			}
			for i, name := range calendars {
				if calendars[i], err = requireValue("calendar", name); err != nil {
					return err
				}
			}

			client, err := a.Client()
			if err != nil {
				return err
			}
			events, err := client.ListEvents(cmd.Context(), davclient.ListOptions{
				Calendars: calendars,
				Range:     &tr,
				Query:     query,
				Max:       maxItems,
			})
			if err != nil {
				return err
			}
			return a.print(newEventViews(events))
		},
	}
	cmd.Flags().StringArrayVar(&calendars, "calendar", nil, "calendar display name (repeatable)")
	cmd.Flags().StringVar(&from, "from", "", "range start, ISO 8601 (default now)")
	cmd.Flags().StringVar(&to, "to", "", "range end, ISO 8601 (default now + 7 days)")
	cmd.Flags().StringVar(&query, "query", "", "keep events whose summary, location or description contains this text")
	cmd.Flags().IntVar(&maxItems, "max", 0, "return at most this many events")
	return cmd
}

func (a *App) newEventsCreateCmd() *cobra.Command {
	var (
		calendar, summary     string
		start, end            string
		location, description string
		allDay                bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Long: `Create an event in --calendar. With --all-day, --start and --end are dates and
--end is the last day the event covers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			summary, err := requireValue("summary", summary)
			if err != nil {
				return err
			}
			s, err := parseDate(start, allDay)
			if err != nil {
				return err
			}
			e, err := parseDate(end, allDay)
			if err != nil {
				return err
			}
			if err := checkOrder(s, e); err != nil {
				return err
			}

			client, err := a.Client()
			if err != nil {
				return err
			}
			created, err := client.CreateEvent(cmd.Context(), calendar, ics.Event{
				Summary:     summary,
				Location:    location,
				Description: description,
				Start:       s,
				End:         e,
			})
			if err != nil {
				return err
			}
			return a.print(statusView{Calendar: created.Calendar, Href: created.Href, Status: "created", UID: created.Event.UID})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	cmd.Flags().StringVar(&summary, "summary", "", "event title")
	cmd.Flags().StringVar(&start, "start", "", "start, ISO 8601")
	cmd.Flags().StringVar(&end, "end", "", "end, ISO 8601")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&allDay, "all-day", false, "create an all-day event")
	for _, name := range []string{"calendar", "summary", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *App) newEventsUpdateCmd() *cobra.Command {
	var (
		calendar, uid         string
		summary               string
		start, end            string
		location, description string
		allDay                bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change fields of an existing event",
		Long: `Change the given fields of the event --uid and keep everything else, including
alarms, attachments and recurrence rules. Passing an empty --location or
--description removes that field.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			if err := davclient.ValidateUID(uid); err != nil {
				return err
			}
			flags := cmd.Flags()
			var changes ics.Changes
			changes.Summary = textChange(flags.Changed("summary"), summary)
			changes.Location = textChange(flags.Changed("location"), location)
			changes.Description = textChange(flags.Changed("description"), description)
			moving := flags.Changed("start") || flags.Changed("end") || allDay
			if changes.IsEmpty() && !moving {
				return fmt.Errorf("%w: events update requires at least one field to modify", davclient.ErrInvalidArgument)
			}

			client, err := a.Client()
			if err != nil {
				return err
			}
			if moving {
				current, err := client.GetEvent(cmd.Context(), calendar, uid)
				if err != nil {
					return err
				}
				s, e, err := movedDates(current.Event, flags.Changed("start"), start, flags.Changed("end"), end, allDay)
				if err != nil {
					return err
				}
				changes.Start = ics.Set(s)
				changes.End = ics.Set(e)
			}

			updated, err := client.UpdateEvent(cmd.Context(), calendar, uid, changes)
			if err != nil {
				return err
			}
			return a.print(statusView{Calendar: updated.Calendar, Href: updated.Href, Status: "updated", UID: uid})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	cmd.Flags().StringVar(&uid, "uid", "", "event UID")
	cmd.Flags().StringVar(&summary, "summary", "", "new title")
	cmd.Flags().StringVar(&start, "start", "", "new start, ISO 8601")
	cmd.Flags().StringVar(&end, "end", "", "new end, ISO 8601")
	cmd.Flags().StringVar(&location, "location", "", "new location (empty removes it)")
	cmd.Flags().StringVar(&description, "description", "", "new description (empty removes it)")
	cmd.Flags().BoolVar(&allDay, "all-day", false, "make the event all-day")
	_ = cmd.MarkFlagRequired("calendar")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func textChange(changed bool, value string) ics.Change[string] {
	switch {
	case !changed:
		return ics.Change[string]{}
	case value == "":
		return ics.Clear[string]()
	default:
		return ics.Set(value)
	}
}

// movedDates works out the new start and end. Values not given keep the
// current ones; an event that is or becomes all-day has both reduced to dates.
func movedDates(current ics.Event, startSet bool, start string, endSet bool, end string, allDay bool) (ics.Date, ics.Date, error) {
	allDay = allDay || current.AllDay()
	s, e := current.Start, current.End
	var err error
	if startSet {
		if s, err = parseDate(start, allDay); err != nil {
			return s, e, err
		}
	}
	if endSet {
		if e, err = parseDate(end, allDay); err != nil {
			return s, e, err
		}
	}
	if allDay {
		s, e = asDay(s), asDay(e)
	}
	return s, e, checkOrder(s, e)
}

func asDay(d ics.Date) ics.Date {
	if d.AllDay {
		return d
	}
	return ics.NewDay(d.Time.UTC().Date())
}

func (a *App) newEventsDeleteCmd() *cobra.Command {
	var calendar, uid string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			if err := davclient.ValidateUID(uid); err != nil {
				return err
			}
			client, err := a.Client()
			if err != nil {
				return err
			}
			if err := client.DeleteEvent(cmd.Context(), calendar, uid); err != nil {
				return err
			}
			return a.print(statusView{Calendar: calendar, Status: "deleted", UID: uid})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	cmd.Flags().StringVar(&uid, "uid", "", "event UID")
	_ = cmd.MarkFlagRequired("calendar")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func (a *App) newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inspect a single event",
	}
	var calendar, uid string
	get := &cobra.Command{
		Use:   "get",
		Short: "Show one event by UID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			se, err := a.getEvent(cmd.Context(), calendar, uid)
			if err != nil {
				return err
			}
			return a.print(newEventView(se))
		},
	}
	get.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	get.Flags().StringVar(&uid, "uid", "", "event UID")
	_ = get.MarkFlagRequired("calendar")
	_ = get.MarkFlagRequired("uid")
	cmd.AddCommand(get)
	return cmd
}

func (a *App) getEvent(ctx context.Context, calendar, uid string) (davclient.StoredEvent, error) {
	if err := davclient.ValidateUID(uid); err != nil {
		return davclient.StoredEvent{}, err
	}
	client, err := a.Client()
	if err != nil {
		return davclient.StoredEvent{}, err
	}
	return client.GetEvent(ctx, calendar, uid)
}
