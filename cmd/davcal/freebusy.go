package main

import (
	"github.com/spf13/cobra"
)

func (a *App) newFreeBusyCmd() *cobra.Command {
	var (
		calendars []string
		from, to  string
	)
	cmd := &cobra.Command{
		Use:   "freebusy",
		Short: "Show busy time across calendars",
		Long: `Ask each --calendar for its busy time in [--from, --to). Servers that refuse
the free-busy query are answered from the calendar's events instead; the
"method" field of each calendar says which was used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			results, combined, err := client.FreeBusyMulti(cmd.Context(), calendars, tr)
			if err != nil {
				return err
			}
			return a.print(newFreeBusyView(tr, results, combined))
		},
	}
	cmd.Flags().StringArrayVar(&calendars, "calendar", nil, "calendar display name (repeatable)")
	cmd.Flags().StringVar(&from, "from", "", "range start, ISO 8601")
	cmd.Flags().StringVar(&to, "to", "", "range end, ISO 8601")
	_ = cmd.MarkFlagRequired("calendar")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
