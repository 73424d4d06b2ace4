package main

import (
	"github.com/spf13/cobra"

	"github.com/cyp0633/davcal/davclient"
)

func (a *App) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the connection and show the discovered account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			session, err := client.Session(cmd.Context())
			if err != nil {
				return err
			}
			addresses := session.UserAddresses
			if addresses == nil {
				addresses = []string{}
			}
			return a.print(doctorView{
				Addresses: addresses,
				Calendars: len(session.Calendars),
				Home:      session.HomeSetURL,
				Outbox:    session.OutboxURL,
				Principal: session.PrincipalURL,
				Status:    "ok",
				Username:  a.cfg.Username,
			})
		},
	}
}

func (a *App) newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "Inspect calendar collections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List calendars that hold events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			cals, err := client.Calendars(cmd.Context())
			if err != nil {
				return err
			}
			if cals == nil {
				cals = []davclient.CalendarRef{}
			}
			return a.print(cals)
		},
	})
	return cmd
}
