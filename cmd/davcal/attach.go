package main

import (
	"github.com/spf13/cobra"

	"github.com/cyp0633/davcal/davclient"
)

func (a *App) newAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Manage event attachments (RFC 8607)",
	}
	cmd.AddCommand(a.newAttachAddCmd(), a.newAttachRemoveCmd())
	return cmd
}

func (a *App) newAttachAddCmd() *cobra.Command {
	var calendar, uid, file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Upload a local file and attach it to an event",
		Long: `Upload --file as a managed attachment of the event --uid. The file must pass
the attachment policy from the config (allowed extensions, optional root
directory, sensitive paths, size limit) before anything is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			file, err := requireValue("file", file)
			if err != nil {
				return err
			}
			client, err := a.Client()
			if err != nil {
				return err
			}
			res, err := client.AddAttachment(cmd.Context(), calendar, uid, file)
			if err != nil {
				return err
			}
			return a.print(attachView{
				AttachURL: res.Attachment.URI,
				Filename:  res.Attachment.Filename,
				ManagedID: res.ManagedID,
				Status:    "attached",
				UID:       uid,
			})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	cmd.Flags().StringVar(&uid, "uid", "", "event UID")
	cmd.Flags().StringVar(&file, "file", "", "local file to upload")
	for _, name := range []string{"calendar", "uid", "file"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *App) newAttachRemoveCmd() *cobra.Command {
	var calendar, uid, managedID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a managed attachment from an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := requireValue("calendar", calendar)
			if err != nil {
				return err
			}
			managedID, err := requireValue("managed-id", managedID)
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
			if _, err := client.RemoveAttachment(cmd.Context(), calendar, uid, managedID); err != nil {
				return err
			}
			return a.print(attachView{ManagedID: managedID, Status: "removed", UID: uid})
		},
	}
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar display name")
	cmd.Flags().StringVar(&uid, "uid", "", "event UID")
	cmd.Flags().StringVar(&managedID, "managed-id", "", "managed-id of the attachment")
	for _, name := range []string{"calendar", "uid", "managed-id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
