package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cyp0633/davcal/internal/credentials"
)

func readPassword() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

type authView struct {
	Service  string `json:"service,omitempty"`
	Source   string `json:"source,omitempty"`
	Status   string `json:"status"`
	Username string `json:"username"`
}

func (a *App) newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored server password",
		Long: `Store the account password (for iCloud, an app-specific password) in the
system keyring. DAVCAL_USERNAME and DAVCAL_PASSWORD override it; on macOS the
login keychain is consulted last.`,
	}
	cmd.AddCommand(a.newAuthSetCmd(), a.newAuthDeleteCmd(), a.newAuthStatusCmd())
	return cmd
}

// keyring resolves the keyring entry for an optional username argument.
func (a *App) keyring(args []string) (credentials.Keyring, error) {
	cfg, err := a.config()
	if err != nil {
		return credentials.Keyring{}, err
	}
	k := credentials.Keyring{Service: cfg.KeyringService, Username: cfg.Username}
	if len(args) > 0 {
		k.Username = args[0]
	}
	if k.Username == "" {
		return k, errors.New("username is required (pass it or set username in the config)")
	}
	return k, nil
}

func (a *App) newAuthSetCmd() *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "set [username] [password]",
		Short: "Store a password in the system keyring",
		Long: `Store a password in the system keyring.

  # Interactive prompt (keeps the password out of shell history)
  davcal auth set jane@icloud.com --prompt

  # Use the username from the config
  davcal auth set --prompt`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.keyring(args)
			if err != nil {
				return err
			}
			var password string
			switch {
			case prompt:
				fmt.Fprintf(a.errOut, "Password for %s: ", k.Username)
				b, err := a.readPassword()
				fmt.Fprintln(a.errOut)
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = string(b)
			case len(args) == 2:
				password = args[1]
			default:
				return errors.New("password is required (use --prompt for interactive input)")
			}
			if err := k.Store(password); err != nil {
				return err
			}
			return a.print(authView{Service: k.Service, Status: "stored", Username: k.Username})
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "read the password interactively")
	return cmd
}

func (a *App) newAuthDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [username]",
		Short: "Remove the stored password",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.keyring(args)
			if err != nil {
				return err
			}
			if err := k.Delete(); err != nil {
				return err
			}
			return a.print(authView{Service: k.Service, Status: "deleted", Username: k.Username})
		},
	}
}

func (a *App) newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the password would be read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			cred, err := credentials.Default(cfg.KeyringService, cfg.Username).Credential(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(authView{Source: string(cred.Source), Status: "found", Username: cred.Username})
		},
	}
}
