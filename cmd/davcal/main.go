package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cyp0633/davcal/davclient"
	"github.com/cyp0633/davcal/internal/config"
	"github.com/cyp0633/davcal/internal/credentials"
)

var version = "dev"

// App holds what every subcommand needs. The client is built on first use so
// that argument errors and `auth` commands never reach the server.
type App struct {
	configPath string
	verbose    bool
	jsonIndent int

	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	client *davclient.Client

	// newClient and readPassword are swapped out in tests.
	newClient    func(cfg *config.Config, logger *slog.Logger) (*davclient.Client, error)
	readPassword func() ([]byte, error)
}

func NewApp() *App {
	return &App{
		out:          os.Stdout,
		errOut:       os.Stderr,
		newClient:    defaultClient,
		readPassword: readPassword,
	}
}

func defaultClient(cfg *config.Config, logger *slog.Logger) (*davclient.Client, error) {
	provider := credentials.Default(cfg.KeyringService, cfg.Username)
	return davclient.FromConfig(cfg, provider, logger)
}

func (a *App) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.cfg != nil {
		level = a.cfg.SlogLevel()
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
}

func (a *App) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	path := a.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// Client returns the session client, loading config on first call.
func (a *App) Client() (*davclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	c, err := a.newClient(cfg, a.logger())
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// print writes v as JSON. Views declare their fields in key order so the
// output is stable.
func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	if a.jsonIndent > 0 {
		enc.SetIndent("", strings.Repeat(" ", a.jsonIndent))
	}
	return enc.Encode(v)
}

type errorView struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

func (a *App) printError(err error) {
	_ = a.print(errorView{Error: err.Error(), Status: davclient.StatusCode(err)})
}

func (a *App) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "davcal",
		Short:         "Read and edit CalDAV calendars from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonIndent < 0 {
				return errors.New("--json-indent must be >= 0")
			}
			return nil
		},
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/davcal/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log every request to stderr")
	flags.IntVar(&a.jsonIndent, "json-indent", 0, "pretty-print JSON output with this indent")

	cmd.AddCommand(
		a.newDoctorCmd(),
		a.newCalendarsCmd(),
		a.newEventsCmd(),
		a.newEventCmd(),
		a.newFreeBusyCmd(),
		a.newAttachCmd(),
		a.newAuthCmd(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func (a *App) Execute(args []string) int {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		a.printError(err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(NewApp().Execute(os.Args[1:]))
}
