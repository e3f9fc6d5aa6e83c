// Package cli is the gotask command line front end. Each command drives the
// task state store the way a screen would: it loads the list, opens a form,
// submits it and reports the outcome as a short notification.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/client"
	"github.com/BuzzLyutic/gotask/internal/config"
	"github.com/BuzzLyutic/gotask/internal/state"
)

// App holds what every command needs. The store is built from the config
// right before a command runs, after flags have been applied.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
	store  *state.Store
}

func NewApp(cfg config.Config, logger *zap.Logger, out io.Writer) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, out: out}
}

// NewRootCommand creates the root cobra command with global flags
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "gotask",
		Short: "Manage tasks stored on a gotask server",
		Long: `gotask keeps a local view of the tasks on a gotask server and changes
them one confirmed request at a time.

EXAMPLES:
  gotask list
  gotask create --name "Buy milk" --description "2%"
  gotask edit 1f3c... --due 2025-03-01
  gotask toggle 1f3c... 9a7b...
  gotask delete 9a7b...
  gotask export --dir ~/Downloads

CONFIGURATION:
  Priority order: command-line flags > environment variables > config file > defaults

    GOTASK_URL           Server base URL (default: http://localhost:8080)
    GOTASK_TOKEN         Bearer token sent with every request
    GOTASK_TIMEOUT       Per-request timeout (default: 10s)
    GOTASK_EXPORT_DIR    Where export saves the CSV (default: .)
    GOTASK_LOAD_RETRIES  Retries when the server is unreachable (default: 2)
    GOTASK_CONFIG        TOML config file
    WORKER_COUNT         Parallel toggles/deletes (default: 3)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.applyFlags(cmd); err != nil {
				return err
			}
			app.store = app.newStore(cmd.Context())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("url", "", "Server base URL (overrides GOTASK_URL)")
	flags.String("token", "", "Bearer token (overrides GOTASK_TOKEN)")
	flags.Duration("timeout", 0, "Per-request timeout (overrides GOTASK_TIMEOUT)")
	flags.Int("workers", 0, "Parallel toggles/deletes (overrides WORKER_COUNT)")

	root.AddCommand(
		app.listCommand(),
		app.createCommand(),
		app.editCommand(),
		app.intentCommand("toggle", "Toggle completion of one or more tasks"),
		app.intentCommand("delete", "Delete one or more tasks"),
		app.exportCommand(),
	)
	return root
}

func (a *App) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if v, _ := flags.GetString("url"); v != "" {
		a.cfg.Client.BaseURL = v
	}
	if v, _ := flags.GetString("token"); v != "" {
		a.cfg.Client.Token = v
	}
	if v, _ := flags.GetDuration("timeout"); v > 0 {
		a.cfg.Client.Timeout = v
	}
	if v, _ := flags.GetInt("workers"); v > 0 {
		a.cfg.WorkerCount = v
	}
	if a.cfg.Client.BaseURL == "" {
		return fmt.Errorf("no server URL configured")
	}
	return nil
}

func (a *App) newStore(ctx context.Context) *state.Store {
	if ctx == nil {
		ctx = context.Background()
	}
	hc := client.NewHTTPClient(ctx, a.cfg.Client.Token, a.cfg.Client.Timeout)
	c := client.New(a.cfg.Client.BaseURL, hc, a.logger)
	return state.NewStore(c, a.logger, state.WithLoadRetries(a.cfg.Client.LoadRetries))
}

func (a *App) notify(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format+"\n", args...)
}
