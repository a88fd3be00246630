// Package cli implements syncctl, the operator command line for the sync
// engine. Commands work directly against the engine's database and
// external systems using the same configuration as the server.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/infrastructure/config"
	"github.com/erp/syncengine/internal/infrastructure/logger"
)

// TriggeredByCLI is recorded on runs and retry passes started from syncctl
const TriggeredByCLI = "cli"

// RootOptions holds global flags and the hooks commands use to reach the engine
type RootOptions struct {
	Output  string
	Verbose bool

	// LoadConfig and OpenApp default to config.Load and bootstrap.Open
	LoadConfig func() (*config.Config, error)
	OpenApp    func(ctx context.Context, cfg *config.Config, opts bootstrap.OpenOptions) (*bootstrap.App, error)
}

// NewRootCommand creates the syncctl root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.Load,
		OpenApp:    bootstrap.Open,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the synchronization and reconciliation engine",
		Long: `syncctl runs syncs and retry passes on demand and manages the failed
record queue and the stock adjustment approval workflow.

Configuration is read like the server's: config.toml, .env and SYNC_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Output) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid output %q: must be one of %v", opts.Output, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", FormatTable, "output format (table|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))
	cmd.AddCommand(NewFailedCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Output, Writer: cmd.OutOrStdout()}
}

// loadConfig loads the configuration and builds the CLI logger, which writes
// to stderr so it never mixes with command output
func (o *RootOptions) loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	level := "warn"
	if o.Verbose {
		level = cfg.Log.Level
	}
	log, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "initialize logger", err)
	}
	return cfg, log, nil
}

// withApp opens the engine, runs fn and shuts the engine down again.
// The scheduler is never started; jobs run in the foreground under the
// same lock the server uses.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := o.OpenApp(ctx, cfg, bootstrap.OpenOptions{Logger: log})
	if err != nil {
		return WrapExitError(ExitCommandError, "open sync engine", err)
	}
	defer func() {
		if err := app.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Shutdown failed", zap.Error(err))
		}
	}()

	return fn(ctx, app)
}
