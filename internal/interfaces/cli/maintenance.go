package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/infrastructure/migration"
)

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Close stale RUNNING runs and release stuck RETRYING records",
		Long: `Repair state left behind by a process that died mid-run. The server does
this on startup; run it by hand after a crash when the server stays down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				result, err := app.Reconciler.Reconcile(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "reconcile", err)
				}
				return rootOpts.formatter(cmd).Print(reconcileView{result})
			})
		},
	}
}

// NewStatusCommand creates the status command
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last runs per type and the queue sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				status, err := app.SyncRuns.GetSyncStatus(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "read status", err)
				}
				return rootOpts.formatter(cmd).Print(statusView{appintegration.ToSyncStatusResponse(status)})
			})
		},
	}
}

// NewMigrateCommand creates the migrate command group. It talks to
// PostgreSQL directly and does not build the engine.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withMigrator(func(m *migration.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printMigrationVersion(rootOpts, cmd, m)
			})
		},
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations, one step by default",
		Example: `  syncctl migrate down
  syncctl migrate down --steps 3
  syncctl migrate down --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && steps < 1 {
				return NewExitError(ExitCommandError, "--steps must be at least 1")
			}
			return rootOpts.withMigrator(func(m *migration.Migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				return printMigrationVersion(rootOpts, cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied and the latest embedded version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withMigrator(func(m *migration.Migrator) error {
				return printMigrationVersion(rootOpts, cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the recorded version without running migrations",
		Long: `Set the recorded version without running migrations. Use it to clear the
dirty flag after fixing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < -1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid version %q", args[0]))
			}
			return rootOpts.withMigrator(func(m *migration.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				return printMigrationVersion(rootOpts, cmd, m)
			})
		},
	})

	return cmd
}

func (o *RootOptions) withMigrator(fn func(m *migration.Migrator) error) error {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	m, err := migration.Open(cfg.Database.DSN(), log)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect to database", err)
	}
	defer func() { _ = m.Close() }()

	if err := fn(m); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitFailure, "migration failed", err)
	}
	return nil
}

func printMigrationVersion(rootOpts *RootOptions, cmd *cobra.Command, m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return WrapExitError(ExitCommandError, "read migration version", err)
	}
	versions, err := migration.Versions()
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}
	return rootOpts.formatter(cmd).Print(newMigrationView(version, dirty, versions))
}

func newMigrationView(version uint, dirty bool, available []uint) migrationView {
	view := migrationView{Version: version, Dirty: dirty}
	for _, v := range available {
		view.Latest = max(view.Latest, v)
		if v > version {
			view.Pending++
		}
	}
	return view
}
