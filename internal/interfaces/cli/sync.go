package cli

import (
	"context"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/domain/integration"
)

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:   "run [CUSTOMER|STOCK|INVOICE|all]",
		Short: "Run a sync now",
		Long: `Run a sync in the foreground and print the closed runs.

Without an argument every type runs, customers first. The run takes the
same lock as the scheduled job, so it fails while another instance is
syncing.

Exit codes:
  0 - every run succeeded
  1 - a run aborted or is already in progress
  2 - command error`,
		Example: `  syncctl run
  syncctl run stock -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			scope, err := integration.ParseSyncScope(arg)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid sync type", err)
			}

			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				runs, runErr := app.SyncJobs.RunSync(ctx, scope, triggeredBy)
				view := make(runsView, len(runs))
				for i, run := range runs {
					view[i] = appintegration.ToSyncRunResponse(run)
				}
				if len(runs) > 0 {
					if err := rootOpts.formatter(cmd).Print(view); err != nil {
						return err
					}
				}
				if runErr != nil {
					return WrapExitError(ExitFailure, "sync failed", runErr)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "by", TriggeredByCLI, "name recorded as the run's trigger")
	return cmd
}

// NewRetryCommand creates the retry command
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	var triggeredBy string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Run a retry pass over the failed record queue now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				result, err := app.SyncJobs.RunRetryPass(ctx, triggeredBy)
				if err != nil {
					return WrapExitError(ExitFailure, "retry pass failed", err)
				}
				return rootOpts.formatter(cmd).Print(retryView{result})
			})
		},
	}

	cmd.Flags().StringVar(&triggeredBy, "by", TriggeredByCLI, "name recorded as the pass's trigger")
	return cmd
}
