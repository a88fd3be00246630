package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/domain/shared"
)

const defaultPageSize = 50

// NewFailedCommand creates the failed command group
func NewFailedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and manage the failed record queue",
	}
	cmd.AddCommand(newFailedListCommand(rootOpts))
	cmd.AddCommand(newFailedResolveCommand(rootOpts))
	cmd.AddCommand(newFailedIgnoreCommand(rootOpts))
	return cmd
}

func newFailedListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status, recordType string
		runID              int64
		page, pageSize     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed records, oldest first",
		Example: `  syncctl failed list --status failed --type stock
  syncctl failed list --run-id 42 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := integration.FailedRecordFilter{Page: page, PageSize: pageSize}
			if status != "" {
				s := integration.FailedRecordStatus(strings.ToUpper(status))
				if !s.IsValid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown failed record status %q", status))
				}
				filter.Status = &s
			}
			if recordType != "" {
				t, err := integration.ParseSyncType(recordType)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --type", err)
				}
				filter.RecordType = &t
			}
			if cmd.Flags().Changed("run-id") {
				filter.SyncRunID = &runID
			}
			if page < 1 || pageSize < 1 {
				return NewExitError(ExitCommandError, "--page and --page-size must be positive")
			}

			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				records, total, err := app.FailedRecords.ListFailedRecords(ctx, filter)
				if err != nil {
					return WrapExitError(ExitCommandError, "list failed records", err)
				}
				return rootOpts.formatter(cmd).Print(failedRecordsView{
					Records:  appintegration.ToFailedRecordResponses(records),
					Total:    total,
					Page:     page,
					PageSize: pageSize,
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (FAILED|RETRYING|RESOLVED|IGNORED)")
	cmd.Flags().StringVar(&recordType, "type", "", "filter by record type (CUSTOMER|STOCK|INVOICE)")
	cmd.Flags().Int64Var(&runID, "run-id", 0, "filter by originating sync run")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", defaultPageSize, "records per page")
	return cmd
}

func newFailedResolveCommand(rootOpts *RootOptions) *cobra.Command {
	var req appintegration.ResolveFailedRecordRequest

	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark a failed record resolved, optionally resending it first",
		Long: `Mark a failed record resolved.

With --resend the record is pushed to the target again and only marked
resolved when the push succeeds.`,
		Example: `  syncctl failed resolve 17 --by alice --resolution "fixed in target"
  syncctl failed resolve 17 --by alice --resend`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				record, err := app.FailedRecords.ResolveFailedRecord(ctx, id, req)
				if err != nil {
					return commandError("resolve failed record", err)
				}
				return rootOpts.formatter(cmd).Print(failedRecordsView{
					Records: []appintegration.FailedRecordResponse{appintegration.ToFailedRecordResponse(record)},
					Total:   1,
				})
			})
		},
	}

	cmd.Flags().StringVar(&req.ResolvedBy, "by", "", "operator resolving the record (required)")
	cmd.Flags().StringVar(&req.Resolution, "resolution", "", "resolution note")
	cmd.Flags().BoolVar(&req.Resend, "resend", false, "push the record to the target again before resolving")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newFailedIgnoreCommand(rootOpts *RootOptions) *cobra.Command {
	var req appintegration.IgnoreFailedRecordRequest

	cmd := &cobra.Command{
		Use:     "ignore ID",
		Short:   "Exclude a failed record from further retries",
		Example: `  syncctl failed ignore 17 --by alice --reason "duplicate"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				record, err := app.FailedRecords.IgnoreFailedRecord(ctx, id, req)
				if err != nil {
					return commandError("ignore failed record", err)
				}
				return rootOpts.formatter(cmd).Print(failedRecordsView{
					Records: []appintegration.FailedRecordResponse{appintegration.ToFailedRecordResponse(record)},
					Total:   1,
				})
			})
		},
	}

	cmd.Flags().StringVar(&req.IgnoredBy, "by", "", "operator ignoring the record (required)")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the record is ignored")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}

// commandError maps errors the engine reported about the record itself,
// such as a wrong state or a failed resend, to ExitFailure. Anything else
// is treated as a command error.
func commandError(action string, err error) error {
	var domainErr *shared.DomainError
	var syncErr *integration.SyncError
	if errors.As(err, &domainErr) || errors.As(err, &syncErr) {
		return WrapExitError(ExitFailure, action, err)
	}
	return WrapExitError(ExitCommandError, action, err)
}
