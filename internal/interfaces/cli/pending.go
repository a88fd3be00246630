package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/bootstrap"
	"github.com/erp/syncengine/internal/domain/integration"
)

// NewPendingCommand creates the pending command group for the stock
// adjustment approval workflow
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review stock adjustments waiting for approval",
	}
	cmd.AddCommand(newPendingListCommand(rootOpts))
	cmd.AddCommand(newPendingApproveCommand(rootOpts))
	cmd.AddCommand(newPendingRejectCommand(rootOpts))
	return cmd
}

func newPendingListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status, sku    string
		page, pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List adjustments, pending ones by default",
		Example: `  syncctl pending list
  syncctl pending list --status all --sku SKU-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := integration.PendingAdjustmentFilter{SKU: sku, Page: page, PageSize: pageSize}
			if !strings.EqualFold(status, "all") {
				s := integration.PendingAdjustmentStatus(strings.ToUpper(status))
				if !s.IsValid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown adjustment status %q", status))
				}
				filter.Status = &s
			}
			if page < 1 || pageSize < 1 {
				return NewExitError(ExitCommandError, "--page and --page-size must be positive")
			}

			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				adjustments, total, err := app.Adjustments.ListPendingAdjustments(ctx, filter)
				if err != nil {
					return WrapExitError(ExitCommandError, "list adjustments", err)
				}
				return rootOpts.formatter(cmd).Print(adjustmentsView{
					Adjustments: appintegration.ToPendingAdjustmentResponses(adjustments),
					Total:       total,
					Page:        page,
					PageSize:    pageSize,
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(integration.PendingAdjustmentStatusPending), "filter by status (PENDING|APPROVED|REJECTED|all)")
	cmd.Flags().StringVar(&sku, "sku", "", "filter by SKU")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", defaultPageSize, "adjustments per page")
	return cmd
}

func newPendingApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var approvedBy string

	cmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending adjustment",
		Long: `Approve a pending adjustment. When the engine is configured to apply
approved adjustments, the movement is pushed to the target right away;
a failed push lands in the failed record queue.`,
		Example: `  syncctl pending approve 12 --by lead`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				adj, err := app.Adjustments.ApprovePendingAdjustment(ctx, id, approvedBy)
				if err != nil {
					return commandError("approve adjustment", err)
				}
				return printAdjustment(rootOpts, cmd, adj)
			})
		},
	}

	cmd.Flags().StringVar(&approvedBy, "by", "", "operator approving the adjustment (required)")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newPendingRejectCommand(rootOpts *RootOptions) *cobra.Command {
	var rejectedBy, reason string

	cmd := &cobra.Command{
		Use:     "reject ID",
		Short:   "Reject a pending adjustment",
		Example: `  syncctl pending reject 12 --by lead --reason "recount pending"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				adj, err := app.Adjustments.RejectPendingAdjustment(ctx, id, rejectedBy, reason)
				if err != nil {
					return commandError("reject adjustment", err)
				}
				return printAdjustment(rootOpts, cmd, adj)
			})
		},
	}

	cmd.Flags().StringVar(&rejectedBy, "by", "", "operator rejecting the adjustment (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the adjustment is rejected (required)")
	_ = cmd.MarkFlagRequired("by")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func printAdjustment(rootOpts *RootOptions, cmd *cobra.Command, adj *integration.PendingAdjustment) error {
	return rootOpts.formatter(cmd).Print(adjustmentsView{
		Adjustments: []appintegration.PendingAdjustmentResponse{appintegration.ToPendingAdjustmentResponse(adj)},
		Total:       1,
	})
}
