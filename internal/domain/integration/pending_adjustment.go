package integration

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/syncengine/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// PendingAdjustment Entity
// ---------------------------------------------------------------------------

// PendingAdjustmentStatus represents the approval state of an adjustment
type PendingAdjustmentStatus string

const (
	// PendingAdjustmentStatusPending is awaiting an operator decision
	PendingAdjustmentStatusPending PendingAdjustmentStatus = "PENDING"
	// PendingAdjustmentStatusApproved is terminal
	PendingAdjustmentStatusApproved PendingAdjustmentStatus = "APPROVED"
	// PendingAdjustmentStatusRejected is terminal
	PendingAdjustmentStatusRejected PendingAdjustmentStatus = "REJECTED"
)

// IsValid returns true if the status is valid
func (s PendingAdjustmentStatus) IsValid() bool {
	switch s {
	case PendingAdjustmentStatusPending, PendingAdjustmentStatusApproved, PendingAdjustmentStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for APPROVED and REJECTED
func (s PendingAdjustmentStatus) IsTerminal() bool {
	return s == PendingAdjustmentStatusApproved || s == PendingAdjustmentStatusRejected
}

// PendingAdjustment is a stock change awaiting human approval.
// It leaves PENDING exactly once; terminal states are immutable.
type PendingAdjustment struct {
	shared.EventRecorder

	ID int64
	// ExternalRef is the source movement ID when the orchestrator created the adjustment
	ExternalRef    string
	SKU            string
	ProductID      string
	LocationCode   string
	Quantity       decimal.Decimal
	Reason         string
	RequestedBy    string
	Status         PendingAdjustmentStatus
	ApprovedBy     string
	ApprovedAt     *time.Time
	RejectedBy     string
	RejectedReason string
	RejectedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPendingAdjustment creates a PENDING adjustment
func NewPendingAdjustment(sku, productID string, quantity decimal.Decimal, reason, requestedBy string) (*PendingAdjustment, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, ErrInvalidAdjustment.WithMessage("integration: pending adjustment requires a sku")
	}
	if quantity.IsZero() {
		return nil, ErrInvalidAdjustment.WithMessage("integration: pending adjustment quantity must not be zero")
	}
	now := time.Now()
	return &PendingAdjustment{
		SKU:         sku,
		ProductID:   strings.TrimSpace(productID),
		Quantity:    quantity,
		Reason:      strings.TrimSpace(reason),
		RequestedBy: strings.TrimSpace(requestedBy),
		Status:      PendingAdjustmentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewPendingAdjustmentFromStock diverts a stock movement into the approval workflow
func NewPendingAdjustmentFromStock(record StockRecord, requestedBy string) (*PendingAdjustment, error) {
	adj, err := NewPendingAdjustment(record.SKU, record.ProductID, record.Quantity, record.Reason, requestedBy)
	if err != nil {
		return nil, err
	}
	adj.ExternalRef = record.ID
	adj.LocationCode = record.LocationCode
	return adj, nil
}

// Created records the creation event once the adjustment has an ID
func (a *PendingAdjustment) Created() {
	a.AddDomainEvent(NewPendingAdjustmentCreatedEvent(a))
}

// Approve moves a PENDING adjustment to APPROVED
func (a *PendingAdjustment) Approve(by string, now time.Time) error {
	by = strings.TrimSpace(by)
	if by == "" {
		return ErrActorRequired
	}
	if a.Status != PendingAdjustmentStatusPending {
		return a.transitionError("approve")
	}
	a.Status = PendingAdjustmentStatusApproved
	a.ApprovedBy = by
	a.ApprovedAt = &now
	a.UpdatedAt = now
	a.AddDomainEvent(NewPendingAdjustmentApprovedEvent(a))
	return nil
}

// Reject moves a PENDING adjustment to REJECTED
func (a *PendingAdjustment) Reject(by, reason string, now time.Time) error {
	by = strings.TrimSpace(by)
	reason = strings.TrimSpace(reason)
	if by == "" {
		return ErrActorRequired
	}
	if reason == "" {
		return ErrRejectReasonRequired
	}
	if a.Status != PendingAdjustmentStatusPending {
		return a.transitionError("reject")
	}
	a.Status = PendingAdjustmentStatusRejected
	a.RejectedBy = by
	a.RejectedReason = reason
	a.RejectedAt = &now
	a.UpdatedAt = now
	a.AddDomainEvent(NewPendingAdjustmentRejectedEvent(a))
	return nil
}

// AsStockRecord converts an approved adjustment into the stock movement pushed to the target
func (a *PendingAdjustment) AsStockRecord() StockRecord {
	ref := a.ExternalRef
	if ref == "" {
		ref = "ADJ-" + strconv.FormatInt(a.ID, 10)
	}
	occurred := a.CreatedAt
	if a.ApprovedAt != nil {
		occurred = *a.ApprovedAt
	}
	return StockRecord{
		ID:           ref,
		SKU:          a.SKU,
		ProductID:    a.ProductID,
		LocationCode: a.LocationCode,
		Quantity:     a.Quantity,
		MovementType: "ADJUSTMENT",
		Reference:    ref,
		Reason:       a.Reason,
		OccurredAt:   occurred,
		ApprovedBy:   a.ApprovedBy,
	}
}

func (a *PendingAdjustment) transitionError(action string) error {
	return ErrInvalidStateTransition.WithMessage(
		"integration: cannot " + action + " pending adjustment " + strconv.FormatInt(a.ID, 10) + " in status " + string(a.Status))
}

// ---------------------------------------------------------------------------
// PendingAdjustmentRepository Interface
// ---------------------------------------------------------------------------

// PendingAdjustmentFilter defines filter criteria for listing adjustments
type PendingAdjustmentFilter struct {
	// Status filters by status (optional)
	Status *PendingAdjustmentStatus
	// SKU filters by SKU (optional)
	SKU string
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// PendingAdjustmentRepository persists the approval workflow
type PendingAdjustmentRepository interface {
	// Create inserts a PENDING adjustment and assigns its ID
	Create(ctx context.Context, adj *PendingAdjustment) error
	// FindByID finds an adjustment by its ID
	FindByID(ctx context.Context, id int64) (*PendingAdjustment, error)
	// FindByExternalRef finds the adjustment created for a source movement, or nil
	FindByExternalRef(ctx context.Context, ref string) (*PendingAdjustment, error)
	// FindAll lists adjustments newest first with the total matching count
	FindAll(ctx context.Context, filter PendingAdjustmentFilter) ([]PendingAdjustment, int64, error)
	// Transition persists a decided adjustment only if the stored row is still PENDING.
	// Returns ErrInvalidStateTransition otherwise, leaving the row unchanged.
	Transition(ctx context.Context, adj *PendingAdjustment) error
}
