package integration

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/syncengine/internal/domain/shared"
)

// Event type constants for the pending adjustment workflow
const (
	EventTypePendingCreated  = "PendingCreated"
	EventTypePendingApproved = "PendingApproved"
	EventTypePendingRejected = "PendingRejected"
)

// AggregateTypePendingAdjustment is the aggregate type of adjustment events
const AggregateTypePendingAdjustment = "PendingAdjustment"

// PendingAdjustmentEventTypes returns every event type the workflow emits
func PendingAdjustmentEventTypes() []string {
	return []string{EventTypePendingCreated, EventTypePendingApproved, EventTypePendingRejected}
}

// PendingAdjustmentCreatedEvent is raised when an adjustment enters the workflow
type PendingAdjustmentCreatedEvent struct {
	shared.BaseDomainEvent
	AdjustmentID int64           `json:"adjustment_id"`
	SKU          string          `json:"sku"`
	ProductID    string          `json:"product_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reason       string          `json:"reason,omitempty"`
	ExternalRef  string          `json:"external_ref,omitempty"`
}

// NewPendingAdjustmentCreatedEvent creates the event for adj
func NewPendingAdjustmentCreatedEvent(adj *PendingAdjustment) *PendingAdjustmentCreatedEvent {
	return &PendingAdjustmentCreatedEvent{
		BaseDomainEvent: newAdjustmentBase(EventTypePendingCreated, adj.ID),
		AdjustmentID:    adj.ID,
		SKU:             adj.SKU,
		ProductID:       adj.ProductID,
		Quantity:        adj.Quantity,
		Reason:          adj.Reason,
		ExternalRef:     adj.ExternalRef,
	}
}

// PendingAdjustmentApprovedEvent is raised after an adjustment is approved
type PendingAdjustmentApprovedEvent struct {
	shared.BaseDomainEvent
	AdjustmentID int64           `json:"adjustment_id"`
	SKU          string          `json:"sku"`
	Quantity     decimal.Decimal `json:"quantity"`
	ApprovedBy   string          `json:"approved_by"`
	ApprovedAt   time.Time       `json:"approved_at"`
}

// NewPendingAdjustmentApprovedEvent creates the event for adj
func NewPendingAdjustmentApprovedEvent(adj *PendingAdjustment) *PendingAdjustmentApprovedEvent {
	e := &PendingAdjustmentApprovedEvent{
		BaseDomainEvent: newAdjustmentBase(EventTypePendingApproved, adj.ID),
		AdjustmentID:    adj.ID,
		SKU:             adj.SKU,
		Quantity:        adj.Quantity,
		ApprovedBy:      adj.ApprovedBy,
	}
	if adj.ApprovedAt != nil {
		e.ApprovedAt = *adj.ApprovedAt
	}
	return e
}

// PendingAdjustmentRejectedEvent is raised after an adjustment is rejected
type PendingAdjustmentRejectedEvent struct {
	shared.BaseDomainEvent
	AdjustmentID   int64     `json:"adjustment_id"`
	SKU            string    `json:"sku"`
	RejectedBy     string    `json:"rejected_by"`
	RejectedReason string    `json:"rejected_reason"`
	RejectedAt     time.Time `json:"rejected_at"`
}

// NewPendingAdjustmentRejectedEvent creates the event for adj
func NewPendingAdjustmentRejectedEvent(adj *PendingAdjustment) *PendingAdjustmentRejectedEvent {
	e := &PendingAdjustmentRejectedEvent{
		BaseDomainEvent: newAdjustmentBase(EventTypePendingRejected, adj.ID),
		AdjustmentID:    adj.ID,
		SKU:             adj.SKU,
		RejectedBy:      adj.RejectedBy,
		RejectedReason:  adj.RejectedReason,
	}
	if adj.RejectedAt != nil {
		e.RejectedAt = *adj.RejectedAt
	}
	return e
}

func newAdjustmentBase(eventType string, id int64) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypePendingAdjustment, strconv.FormatInt(id, 10))
}
