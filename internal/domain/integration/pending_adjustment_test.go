package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingAdjustment(t *testing.T) {
	adj, err := NewPendingAdjustment("SKU-1", "P-1", decimal.NewFromInt(2), "count correction", "katana")
	require.NoError(t, err)
	assert.Equal(t, PendingAdjustmentStatusPending, adj.Status)
	assert.Empty(t, adj.GetDomainEvents())

	_, err = NewPendingAdjustment(" ", "", decimal.NewFromInt(2), "", "")
	assert.ErrorIs(t, err, ErrInvalidAdjustment)
	_, err = NewPendingAdjustment("SKU-1", "", decimal.Zero, "", "")
	assert.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestPendingAdjustment_Approve(t *testing.T) {
	now := time.Now()
	adj, _ := NewPendingAdjustment("SKU-1", "", decimal.NewFromInt(2), "", "")
	adj.ID = 11

	require.NoError(t, adj.Approve("admin", now))
	assert.Equal(t, PendingAdjustmentStatusApproved, adj.Status)
	assert.Equal(t, "admin", adj.ApprovedBy)
	assert.Equal(t, &now, adj.ApprovedAt)

	events := adj.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePendingApproved, events[0].EventType())
	assert.Equal(t, "11", events[0].AggregateID())

	t.Run("Second approve fails and leaves state unchanged", func(t *testing.T) {
		err := adj.Approve("someone-else", now.Add(time.Minute))
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.Equal(t, "admin", adj.ApprovedBy)
		assert.Len(t, adj.GetDomainEvents(), 1)
	})

	t.Run("Reject after approve fails", func(t *testing.T) {
		err := adj.Reject("ops", "too late", now)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.Equal(t, PendingAdjustmentStatusApproved, adj.Status)
		assert.Empty(t, adj.RejectedBy)
	})
}

func TestPendingAdjustment_Reject(t *testing.T) {
	now := time.Now()
	adj, _ := NewPendingAdjustment("SKU-1", "", decimal.NewFromInt(-5), "", "")

	assert.ErrorIs(t, adj.Reject("ops", " ", now), ErrRejectReasonRequired)
	assert.ErrorIs(t, adj.Reject("", "bad count", now), ErrActorRequired)
	assert.Equal(t, PendingAdjustmentStatusPending, adj.Status)

	require.NoError(t, adj.Reject("ops", "bad count", now))
	assert.Equal(t, PendingAdjustmentStatusRejected, adj.Status)
	assert.Equal(t, "bad count", adj.RejectedReason)
	assert.ErrorIs(t, adj.Approve("admin", now), ErrInvalidStateTransition)
}

func TestPendingAdjustment_AsStockRecord(t *testing.T) {
	stock := newStock("M-9", "SKU-9")
	stock.RequiresApproval = true
	adj, err := NewPendingAdjustmentFromStock(stock, "sync")
	require.NoError(t, err)
	require.NoError(t, adj.Approve("admin", time.Now()))

	movement := adj.AsStockRecord()
	assert.Equal(t, "M-9", movement.ID)
	assert.Equal(t, "MAIN", movement.LocationCode)
	assert.False(t, movement.RequiresApproval)
	assert.Equal(t, "admin", movement.ApprovedBy)
	assert.NoError(t, movement.Validate())

	manual, _ := NewPendingAdjustment("SKU-1", "", decimal.NewFromInt(1), "", "")
	manual.ID = 4
	assert.Equal(t, "ADJ-4", manual.AsStockRecord().ID)
}
