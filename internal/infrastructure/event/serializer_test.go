package event

import (
	"testing"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedAdjustment(t *testing.T) *integration.PendingAdjustment {
	t.Helper()
	adj, err := integration.NewPendingAdjustment("SKU-1", "P-1", decimal.RequireFromString("-12.5"), "cycle count", "orchestrator")
	require.NoError(t, err)
	adj.ID = 42
	require.NoError(t, adj.Approve("admin", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	return adj
}

func TestEventSerializer_Register(t *testing.T) {
	s := NewEventSerializer()
	s.Register("TestEvent", &testEvent{})

	assert.True(t, s.IsRegistered("TestEvent"))
	assert.False(t, s.IsRegistered("UnknownEvent"))
	assert.Equal(t, []string{"TestEvent"}, s.RegisteredTypes())
}

func TestNewIntegrationEventSerializer(t *testing.T) {
	s := NewIntegrationEventSerializer()
	assert.ElementsMatch(t, integration.PendingAdjustmentEventTypes(), s.RegisteredTypes())
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewIntegrationEventSerializer()
	original := integration.NewPendingAdjustmentApprovedEvent(approvedAdjustment(t))

	data, err := s.Serialize(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"approved_by":"admin"`)
	assert.Contains(t, string(data), `"aggregate_id":"42"`)

	decoded, err := s.Deserialize(integration.EventTypePendingApproved, data)
	require.NoError(t, err)

	got, ok := decoded.(*integration.PendingAdjustmentApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), got.EventID())
	assert.Equal(t, integration.EventTypePendingApproved, got.EventType())
	assert.Equal(t, int64(42), got.AdjustmentID)
	assert.True(t, original.Quantity.Equal(got.Quantity))
	assert.True(t, original.ApprovedAt.Equal(got.ApprovedAt))
}

func TestEventSerializer_Deserialize_Errors(t *testing.T) {
	s := NewIntegrationEventSerializer()

	_, err := s.Deserialize("UnknownEvent", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")

	_, err = s.Deserialize(integration.EventTypePendingApproved, []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}
