package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// SyncRun Tests
// ---------------------------------------------------------------------------

func TestNewSyncRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	t.Run("Opens in RUNNING", func(t *testing.T) {
		run, err := NewSyncRun(SyncTypeStock, "scheduler", now)
		require.NoError(t, err)
		assert.Equal(t, SyncRunStatusRunning, run.Status)
		assert.Equal(t, now, run.StartTime)
		assert.Nil(t, run.EndTime)
		assert.Equal(t, "scheduler", run.TriggeredBy)
		assert.False(t, run.IsClosed())
	})

	t.Run("Rejects unknown type", func(t *testing.T) {
		_, err := NewSyncRun(SyncType("ORDERS"), "", now)
		assert.ErrorIs(t, err, ErrInvalidSyncType)
	})
}

func TestSyncRun_Complete(t *testing.T) {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	t.Run("Success when nothing failed", func(t *testing.T) {
		run, _ := NewSyncRun(SyncTypeInvoice, "", start)
		run.RecordSuccess()
		run.RecordSuccess()

		require.NoError(t, run.Complete(end))
		assert.Equal(t, SyncRunStatusSuccess, run.Status)
		assert.Equal(t, 2, run.Processed)
		assert.Equal(t, run.Processed, run.Succeeded+run.Failed)
		assert.Equal(t, 90*time.Second, run.Duration())
		assert.Empty(t, run.ErrorMessage)
	})

	t.Run("Failed when any record failed", func(t *testing.T) {
		run, _ := NewSyncRun(SyncTypeInvoice, "", start)
		run.RecordSuccess()
		run.RecordFailure()
		run.RecordFailure()

		require.NoError(t, run.Complete(end))
		assert.Equal(t, SyncRunStatusFailed, run.Status)
		assert.Equal(t, 3, run.Processed)
		assert.Equal(t, run.Processed, run.Succeeded+run.Failed)
		assert.Equal(t, "2 records failed", run.ErrorMessage)
	})

	t.Run("Empty run succeeds", func(t *testing.T) {
		run, _ := NewSyncRun(SyncTypeCustomer, "", start)
		require.NoError(t, run.Complete(end))
		assert.Equal(t, SyncRunStatusSuccess, run.Status)
		assert.Zero(t, run.Processed)
	})

	t.Run("Closes only once", func(t *testing.T) {
		run, _ := NewSyncRun(SyncTypeCustomer, "", start)
		require.NoError(t, run.Complete(end))
		assert.ErrorIs(t, run.Complete(end), ErrSyncRunClosed)
		assert.ErrorIs(t, run.Abort(end, "late"), ErrSyncRunClosed)
		assert.Equal(t, SyncRunStatusSuccess, run.Status)
	})
}

func TestSyncRun_Abort(t *testing.T) {
	start := time.Now()
	run, _ := NewSyncRun(SyncTypeStock, "", start)
	run.RecordSuccess()
	run.RecordFailure()

	require.NoError(t, run.Abort(start.Add(time.Second), "target unreachable"))
	assert.Equal(t, SyncRunStatusFailed, run.Status)
	assert.Equal(t, "target unreachable", run.ErrorMessage)
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
}

func TestParseSyncScope(t *testing.T) {
	tests := []struct {
		in      string
		want    []SyncType
		wantErr bool
	}{
		{in: "", want: AllSyncTypes()},
		{in: "all", want: AllSyncTypes()},
		{in: " stock ", want: []SyncType{SyncTypeStock}},
		{in: "INVOICE", want: []SyncType{SyncTypeInvoice}},
		{in: "orders", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			scope, err := ParseSyncScope(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSyncType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, scope.Types())
		})
	}
}

func TestAllSyncTypes_CustomersFirst(t *testing.T) {
	assert.Equal(t, []SyncType{SyncTypeCustomer, SyncTypeStock, SyncTypeInvoice}, AllSyncTypes())
}
