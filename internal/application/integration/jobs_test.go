package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/scheduler"
)

func TestSyncJobs_OverlappingSyncsProduceOneRun(t *testing.T) {
	e := newTestEngine(t)
	sched := scheduler.NewScheduler(scheduler.NewJobGuard(zap.NewNop()), nil, zap.NewNop())
	jobs := NewSyncJobs(e.orchestrator, e.retry, sched, integration.SyncScopeAll)

	fetching := make(chan struct{})
	release := make(chan struct{})
	e.source.On("FetchCustomers", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(fetching)
			<-release
		}).
		Return([]integration.CustomerRecord{}, nil).Once()

	type result struct {
		runs []*integration.SyncRun
		err  error
	}
	done := make(chan result, 1)
	go func() {
		runs, err := jobs.RunSync(context.Background(), integration.SyncScope(integration.SyncTypeCustomer), "scheduler")
		done <- result{runs, err}
	}()
	<-fetching

	_, err := jobs.RunSync(context.Background(), integration.SyncScope(integration.SyncTypeCustomer), "operator")
	assert.ErrorIs(t, err, integration.ErrJobAlreadyRunning)

	close(release)
	first := <-done
	require.NoError(t, first.err)
	require.Len(t, first.runs, 1)
	assertRunInvariants(t, first.runs[0])

	runs, err := e.runService.ListSyncRuns(context.Background(), integration.SyncRunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	last, ok := sched.History().Last(JobNameSync)
	require.True(t, ok)
	assert.Equal(t, scheduler.ExecutionStatusSuccess, last.Status)
}

func TestSyncJobs_RunRetryPass(t *testing.T) {
	e := newTestEngine(t)
	sched := scheduler.NewScheduler(scheduler.NewJobGuard(zap.NewNop()), nil, zap.NewNop())
	jobs := NewSyncJobs(e.orchestrator, e.retry, sched, "")

	e.addMapping(t, integration.MappingTypeSKUAccount, "SKU-1", "600.01")
	e.enqueue(t, stock("m-1", "SKU-1", 2), transientCause())
	e.target.On("PushStockMovements", mock.Anything, keysOf("m-1")).Return(pushOK(1), nil).Once()

	result, err := jobs.RunRetryPass(context.Background(), "operator")
	require.NoError(t, err)
	assert.Equal(t, "operator", result.TriggeredBy)
	assert.Equal(t, 1, result.Resolved)
}
