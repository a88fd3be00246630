package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/infrastructure/logger"
)

func TestIntervalTrigger_FiresOnInterval(t *testing.T) {
	history := NewHistory(10)
	var runs atomic.Int32
	trigger := NewIntervalTrigger(
		IntervalTriggerConfig{Name: JobRetry, Interval: 20 * time.Millisecond, RunOnStart: true},
		func(ctx context.Context, triggeredBy string) error {
			assert.Equal(t, TriggeredByScheduler, triggeredBy)
			runs.Add(1)
			return nil
		},
		NewJobGuard(zap.NewNop()), history, zap.NewNop())

	require.NoError(t, trigger.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, trigger.NextFire().IsZero())
	require.NoError(t, trigger.Stop(context.Background()))

	assert.False(t, trigger.IsRunning())
	assert.True(t, trigger.NextFire().IsZero())
	last, ok := history.Last(JobRetry)
	require.True(t, ok)
	assert.Equal(t, ExecutionStatusSuccess, last.Status)
}

func TestIntervalTrigger_RejectsZeroInterval(t *testing.T) {
	trigger := NewIntervalTrigger(IntervalTriggerConfig{Name: JobSync}, nil, NewJobGuard(zap.NewNop()), nil, zap.NewNop())
	assert.ErrorIs(t, trigger.Start(context.Background()), ErrInvalidConfig)
}

func TestIntervalTrigger_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	trigger := NewIntervalTrigger(
		IntervalTriggerConfig{Name: JobSync, Interval: time.Hour, RunOnStart: true},
		func(ctx context.Context, triggeredBy string) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		NewJobGuard(zap.NewNop()), NewHistory(10), zap.NewNop())

	require.NoError(t, trigger.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
}

func TestIntervalTrigger_JobTimeout(t *testing.T) {
	history := NewHistory(10)
	trigger := NewIntervalTrigger(
		IntervalTriggerConfig{Name: JobSync, Interval: time.Hour, Timeout: 10 * time.Millisecond},
		func(ctx context.Context, triggeredBy string) error {
			<-ctx.Done()
			return ctx.Err()
		},
		NewJobGuard(zap.NewNop()), history, zap.NewNop())

	err := trigger.RunNow(context.Background(), "operator")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	last, ok := history.Last(JobSync)
	require.True(t, ok)
	assert.Equal(t, ExecutionStatusFailed, last.Status)
	assert.Equal(t, "operator", last.TriggeredBy)
	assert.NotEmpty(t, last.Error)
}

// Overlapping triggers produce exactly one execution of the job
func TestScheduler_OverlappingTriggersRunOnce(t *testing.T) {
	s := NewScheduler(NewJobGuard(zap.NewNop()), NewHistory(10), zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	s.Register(IntervalTriggerConfig{Name: JobSync, Interval: time.Hour}, func(ctx context.Context, triggeredBy string) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), JobSync, "scheduler") }()
	<-started

	err := s.RunNow(context.Background(), JobSync, "operator")
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	status := s.Status()
	require.Len(t, status, 1)
	assert.True(t, status[0].Executing)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())

	recent := s.History().Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, ExecutionStatusSuccess, recent[0].Status)
	assert.Equal(t, ExecutionStatusSkipped, recent[1].Status)
}

func TestScheduler_StartStopAndUnknownJob(t *testing.T) {
	s := NewScheduler(NewJobGuard(zap.NewNop()), nil, zap.NewNop())
	s.Register(IntervalTriggerConfig{Name: JobSync, Interval: time.Hour}, func(ctx context.Context, triggeredBy string) error { return nil })
	s.Register(IntervalTriggerConfig{Name: JobRetry, Interval: 24 * time.Hour}, func(ctx context.Context, triggeredBy string) error {
		return errors.New("retry failed")
	})

	require.NoError(t, s.Start(context.Background()))
	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, JobRetry, status[0].Name)
	assert.Equal(t, "24h0m0s", status[0].Interval)
	assert.True(t, status[1].Running)

	assert.Error(t, s.RunNow(context.Background(), JobRetry, "operator"))
	assert.ErrorIs(t, s.RunNow(context.Background(), "unknown", "operator"), ErrJobNotFound)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Status()[0].Running)
	require.NotNil(t, s.Status()[0].LastExecution)
	assert.Equal(t, ExecutionStatusFailed, s.Status()[0].LastExecution.Status)
}

func TestScheduler_RunWithSharesTheJobGuard(t *testing.T) {
	s := NewScheduler(NewJobGuard(zap.NewNop()), NewHistory(10), zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	s.Register(IntervalTriggerConfig{Name: JobSync, Interval: time.Hour}, func(ctx context.Context, triggeredBy string) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), JobSync, TriggeredByScheduler) }()
	<-started

	var called bool
	err := s.RunWith(context.Background(), JobSync, "operator", func(ctx context.Context, triggeredBy string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	assert.False(t, called)

	close(release)
	require.NoError(t, <-done)

	err = s.RunWith(context.Background(), "adhoc", "operator", func(ctx context.Context, triggeredBy string) error {
		assert.Equal(t, "operator", triggeredBy)
		return nil
	})
	require.NoError(t, err)
	last, ok := s.History().Last("adhoc")
	require.True(t, ok)
	assert.Equal(t, ExecutionStatusSuccess, last.Status)
}

func TestScheduler_RunWithTagsTheJobContext(t *testing.T) {
	s := NewScheduler(NewJobGuard(zap.NewNop()), nil, zap.NewNop())

	var job string
	err := s.RunWith(context.Background(), JobSync, "api", func(ctx context.Context, _ string) error {
		job = logger.GetJob(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, JobSync, job)
}
