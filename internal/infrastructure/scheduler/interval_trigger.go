package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/infrastructure/logger"
)

// TriggeredByScheduler is the actor recorded for scheduled firings
const TriggeredByScheduler = "scheduler"

// JobFunc is the work a trigger runs. triggeredBy names the scheduler or operator.
type JobFunc func(ctx context.Context, triggeredBy string) error

// IntervalTriggerConfig holds the schedule of one job
type IntervalTriggerConfig struct {
	// Name is the job identity used for locking and history
	Name string
	// Interval between firings
	Interval time.Duration
	// RunOnStart fires once immediately when the trigger starts
	RunOnStart bool
	// Timeout bounds one execution; zero means no bound
	Timeout time.Duration
}

// IntervalTrigger fires a job on a fixed interval through a JobGuard.
// Manual runs go through the same guard, so a scheduled firing and an
// operator request can never overlap.
type IntervalTrigger struct {
	config  IntervalTriggerConfig
	job     JobFunc
	guard   *JobGuard
	history *History
	base    *zap.Logger
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	nextFire  time.Time
}

// NewIntervalTrigger creates a trigger
func NewIntervalTrigger(config IntervalTriggerConfig, job JobFunc, guard *JobGuard, history *History, log *zap.Logger) *IntervalTrigger {
	return &IntervalTrigger{
		config:  config,
		job:     job,
		guard:   guard,
		history: history,
		base:    log,
		logger:  log.With(zap.String("job", config.Name)),
	}
}

// Name returns the job identity
func (t *IntervalTrigger) Name() string {
	return t.config.Name
}

// Interval returns the configured interval
func (t *IntervalTrigger) Interval() time.Duration {
	return t.config.Interval
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	if t.config.Interval <= 0 {
		return ErrInvalidConfig
	}

	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and any execution it started, then waits for it to return
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (t *IntervalTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// NextFire returns when the loop fires next, zero when stopped
func (t *IntervalTrigger) NextFire() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isRunning {
		return time.Time{}
	}
	return t.nextFire
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()
	t.setNextFire(time.Now().Add(t.config.Interval))

	if t.config.RunOnStart {
		_ = t.fire(ctx, TriggeredByScheduler)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.setNextFire(time.Now().Add(t.config.Interval))
			// Firings never pile up: a tick that finds the job busy is skipped
			_ = t.fire(ctx, TriggeredByScheduler)
		}
	}
}

func (t *IntervalTrigger) setNextFire(at time.Time) {
	t.mu.Lock()
	t.nextFire = at
	t.mu.Unlock()
}

// RunNow executes the job immediately on behalf of triggeredBy.
// It returns ErrJobAlreadyRunning when an execution is in progress.
func (t *IntervalTrigger) RunNow(ctx context.Context, triggeredBy string) error {
	return t.fire(ctx, triggeredBy)
}

func (t *IntervalTrigger) fire(ctx context.Context, triggeredBy string) error {
	return t.run(ctx, triggeredBy, t.job)
}

// run executes job under the trigger's identity, timeout and history
func (t *IntervalTrigger) run(ctx context.Context, triggeredBy string, job JobFunc) error {
	exec := Execution{
		Job:         t.config.Name,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now(),
	}

	err := t.guard.RunExclusive(ctx, t.config.Name, func(ctx context.Context) error {
		if t.config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
			defer cancel()
		}
		// the job's queries and context logger carry its identity
		ctx, _ = logger.WithJob(ctx, t.base, t.config.Name)
		return job(ctx, triggeredBy)
	})

	exec.FinishedAt = time.Now()
	switch {
	case errors.Is(err, ErrJobAlreadyRunning):
		exec.Status = ExecutionStatusSkipped
	case err != nil:
		exec.Status = ExecutionStatusFailed
		exec.Error = err.Error()
		t.logger.Error("Job execution failed",
			zap.String("triggered_by", triggeredBy),
			zap.Duration("duration", exec.Duration()),
			zap.Error(err))
	default:
		exec.Status = ExecutionStatusSuccess
		t.logger.Info("Job execution completed",
			zap.String("triggered_by", triggeredBy),
			zap.Duration("duration", exec.Duration()))
	}
	if t.history != nil {
		t.history.Add(exec)
	}
	return err
}
