package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig is returned when a trigger has no interval
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobNotFound is returned for an unknown job name
	ErrJobNotFound = errors.New("job not found")
)

// Job names registered by the server
const (
	JobSync  = "sync"
	JobRetry = "retry"
)

// TriggerStatus describes one registered job for the status endpoint
type TriggerStatus struct {
	Name          string     `json:"name"`
	Interval      string     `json:"interval"`
	Running       bool       `json:"running"`
	Executing     bool       `json:"executing"`
	NextFire      *time.Time `json:"next_fire,omitempty"`
	LastExecution *Execution `json:"last_execution,omitempty"`
}

// Scheduler owns the interval triggers of the process and their shared history
type Scheduler struct {
	mu       sync.RWMutex
	triggers map[string]*IntervalTrigger
	guard    *JobGuard
	history  *History
	logger   *zap.Logger
}

// NewScheduler creates a scheduler whose triggers share guard and a history
func NewScheduler(guard *JobGuard, history *History, logger *zap.Logger) *Scheduler {
	if history == nil {
		history = NewHistory(defaultHistoryCapacity)
	}
	return &Scheduler{
		triggers: make(map[string]*IntervalTrigger),
		guard:    guard,
		history:  history,
		logger:   logger,
	}
}

// Register adds a job; registering the same name twice replaces the trigger
func (s *Scheduler) Register(config IntervalTriggerConfig, job JobFunc) *IntervalTrigger {
	trigger := NewIntervalTrigger(config, job, s.guard, s.history, s.logger)
	s.mu.Lock()
	s.triggers[config.Name] = trigger
	s.mu.Unlock()
	return trigger
}

// Start starts every registered trigger
func (s *Scheduler) Start(ctx context.Context) error {
	for _, t := range s.sorted() {
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("start trigger %s: %w", t.Name(), err)
		}
	}
	return nil
}

// Stop stops every trigger, waiting at most until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	for _, t := range s.sorted() {
		if err := t.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop trigger %s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RunNow runs a registered job immediately through its guard
func (s *Scheduler) RunNow(ctx context.Context, name, triggeredBy string) error {
	s.mu.RLock()
	t, ok := s.triggers[name]
	s.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	return t.RunNow(ctx, triggeredBy)
}

// RunWith runs job under the guard and history of the named job. The body is
// supplied by the caller, so an operator can run a job with other parameters
// than its schedule while still excluding the scheduled firing. The name does
// not need to be registered.
func (s *Scheduler) RunWith(ctx context.Context, name, triggeredBy string, job func(ctx context.Context, triggeredBy string) error) error {
	s.mu.RLock()
	t, ok := s.triggers[name]
	s.mu.RUnlock()
	if !ok {
		t = NewIntervalTrigger(IntervalTriggerConfig{Name: name}, nil, s.guard, s.history, s.logger)
	}
	return t.run(ctx, triggeredBy, job)
}

// History returns the shared execution history
func (s *Scheduler) History() *History {
	return s.history
}

// Status describes every registered trigger, ordered by name
func (s *Scheduler) Status() []TriggerStatus {
	triggers := s.sorted()
	result := make([]TriggerStatus, 0, len(triggers))
	for _, t := range triggers {
		st := TriggerStatus{
			Name:      t.Name(),
			Interval:  t.Interval().String(),
			Running:   t.IsRunning(),
			Executing: s.guard.IsRunning(t.Name()),
		}
		if next := t.NextFire(); !next.IsZero() {
			st.NextFire = &next
		}
		if last, ok := s.history.Last(t.Name()); ok {
			st.LastExecution = &last
		}
		result = append(result, st)
	}
	return result
}

func (s *Scheduler) sorted() []*IntervalTrigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*IntervalTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}
