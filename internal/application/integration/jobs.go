package integration

import (
	"context"

	"github.com/erp/syncengine/internal/domain/integration"
)

// Job identities shared by scheduled and manual executions
const (
	JobNameSync  = "sync"
	JobNameRetry = "retry"
)

// JobRunner runs a job body under the exclusivity guard of a job identity.
// It returns integration.ErrJobAlreadyRunning when the identity is busy.
type JobRunner interface {
	RunWith(ctx context.Context, name, triggeredBy string, job func(ctx context.Context, triggeredBy string) error) error
}

// SyncJobs is the entry point for sync and retry executions. Scheduled
// firings and operator requests share one identity per job, so they never
// overlap.
type SyncJobs struct {
	orchestrator *SyncOrchestrator
	retry        *RetryEngine
	runner       JobRunner
	scope        integration.SyncScope
}

// NewSyncJobs creates the job entry point. scope is what the scheduled sync runs.
func NewSyncJobs(orchestrator *SyncOrchestrator, retry *RetryEngine, runner JobRunner, scope integration.SyncScope) *SyncJobs {
	if scope == "" {
		scope = integration.SyncScopeAll
	}
	return &SyncJobs{orchestrator: orchestrator, retry: retry, runner: runner, scope: scope}
}

// RunSync runs scope now and returns the closed runs
func (j *SyncJobs) RunSync(ctx context.Context, scope integration.SyncScope, triggeredBy string) ([]*integration.SyncRun, error) {
	var runs []*integration.SyncRun
	err := j.runner.RunWith(ctx, JobNameSync, triggeredBy, func(ctx context.Context, triggeredBy string) error {
		var err error
		runs, err = j.orchestrator.RunScope(ctx, scope, triggeredBy)
		return err
	})
	return runs, err
}

// RunRetryPass runs one retry pass now
func (j *SyncJobs) RunRetryPass(ctx context.Context, triggeredBy string) (*RetryPassResult, error) {
	var result *RetryPassResult
	err := j.runner.RunWith(ctx, JobNameRetry, triggeredBy, func(ctx context.Context, triggeredBy string) error {
		var err error
		result, err = j.retry.RunRetryPass(ctx, triggeredBy)
		return err
	})
	return result, err
}

// ScheduledSync is the body registered for the sync trigger
func (j *SyncJobs) ScheduledSync(ctx context.Context, triggeredBy string) error {
	_, err := j.orchestrator.RunScope(ctx, j.scope, triggeredBy)
	return err
}

// ScheduledRetry is the body registered for the retry trigger
func (j *SyncJobs) ScheduledRetry(ctx context.Context, triggeredBy string) error {
	_, err := j.retry.RunRetryPass(ctx, triggeredBy)
	return err
}
