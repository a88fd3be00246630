package telemetry

import (
	"context"
	"strings"

	"github.com/erp/syncengine/internal/domain/integration"
)

const meterName = "github.com/erp/syncengine"

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// SyncMetrics records engine measurements to OpenTelemetry and, when a
// collector is attached, to the Prometheus scrape registry.
type SyncMetrics struct {
	runs          *Counter
	records       *Counter
	runDuration   *Histogram
	retryAttempts *Counter
	adjustments   *Counter

	prom *PrometheusCollector
}

var _ integration.MetricsRecorder = (*SyncMetrics)(nil)

// NewSyncMetrics creates the engine instruments on mp. prom may be nil.
func NewSyncMetrics(mp *MeterProvider, prom *PrometheusCollector) (*SyncMetrics, error) {
	meter := mp.Meter(meterName)

	runs, err := NewCounter(meter, "sync.runs", "Closed sync runs", "{run}")
	if err != nil {
		return nil, err
	}
	records, err := NewCounter(meter, "sync.records", "Records processed by sync runs", "{record}")
	if err != nil {
		return nil, err
	}
	runDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "sync.run.duration",
		Description: "Duration of closed sync runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	retryAttempts, err := NewCounter(meter, "sync.retry.attempts", "Failed record replays", "{attempt}")
	if err != nil {
		return nil, err
	}
	adjustments, err := NewCounter(meter, "sync.adjustment.decisions", "Pending adjustment decisions", "{decision}")
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runs:          runs,
		records:       records,
		runDuration:   runDuration,
		retryAttempts: retryAttempts,
		adjustments:   adjustments,
		prom:          prom,
	}, nil
}

// RecordSyncRun records one closed run
func (m *SyncMetrics) RecordSyncRun(ctx context.Context, run *integration.SyncRun) {
	syncType := string(run.SyncType)
	status := string(run.Status)
	typeAttr := AttrSyncType.String(syncType)

	m.runs.Inc(ctx, typeAttr, AttrRunStatus.String(status), AttrTriggeredBy.String(run.TriggeredBy))
	m.records.Add(ctx, int64(run.Succeeded), typeAttr, AttrOutcome.String(outcomeSucceeded))
	m.records.Add(ctx, int64(run.Failed), typeAttr, AttrOutcome.String(outcomeFailed))
	m.runDuration.RecordDuration(ctx, run.Duration(), typeAttr)

	if m.prom == nil {
		return
	}
	m.prom.runsTotal.WithLabelValues(syncType, status).Inc()
	m.prom.recordsTotal.WithLabelValues(syncType, outcomeSucceeded).Add(float64(run.Succeeded))
	m.prom.recordsTotal.WithLabelValues(syncType, outcomeFailed).Add(float64(run.Failed))
	m.prom.runDurationSeconds.WithLabelValues(syncType).Observe(run.Duration().Seconds())
	if run.EndTime != nil {
		m.prom.lastRunTimestamp.WithLabelValues(syncType, status).Set(float64(run.EndTime.Unix()))
	}
}

// RecordRetryAttempt records one replay of a failed record
func (m *SyncMetrics) RecordRetryAttempt(ctx context.Context, recordType integration.SyncType, succeeded bool) {
	outcome := outcomeFailed
	if succeeded {
		outcome = outcomeSucceeded
	}
	m.retryAttempts.Inc(ctx, AttrSyncType.String(string(recordType)), AttrOutcome.String(outcome))
	if m.prom != nil {
		m.prom.retryAttemptsTotal.WithLabelValues(string(recordType), outcome).Inc()
	}
}

// RecordAdjustmentDecision records an approval or rejection
func (m *SyncMetrics) RecordAdjustmentDecision(ctx context.Context, status integration.PendingAdjustmentStatus) {
	label := strings.ToLower(string(status))
	m.adjustments.Inc(ctx, AttrAdjustment.String(label))
	if m.prom != nil {
		m.prom.adjustmentDecisions.WithLabelValues(label).Inc()
	}
}
