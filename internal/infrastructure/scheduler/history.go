package scheduler

import (
	"sync"
	"time"
)

const defaultHistoryCapacity = 100

// ExecutionStatus is the outcome of one trigger firing
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
	ExecutionStatusSkipped ExecutionStatus = "SKIPPED"
)

// Execution records one firing of a job
type Execution struct {
	Job         string          `json:"job"`
	TriggeredBy string          `json:"triggered_by"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Error       string          `json:"error,omitempty"`
}

// Duration returns how long the execution took
func (e Execution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// History keeps the most recent executions of every job, oldest evicted first
type History struct {
	mu       sync.RWMutex
	entries  []Execution
	next     int
	full     bool
	capacity int
}

// NewHistory creates a history holding up to capacity executions
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{
		entries:  make([]Execution, capacity),
		capacity: capacity,
	}
}

// Add records an execution
func (h *History) Add(e Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = e
	h.next = (h.next + 1) % h.capacity
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to limit executions, newest first. Zero means all.
func (h *History) Recent(limit int) []Execution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = h.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]Execution, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + h.capacity) % h.capacity
		result = append(result, h.entries[idx])
	}
	return result
}

// Last returns the newest execution of job, if any
func (h *History) Last(job string) (Execution, bool) {
	for _, e := range h.Recent(0) {
		if e.Job == job {
			return e, true
		}
	}
	return Execution{}, false
}
