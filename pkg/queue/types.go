// Package queue admits research sessions onto a bounded worker pool: FIFO
// queueing with overflow rejection, atomic claim-by-worker via the
// checkpoint store's SELECT ... FOR UPDATE SKIP LOCKED, cooperative
// cancellation, and crash-orphan recovery.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/deepresearch-labs/agent/pkg/state"
)

// ErrQueueFull is returned by Pool.Enqueue when QueueLimit would be exceeded.
var ErrQueueFull = errors.New("queue: at capacity, session rejected")

// SessionExecutor runs a claimed session to completion (or until the
// context is cancelled/times out). It owns the entire pipeline run —
// dispatching nodes, checkpointing, and publishing events — and returns
// only the terminal outcome; the worker's job ends at claim/heartbeat/
// terminal-status bookkeeping.
type SessionExecutor interface {
	Execute(ctx context.Context, sess *state.Session) *ExecutionResult
}

// ExecutionResult is the lightweight terminal outcome of a session run.
// All intermediate state was already checkpointed progressively by the
// executor.
type ExecutionResult struct {
	Status state.Status
	Error  error
}

// PoolHealth reports the worker pool's aggregate state, as surfaced by the
// health endpoint.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveSessions   int            `json:"active_sessions"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth reports a single worker's current state.
type WorkerHealth struct {
	ID                string       `json:"id"`
	Status            WorkerStatus `json:"status"`
	CurrentSessionID  string       `json:"current_session_id,omitempty"`
	SessionsProcessed int          `json:"sessions_processed"`
	LastActivity      time.Time    `json:"last_activity"`
}

// WorkerStatus is a single worker's current activity.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)
