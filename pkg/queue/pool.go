package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/notify"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// Pool manages a fixed-size pool of workers that poll the checkpoint
// store for queued sessions and run them through a SessionExecutor.
type Pool struct {
	podID    string
	store    *checkpoint.Store
	bus      *events.Bus
	notifier *notify.Service
	config   *config.QueueConfig
	executor SessionExecutor
	workers  []*Worker

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	activeSessions map[string]context.CancelFunc
	started        bool

	orphans orphanState
}

// NewPool constructs a worker pool. bus and notifier may be nil (no live
// event publishing / no Slack notifications).
func NewPool(podID string, store *checkpoint.Store, bus *events.Bus, notifier *notify.Service, cfg *config.QueueConfig, executor SessionExecutor) *Pool {
	return &Pool{
		podID:          podID,
		store:          store,
		bus:            bus,
		notifier:       notifier,
		config:         cfg,
		executor:       executor,
		workers:        make([]*Worker, 0, cfg.WorkerCount),
		stopCh:         make(chan struct{}),
		activeSessions: make(map[string]context.CancelFunc),
	}
}

// Enqueue admits a new session, rejecting it with ErrQueueFull if the
// queue is already at config.QueueLimit.
func (p *Pool) Enqueue(ctx context.Context, sess *state.Session) error {
	queued, err := p.store.CountByStatus(ctx, state.StatusQueued)
	if err != nil {
		return fmt.Errorf("queue: count queued: %w", err)
	}
	if queued >= p.config.QueueLimit {
		return ErrQueueFull
	}
	return p.store.Enqueue(ctx, sess)
}

// Start spawns worker goroutines and the orphan-detection loop. Safe to
// call once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		w := NewWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID, p.store, p.bus, p.notifier, p.config, p.executor, p)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()
}

// Stop signals every worker to finish its current session and exits once
// all have drained: graceful shutdown via sync.Once + WaitGroup.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool gracefully")
	if active := p.ActiveSessionIDs(); len(active) > 0 {
		slog.Info("waiting for active sessions to complete", "count", len(active), "session_ids", active)
	}
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("worker pool stopped gracefully")
}

// RegisterSession records a session's cancel func for cooperative cancellation.
func (p *Pool) RegisterSession(sessionID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeSessions[sessionID] = cancel
}

// UnregisterSession removes a session's cancel func once it finishes.
func (p *Pool) UnregisterSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeSessions, sessionID)
}

// CancelSession triggers cooperative cancellation for a running session.
// Returns false if the session isn't running on this pool.
func (p *Pool) CancelSession(sessionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeSessions[sessionID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveSessionIDs returns the IDs currently processing on this pool.
func (p *Pool) ActiveSessionIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeSessions))
	for id := range p.activeSessions {
		ids = append(ids, id)
	}
	return ids
}

// Health reports the pool's current state for the /health endpoint.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	active, err := p.store.CountByStatus(ctx, state.StatusRunning)
	if err != nil {
		slog.Error("health check: count active sessions failed", "error", err)
	}
	queued, err := p.store.CountByStatus(ctx, state.StatusQueued)
	if err != nil {
		slog.Error("health check: count queued sessions failed", "error", err)
	}

	stats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.orphans.mu.Lock()
	lastScan, recovered := p.orphans.lastScan, p.orphans.recovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0 && active <= p.config.MaxConcurrentSessions,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveSessions:   active,
		MaxConcurrent:    p.config.MaxConcurrentSessions,
		QueueDepth:       queued,
		WorkerStats:      stats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}
