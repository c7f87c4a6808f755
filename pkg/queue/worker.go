package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/notify"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// SessionRegistry is the subset of Pool a Worker needs for cancel-func
// bookkeeping.
type SessionRegistry interface {
	RegisterSession(sessionID string, cancel context.CancelFunc)
	UnregisterSession(sessionID string)
}

// Worker polls the checkpoint store for queued sessions and runs them
// one at a time through its SessionExecutor.
type Worker struct {
	id       string
	podID    string
	store    *checkpoint.Store
	bus      *events.Bus
	notifier *notify.Service
	config   *config.QueueConfig
	executor SessionExecutor
	registry SessionRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	status            WorkerStatus
	currentSessionID  string
	sessionsProcessed int
	lastActivity      time.Time
}

// NewWorker constructs a worker. bus and notifier may be nil (no live
// event publishing / no Slack notifications).
func NewWorker(id, podID string, store *checkpoint.Store, bus *events.Bus, notifier *notify.Service, cfg *config.QueueConfig, executor SessionExecutor, registry SessionRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		bus:          bus,
		notifier:     notifier,
		config:       cfg,
		executor:     executor,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop after its current session finishes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports this worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            w.status,
		CurrentSessionID:  w.currentSessionID,
		SessionsProcessed: w.sessionsProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, checkpoint.ErrNoSessionsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing session", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// ErrAtCapacity is returned by pollAndProcess when the global
// concurrent-session limit is already reached.
var ErrAtCapacity = errors.New("queue: at capacity")

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := w.store.CountByStatus(ctx, state.StatusRunning)
	if err != nil {
		return fmt.Errorf("checking active sessions: %w", err)
	}
	if active >= w.config.MaxConcurrentSessions {
		return ErrAtCapacity
	}

	sess, err := w.store.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("session_id", sess.ID, "worker_id", w.id)
	log.Info("session claimed")
	w.publishSessionStatus(sess.ID, state.StatusRunning)

	w.setStatus(WorkerStatusWorking, sess.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	sessionCtx, cancel := context.WithTimeout(ctx, w.config.SessionTimeout)
	defer cancel()

	w.registry.RegisterSession(sess.ID, cancel)
	defer w.registry.UnregisterSession(sess.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(sessionCtx)
	go w.runHeartbeat(heartbeatCtx, sess.ID)

	result := w.executor.Execute(sessionCtx, sess)
	cancelHeartbeat()

	if result == nil {
		result = w.synthesizeResult(sessionCtx, fmt.Errorf("executor returned nil result"))
	}
	if result.Status == "" {
		result = w.synthesizeResult(sessionCtx, result.Error)
	}

	sess.Status = result.Status
	if result.Error != nil {
		sess.Error = result.Error.Error()
	}
	if err := w.store.MarkTerminal(context.Background(), sess); err != nil {
		log.Error("failed to persist terminal status", "error", err)
		return err
	}
	w.publishSessionStatus(sess.ID, result.Status)
	w.notifyTerminal(sess, result)

	w.mu.Lock()
	w.sessionsProcessed++
	w.mu.Unlock()

	log.Info("session processing complete", "status", result.Status)
	return nil
}

// synthesizeResult builds a terminal ExecutionResult when the executor
// returned nil or an empty status, inferring the cause from the session
// context's cancellation reason.
func (w *Worker) synthesizeResult(ctx context.Context, cause error) *ExecutionResult {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Status: state.StatusFailed, Error: fmt.Errorf("session timed out after %v", w.config.SessionTimeout)}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ExecutionResult{Status: state.StatusCancelled, Error: context.Canceled}
	default:
		if cause == nil {
			cause = fmt.Errorf("session ended without a terminal status")
		}
		return &ExecutionResult{Status: state.StatusFailed, Error: cause}
	}
}

func (w *Worker) runHeartbeat(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, sessionID); err != nil {
				slog.Warn("heartbeat update failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

// notifyTerminal posts a Slack message for COMPLETED/FAILED sessions.
// notify.Service.NotifyTerminal is nil-safe and ignores any other status,
// so no further guard is needed here.
func (w *Worker) notifyTerminal(sess *state.Session, result *ExecutionResult) {
	errMsg := ""
	if result.Error != nil {
		errMsg = result.Error.Error()
	}
	w.notifier.NotifyTerminal(context.Background(), notify.TerminalInput{
		SessionID:    sess.ID,
		Query:        sess.Query,
		Status:       strings.ToLower(string(result.Status)),
		FinalReport:  sess.FinalReport,
		ErrorMessage: errMsg,
	})
}

func (w *Worker) publishSessionStatus(sessionID string, status state.Status) {
	if w.bus == nil {
		return
	}
	if _, err := w.bus.Publish(sessionID, events.EventTypeSessionStatus, map[string]any{"status": string(status)}); err != nil {
		slog.Warn("failed to publish session status", "session_id", sessionID, "status", status, "error", err)
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}
