// Package session is the admission layer a client actually talks to: it
// mints new sessions, rejects them when the queue is full, and answers
// read/cancel requests against the durable checkpoint store (spec
// §4.10). The actual pipeline execution lives in pkg/queue and pkg/graph.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// Pool is the subset of queue.Pool a Manager needs: admission and
// cooperative cancellation of a currently-running session.
type Pool interface {
	Enqueue(ctx context.Context, sess *state.Session) error
	CancelSession(sessionID string) bool
}

// Manager is the research engine's session admission point:
// Create/Get/List/Delete backed by the durable checkpoint store instead of
// a bare in-memory map, since sessions here must survive a process
// restart.
type Manager struct {
	store *checkpoint.Store
	pool  Pool
}

// NewManager constructs a Manager over store, using pool for admission
// and cooperative cancellation.
func NewManager(store *checkpoint.Store, pool Pool) *Manager {
	return &Manager{store: store, pool: pool}
}

// Create mints a new session and enqueues it. budgetUSD of 0 leaves the
// process-wide max_cost_per_run in effect; outputFormat of "" defaults to
// "md". Returns queue.ErrQueueFull if the queue is already at its
// configured limit.
func (m *Manager) Create(ctx context.Context, query string, budgetUSD float64, outputFormat string) (*state.Session, error) {
	sess := state.NewSession(uuid.New().String(), query)
	sess.BudgetUSD = budgetUSD
	if outputFormat != "" {
		sess.OutputFormat = outputFormat
	}
	if err := m.pool.Enqueue(ctx, sess); err != nil {
		return nil, err
	}

	pos, err := m.store.CountByStatus(ctx, state.StatusQueued)
	if err == nil {
		sess.QueuedPosition = &pos
	}
	return sess, nil
}

// Get retrieves a session's current checkpointed state.
func (m *Manager) Get(ctx context.Context, sessionID string) (*state.Session, error) {
	return m.store.Load(ctx, sessionID)
}

// List returns every session, most recent first.
func (m *Manager) List(ctx context.Context) ([]*state.Session, error) {
	return m.store.List(ctx)
}

// Cancel ends a session: a still-queued session is marked CANCELLED
// directly, a running session is cancelled cooperatively via the worker
// pool (the worker observes ctx.Done() and writes the terminal status
// itself once the executor returns).
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case state.StatusQueued:
		sess.Status = state.StatusCancelled
		return m.store.MarkTerminal(ctx, sess)
	case state.StatusRunning:
		if !m.pool.CancelSession(sessionID) {
			return fmt.Errorf("session: %s not found on this pool", sessionID)
		}
		return nil
	default:
		return fmt.Errorf("session: %s already terminal (%s)", sessionID, sess.Status)
	}
}

// Delete permanently removes a terminal session's record.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case state.StatusQueued, state.StatusRunning:
		return fmt.Errorf("session: %s is not terminal, cancel it first", sessionID)
	}
	return m.store.Delete(ctx, sessionID)
}
