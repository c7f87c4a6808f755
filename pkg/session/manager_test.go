package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/session"
	"github.com/deepresearch-labs/agent/pkg/state"
	"github.com/deepresearch-labs/agent/test/util"
)

type fakePool struct {
	store      *checkpoint.Store
	enqueued   []*state.Session
	cancelled  map[string]bool
	rejectNext bool
}

// Enqueue persists the session as QUEUED, as queue.Pool.Enqueue does, so
// the Manager's follow-up reads find it in the store.
func (f *fakePool) Enqueue(ctx context.Context, sess *state.Session) error {
	if f.rejectNext {
		return assert.AnError
	}
	f.enqueued = append(f.enqueued, sess)
	return f.store.Enqueue(ctx, sess)
}

func (f *fakePool) CancelSession(sessionID string) bool {
	if f.cancelled == nil {
		f.cancelled = make(map[string]bool)
	}
	found := false
	for _, s := range f.enqueued {
		if s.ID == sessionID {
			found = true
		}
	}
	if found {
		f.cancelled[sessionID] = true
	}
	return found
}

func newTestStore(t *testing.T) *checkpoint.Store {
	dsn := util.NewTestDSN(t)
	store, err := checkpoint.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestCreateEnqueuesAndAssignsQueuedPosition(t *testing.T) {
	store := newTestStore(t)
	pool := &fakePool{store: store}
	mgr := session.NewManager(store, pool)

	sess, err := mgr.Create(context.Background(), "what is the capital of France?", 0, "")
	require.NoError(t, err)
	require.Len(t, pool.enqueued, 1)
	require.NotNil(t, sess.QueuedPosition)
	assert.Equal(t, 1, *sess.QueuedPosition)
}

func TestCancelQueuedSessionMarksTerminalDirectly(t *testing.T) {
	store := newTestStore(t)
	pool := &fakePool{store: store}
	mgr := session.NewManager(store, pool)

	sess, err := mgr.Create(context.Background(), "q", 0, "")
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(context.Background(), sess.ID))

	loaded, err := mgr.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCancelled, loaded.Status)
}

func TestCancelRunningSessionDelegatesToPool(t *testing.T) {
	store := newTestStore(t)
	pool := &fakePool{store: store}
	mgr := session.NewManager(store, pool)

	sess, err := mgr.Create(context.Background(), "q", 0, "")
	require.NoError(t, err)
	sess.Status = state.StatusRunning
	require.NoError(t, store.Save(context.Background(), sess))

	require.NoError(t, mgr.Cancel(context.Background(), sess.ID))
	assert.True(t, pool.cancelled[sess.ID])
}

func TestDeleteRejectsNonTerminalSession(t *testing.T) {
	store := newTestStore(t)
	pool := &fakePool{store: store}
	mgr := session.NewManager(store, pool)

	sess, err := mgr.Create(context.Background(), "q", 0, "")
	require.NoError(t, err)

	err = mgr.Delete(context.Background(), sess.ID)
	assert.Error(t, err)
}
