package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/queue"
	"github.com/deepresearch-labs/agent/pkg/state"
)

func TestRecoverStartupOrphansMarksRunningSessionsFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := state.NewSession("sess-startup-orphan", "q")
	require.NoError(t, store.Enqueue(ctx, sess))
	_, err := store.ClaimNext(ctx, "pod-crashed")
	require.NoError(t, err)

	require.NoError(t, queue.RecoverStartupOrphans(ctx, store, "pod-crashed"))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, loaded.Status)
}

func TestPoolDetectsAndRecoversStaleOrphan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := state.NewSession("sess-stale", "q")
	require.NoError(t, store.Enqueue(ctx, sess))
	_, err := store.ClaimNext(ctx, "pod-dead")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.OrphanDetectionInterval = 20 * time.Millisecond
	cfg.OrphanThreshold = -time.Second // every RUNNING session is immediately "stale"
	pool := queue.NewPool("pod-test", store, nil, nil, cfg, newStubExecutor(state.StatusCompleted))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		loaded, err := store.Load(ctx, sess.ID)
		return err == nil && loaded.Status == state.StatusFailed
	}, 2*time.Second, 20*time.Millisecond)
}
