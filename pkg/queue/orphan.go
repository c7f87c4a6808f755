package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan-detection metrics, thread-safe.
type orphanState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runOrphanDetection periodically scans for RUNNING sessions whose
// heartbeat has gone stale and marks them FAILED. Every pod runs this
// independently; the operation is idempotent in effect: FindStaleRunning
// only returns rows still RUNNING, and a row two pods both mark ends up
// FAILED either way (the later write's reason wins).
func (p *Pool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

func (p *Pool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)
	orphans, err := p.store.FindStaleRunning(ctx, threshold)
	if err != nil {
		return fmt.Errorf("queue: query orphaned sessions: %w", err)
	}

	p.orphans.mu.Lock()
	p.orphans.lastScan = time.Now()
	p.orphans.mu.Unlock()

	if len(orphans) == 0 {
		return nil
	}
	slog.Warn("detected orphaned sessions", "count", len(orphans))

	recovered := 0
	for _, o := range orphans {
		reason := fmt.Sprintf("orphaned: no heartbeat from pod %s since before %s", o.PodID, threshold.Format(time.RFC3339))
		if err := p.store.MarkFailed(ctx, o.ID, reason); err != nil {
			slog.Error("failed to recover orphaned session", "session_id", o.ID, "error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.recovered += recovered
	p.orphans.mu.Unlock()
	return nil
}

// RecoverStartupOrphans marks every session still RUNNING under podID as
// FAILED. Called once at process start, before the pool begins polling,
// to clean up after a crash of this same pod in a previous run.
func RecoverStartupOrphans(ctx context.Context, store interface {
	FindRunningByPod(ctx context.Context, podID string) ([]string, error)
	MarkFailed(ctx context.Context, sessionID, reason string) error
}, podID string) error {
	ids, err := store.FindRunningByPod(ctx, podID)
	if err != nil {
		return fmt.Errorf("queue: query startup orphans: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	slog.Warn("found startup orphans from previous run", "pod_id", podID, "count", len(ids))
	for _, id := range ids {
		reason := fmt.Sprintf("orphaned: pod %s restarted while session was running", podID)
		if err := store.MarkFailed(ctx, id, reason); err != nil {
			slog.Error("failed to mark startup orphan", "session_id", id, "error", err)
			continue
		}
		slog.Info("startup orphan recovered", "session_id", id)
	}
	return nil
}
