// Package checkpoint is the durable, resumable record of a session's
// pipeline state: a pgx-backed table that every node
// completion is written to before the next node starts, so a crashed or
// restarted process can pick a session up exactly where it left off.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// ErrNoSessionsAvailable is returned by ClaimNext when the queue is empty.
var ErrNoSessionsAvailable = errors.New("checkpoint: no sessions available")

// Store wraps a pgx connection pool and the sessions table.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, runs pending migrations, and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Enqueue inserts a brand-new session in QUEUED status. Returns an error
// if the id already exists — callers mint a fresh UUID per session.
func (s *Store) Enqueue(ctx context.Context, sess *state.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, query, status, step, state_json, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.Query, string(sess.Status), sess.Step, data, checksumOf(data))
	if err != nil {
		return fmt.Errorf("checkpoint: enqueue %s: %w", sess.ID, err)
	}
	return nil
}

// Save upserts the full session state — this is the checkpoint write the
// graph scheduler performs after every node completion, as a single
// transactional INSERT ... ON CONFLICT DO UPDATE.
func (s *Store) Save(ctx context.Context, sess *state.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, query, status, step, state_json, checksum, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			step = EXCLUDED.step,
			state_json = EXCLUDED.state_json,
			checksum = EXCLUDED.checksum,
			updated_at = now()`,
		sess.ID, sess.Query, string(sess.Status), sess.Step, data, checksumOf(data))
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a session's checkpointed state, verifying the stored
// checksum before unmarshaling. A checksum mismatch or unparseable state
// (truncated write, manual edit) is reported via ErrCheckpointCorrupt, so
// the session is not resumed from bad state. A missing row is reported
// with the same ErrCheckpointCorrupt sentinel: the error kind does not
// tell a missing session apart from a corrupted one.
func (s *Store) Load(ctx context.Context, sessionID string) (*state.Session, error) {
	var data []byte
	var checksum string
	err := s.pool.QueryRow(ctx, `SELECT state_json, checksum FROM sessions WHERE id = $1`, sessionID).
		Scan(&data, &checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint: session %s: %w", sessionID, apperrors.ErrCheckpointCorrupt)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", sessionID, err)
	}
	if checksumOf(data) != checksum {
		return nil, fmt.Errorf("checkpoint: session %s: %w", sessionID, apperrors.ErrCheckpointCorrupt)
	}
	var sess state.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("checkpoint: session %s: %w", sessionID, apperrors.ErrCheckpointCorrupt)
	}
	return &sess, nil
}

// List returns every session, most recently created first.
func (s *Store) List(ctx context.Context) ([]*state.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT state_json FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

	var out []*state.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("checkpoint: list scan: %w", err)
		}
		var sess state.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue // a corrupt row is skipped from listings, not fatal to the call
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// Delete permanently removes a session record (admin cleanup / retention
// sweep), not to be confused with Cancel which marks a row CANCELLED.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", sessionID, err)
	}
	return nil
}

// DeleteOlderThan removes terminal sessions whose completed_at predates
// the cutoff, as part of the periodic retention sweep.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: retention sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimNext atomically claims the oldest QUEUED session for podID using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never double
// -claim the same row.
func (s *Store) ClaimNext(ctx context.Context, podID string) (*state.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	var data []byte
	err = tx.QueryRow(ctx, `
		SELECT id, state_json FROM sessions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, string(state.StatusQueued)).Scan(&id, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSessionsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: claim query: %w", err)
	}

	var sess state.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("checkpoint: claim %s: %w", id, apperrors.ErrCheckpointCorrupt)
	}
	sess.Status = state.StatusRunning

	newData, err := json.Marshal(&sess)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal claimed session: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE sessions SET status = $1, state_json = $2, checksum = $3,
			pod_id = $4, started_at = now(), last_interaction_at = now(), updated_at = now()
		WHERE id = $5`,
		string(state.StatusRunning), newData, checksumOf(newData), podID, id)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: claim update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("checkpoint: commit claim: %w", err)
	}
	return &sess, nil
}

// Heartbeat refreshes last_interaction_at so orphan detection can tell a
// live worker from a crashed one.
func (s *Store) Heartbeat(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET last_interaction_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("checkpoint: heartbeat %s: %w", sessionID, err)
	}
	return nil
}

// MarkTerminal writes a session's final status (COMPLETED/FAILED/CANCELLED)
// and stamps completed_at.
func (s *Store) MarkTerminal(ctx context.Context, sess *state.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal terminal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET status = $1, state_json = $2, checksum = $3,
			error = $4, completed_at = now(), updated_at = now()
		WHERE id = $5`,
		string(sess.Status), data, checksumOf(data), sess.Error, sess.ID)
	if err != nil {
		return fmt.Errorf("checkpoint: mark terminal %s: %w", sess.ID, err)
	}
	return nil
}

// CountByStatus returns how many sessions currently sit in the given status.
func (s *Store) CountByStatus(ctx context.Context, status state.Status) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: count %s: %w", status, err)
	}
	return n, nil
}

// OrphanCandidate is a RUNNING session whose heartbeat has gone stale.
type OrphanCandidate struct {
	ID    string
	PodID string
}

// FindStaleRunning returns RUNNING sessions whose last_interaction_at is
// older than the threshold — candidates for orphan recovery.
func (s *Store) FindStaleRunning(ctx context.Context, threshold time.Time) ([]OrphanCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, coalesce(pod_id, '') FROM sessions
		WHERE status = $1 AND last_interaction_at IS NOT NULL AND last_interaction_at < $2`,
		string(state.StatusRunning), threshold)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: find stale running: %w", err)
	}
	defer rows.Close()

	var out []OrphanCandidate
	for rows.Next() {
		var c OrphanCandidate
		if err := rows.Scan(&c.ID, &c.PodID); err != nil {
			return nil, fmt.Errorf("checkpoint: scan stale running: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindRunningByPod returns every RUNNING session still attributed to
// podID — used at startup to recover from a crash of this same process.
func (s *Store) FindRunningByPod(ctx context.Context, podID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM sessions WHERE status = $1 AND pod_id = $2`,
		string(state.StatusRunning), podID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: find running by pod: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("checkpoint: scan running by pod: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkFailed is a convenience used by orphan recovery: loads the session,
// sets it FAILED with the given reason, and saves it as terminal.
func (s *Store) MarkFailed(ctx context.Context, sessionID, reason string) error {
	sess, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Status = state.StatusFailed
	sess.Error = reason
	return s.MarkTerminal(ctx, sess)
}
