// Package apperrors is the shared error taxonomy for the research engine:
// every package that can fail classifies its failure as one of these
// sentinels so the graph scheduler and session manager can react
// uniformly, instead of each package inventing its own error kinds.
package apperrors

import (
	"context"
	"errors"
)

var (
	// ErrConfiguration is fatal at startup; no session is ever admitted.
	ErrConfiguration = errors.New("configuration error")

	// ErrBudgetExhausted ends a session: FAILED, remaining nodes skipped.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrTransientIO covers network errors, 5xx responses, and timeouts —
	// retried by the recovery orchestrator.
	ErrTransientIO = errors.New("transient I/O error")

	// ErrRateLimited covers 429s; the key rotator cools the key and the
	// caller retries with another, falling through to ErrTransientIO once
	// every key is cooling down.
	ErrRateLimited = errors.New("rate limited")

	// ErrContentUnusable covers paywalled, low-quality, or empty content —
	// dropped silently, counted, never fatal.
	ErrContentUnusable = errors.New("content unusable")

	// ErrCheckpointCorrupt means the checkpoint store refuses to resume;
	// the session must be restarted from scratch.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrInvariantViolation covers a structured-output contract mismatch
	// (e.g. malformed Plan response) — bounded retry, then dead-letter.
	ErrInvariantViolation = errors.New("invariant violation")
)

// IsCancellation reports whether err represents cooperative cancellation
// rather than a true failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether the recovery orchestrator should retry this
// error kind at all (cancellation, configuration errors, and budget
// exhaustion never are).
func IsRetryable(err error) bool {
	if IsCancellation(err) {
		return false
	}
	switch {
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrBudgetExhausted),
		errors.Is(err, ErrCheckpointCorrupt):
		return false
	case errors.Is(err, ErrTransientIO), errors.Is(err, ErrRateLimited), errors.Is(err, ErrInvariantViolation):
		return true
	default:
		// Unclassified errors are treated as transient: a node that returns
		// a raw error (not yet wrapped in one of the sentinels above) gets
		// the benefit of the doubt and is retried up to the node's policy.
		return true
	}
}
