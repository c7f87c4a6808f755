// Package recovery wraps pipeline node execution with bounded retry and a
// per-node circuit breaker: a node that keeps failing stops
// being retried for a cooldown window rather than burning the session's
// budget on certain failures.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// NodeFunc is a single pipeline node's unit of work: given the session as
// it stands, produce the delta to merge, or fail.
type NodeFunc func(ctx context.Context) (state.Delta, error)

// breaker tracks one node's consecutive-failure streak and, once tripped,
// the timestamp it reopens at.
type breaker struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Orchestrator runs NodeFuncs under the configured retry/circuit-breaker
// policy, accumulating the metrics and dead-letter entries reported on
// the final session.
type Orchestrator struct {
	cfg config.RetryConfig

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewOrchestrator builds an Orchestrator from cfg.
func NewOrchestrator(cfg config.RetryConfig) *Orchestrator {
	return &Orchestrator{cfg: cfg, breakers: make(map[string]*breaker)}
}

// Outcome bundles a node run's result with the recovery bookkeeping to
// merge onto the session's RecoveryMetrics/DeadLetterQueue.
type Outcome struct {
	Delta    state.Delta
	Err      error
	Recovery state.RecoveryMetrics
	DeadLetter []state.DeadLetterEntry
}

// Run executes fn under node's retry/circuit-breaker policy. A breaker
// open for node short-circuits without calling fn at all, counted as a
// circuit-breaker skip rather than a retry.
func (o *Orchestrator) Run(ctx context.Context, node string, fn NodeFunc) Outcome {
	if o.breakerOpen(node) {
		return Outcome{
			Err:      apperrors.ErrTransientIO,
			Recovery: state.RecoveryMetrics{CircuitBreakerSkips: 1},
			DeadLetter: []state.DeadLetterEntry{{
				Node: node, ErrorType: "circuit_open",
				Message: "circuit breaker open, node skipped",
			}},
		}
	}

	var out Outcome
	attempts := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.BackoffInitial
	policy.MaxInterval = o.cfg.BackoffMax
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts(o.cfg.Attempts)-1)), ctx)

	err := backoff.Retry(func() error {
		attempts++
		delta, runErr := fn(ctx)
		if runErr == nil {
			out.Delta = delta
			return nil
		}
		if apperrors.IsCancellation(runErr) {
			return backoff.Permanent(runErr)
		}
		if !apperrors.IsRetryable(runErr) {
			return backoff.Permanent(runErr)
		}
		return runErr
	}, bo)

	if err == nil {
		o.recordSuccess(node)
		if attempts > 1 {
			out.Recovery.RetriesAttempted = attempts - 1
			out.Recovery.RecoveredFailures = 1
		}
		return out
	}

	out.Err = err
	if attempts > 1 {
		out.Recovery.RetriesAttempted = attempts - 1
	}
	if apperrors.IsCancellation(err) {
		return out
	}

	out.Recovery.RetryExhausted = 1
	out.Recovery.DeadLetterCount = 1
	tripped := o.recordFailure(node)
	if tripped {
		out.Recovery.CircuitBreakerOpened = 1
	}
	out.DeadLetter = []state.DeadLetterEntry{{
		Node:      node,
		ErrorType: errorType(err),
		Message:   err.Error(),
		Attempts:  attempts,
		Reason:    "retry_exhausted",
	}}
	return out
}

func maxAttempts(configured int) int {
	if configured < 1 {
		return 1
	}
	return configured
}

func errorType(err error) string {
	switch {
	case apperrors.IsCancellation(err):
		return "cancelled"
	default:
		return "node_error"
	}
}

func (o *Orchestrator) breakerOpen(node string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.breakers[node]
	if !ok {
		return false
	}
	return time.Now().Before(b.openUntil)
}

func (o *Orchestrator) recordSuccess(node string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.breakers[node]; ok {
		b.consecutiveFailures = 0
		b.openUntil = time.Time{}
	}
}

// recordFailure increments node's consecutive-failure streak and trips
// the breaker once it reaches CircuitBreakerThreshold, reporting whether
// this call is the one that tripped it.
func (o *Orchestrator) recordFailure(node string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.breakers[node]
	if !ok {
		b = &breaker{}
		o.breakers[node] = b
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= o.cfg.CircuitBreakerThreshold {
		b.openUntil = time.Now().Add(o.cfg.CircuitBreakerCooldown)
		b.consecutiveFailures = 0
		return true
	}
	return false
}
