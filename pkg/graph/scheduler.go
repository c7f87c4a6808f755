// Package graph is the fixed {plan, search, scrape, summarize, synthesize}
// pipeline scheduler: it repeatedly evaluates the outgoing edge of the
// last-completed node, dispatches the target node under the recovery
// orchestrator's retry/circuit-breaker policy, merges the result via the
// session's reducers, checkpoints, and publishes a node.status event with
// status "completed", until an edge says TERMINATE. No event named
// step_end is published.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/cost"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/memory"
	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/queue"
	"github.com/deepresearch-labs/agent/pkg/recovery"
	"github.com/deepresearch-labs/agent/pkg/scrape"
	"github.com/deepresearch-labs/agent/pkg/search"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// nodeFunc is the shape every pipeline node function shares.
type nodeFunc func(ctx context.Context, sess *state.Session, deps nodes.Deps) (state.Delta, error)

var nodeTable = map[string]nodeFunc{
	"plan":       nodes.Plan,
	"search":     nodes.Search,
	"scrape":     nodes.Scrape,
	"summarize":  nodes.Summarize,
	"synthesize": nodes.Synthesize,
}

// Scheduler is the graph's SessionExecutor: one Scheduler serves every
// session a worker runs, while each Execute call builds its own
// per-session cost tracker: budgets are never shared across sessions.
// The recovery orchestrator's circuit breakers are intentionally shared
// process-wide, per node name, so a node that is failing across several
// sessions trips once rather than per session.
type Scheduler struct {
	llm       *llmclient.Client
	backend   search.Backend
	extractor scrape.Extractor
	searchCfg config.SearchConfig
	scrapeCfg config.ScrapeConfig
	costCfg   config.CostConfig

	recovery    *recovery.Orchestrator
	checkpoints *checkpoint.Store
	bus         *events.Bus
	memory      memory.SimilarityStore
	log         *slog.Logger
}

// New builds a Scheduler wired to its collaborators. mem may be nil, in
// which case completed runs simply aren't persisted into cross-session
// memory — a missing optional dependency, not an error.
func New(
	llm *llmclient.Client,
	backend search.Backend,
	extractor scrape.Extractor,
	cfg config.Config,
	checkpoints *checkpoint.Store,
	bus *events.Bus,
	mem memory.SimilarityStore,
	log *slog.Logger,
) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		llm:         llm,
		backend:     backend,
		extractor:   extractor,
		searchCfg:   cfg.Search,
		scrapeCfg:   cfg.Scrape,
		costCfg:     cfg.Cost,
		recovery:    recovery.NewOrchestrator(cfg.Retry),
		checkpoints: checkpoints,
		bus:         bus,
		memory:      mem,
		log:         log,
	}
}

// Execute runs sess from scratch (Step == "") through to a terminal
// status. It satisfies queue.SessionExecutor.
func (s *Scheduler) Execute(ctx context.Context, sess *state.Session) *queue.ExecutionResult {
	tracker := cost.NewTracker(s.costConfigFor(sess))
	return s.run(ctx, sess, tracker)
}

// Resume continues sess from its last checkpointed step, replaying zero
// nodes: the last successful node's delta is already merged into sess,
// so the first edge evaluated is the one leaving the recorded step.
func (s *Scheduler) Resume(ctx context.Context, sess *state.Session) *queue.ExecutionResult {
	tracker := cost.NewTracker(s.costConfigFor(sess))
	tracker.Seed(sess.CostUSD, sess.TokensUsed)
	return s.run(ctx, sess, tracker)
}

// costConfigFor applies sess.BudgetUSD as a per-session override of
// max_cost_per_run — zero means no override, the process-wide default
// applies.
func (s *Scheduler) costConfigFor(sess *state.Session) config.CostConfig {
	cfg := s.costCfg
	if sess.BudgetUSD > 0 {
		cfg.MaxCostPerRunUSD = sess.BudgetUSD
	}
	return cfg
}

func (s *Scheduler) run(ctx context.Context, sess *state.Session, tracker *cost.Tracker) *queue.ExecutionResult {
	deps := nodes.Deps{
		LLM:       s.llm,
		Backend:   s.backend,
		Extractor: s.extractor,
		Cost:      tracker,
		Search:    s.searchCfg,
		Scrape:    s.scrapeCfg,
		Log:       s.log,
	}

	sess.Status = state.StatusRunning
	s.checkpoint(ctx, sess)
	s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})

	next := s.nextNode(sess)

	for next != terminate {
		if err := ctx.Err(); err != nil {
			sess.Status = state.StatusCancelled
			s.checkpoint(ctx, sess)
			s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})
			return &queue.ExecutionResult{Status: sess.Status, Error: err}
		}

		if err := tracker.Reserve("", 0, 0); err != nil {
			sess.Status = state.StatusFailed
			sess.Error = "budget exhausted"
			sess.Merge(state.Delta{ErrorLog: []state.ErrorLogEntry{{
				Step: next, Message: "cost tracker reports budget exhausted, refusing to dispatch " + next, Recoverable: false,
			}}})
			s.checkpoint(ctx, sess)
			s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})
			return &queue.ExecutionResult{Status: sess.Status, Error: apperrors.ErrBudgetExhausted}
		}

		fn, ok := nodeTable[next]
		if !ok {
			sess.Status = state.StatusFailed
			sess.Error = fmt.Sprintf("unknown node %q", next)
			s.checkpoint(ctx, sess)
			return &queue.ExecutionResult{Status: sess.Status, Error: fmt.Errorf("graph: unknown node %q", next)}
		}

		s.publish(sess.ID, events.EventTypeNodeStatus, map[string]any{"node": next, "status": events.NodeStatusStarted})

		outcome := s.recovery.Run(ctx, next, func(ctx context.Context) (state.Delta, error) {
			return fn(ctx, sess, deps)
		})
		sess.Merge(outcome.Delta)
		sess.Merge(state.Delta{Recovery: &outcome.Recovery, DeadLetterQueue: outcome.DeadLetter})

		if outcome.Err != nil {
			if apperrors.IsCancellation(outcome.Err) {
				sess.Status = state.StatusCancelled
				s.checkpoint(ctx, sess)
				s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})
				return &queue.ExecutionResult{Status: sess.Status, Error: outcome.Err}
			}

			s.publish(sess.ID, events.EventTypeNodeStatus, map[string]any{"node": next, "status": events.NodeStatusFailed, "error": outcome.Err.Error()})
			sess.Status = state.StatusFailed
			sess.Error = outcome.Err.Error()
			sess.Merge(state.Delta{ErrorLog: []state.ErrorLogEntry{{
				Step: next, Message: outcome.Err.Error(), Recoverable: false,
			}}})
			s.checkpoint(ctx, sess)
			s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})
			return &queue.ExecutionResult{Status: sess.Status, Error: outcome.Err}
		}

		sess.Step = next
		s.checkpoint(ctx, sess)
		s.publish(sess.ID, events.EventTypeNodeStatus, map[string]any{"node": next, "status": events.NodeStatusCompleted})
		s.publish(sess.ID, events.EventTypeCostUpdate, map[string]any{"cost_usd": sess.CostUSD, "tokens_used": sess.TokensUsed})

		next = edges[next](sess)
	}

	sess.Status = state.StatusCompleted
	sess.Progress = 100
	if warning, ok := terminationWarning(sess); ok {
		sess.Status = state.StatusCompletedWithWarnings
		sess.ReportMetadata.Warnings = append(sess.ReportMetadata.Warnings, warning)
		s.publish(sess.ID, events.EventTypeSessionWarning, map[string]any{"step": sess.Step, "message": warning})
	} else {
		s.storeFindings(ctx, sess)
	}
	s.checkpoint(ctx, sess)
	s.publish(sess.ID, events.EventTypeSessionStatus, map[string]any{"status": string(sess.Status)})
	return &queue.ExecutionResult{Status: sess.Status}
}

// storeFindings persists a successful run's key findings into cross-session
// memory, so a later session on a related query can recall them. A run
// that ended with no summaries (nothing to learn) or with no memory store
// configured is a no-op. Failures are logged, not propagated: a run that
// already produced a report must not be reported as failed because the
// unrelated memory write afterward failed.
func (s *Scheduler) storeFindings(ctx context.Context, sess *state.Session) {
	if s.memory == nil {
		return
	}
	var docs []memory.Document
	for _, summary := range sess.Summaries {
		for i, finding := range summary.KeyFindings {
			if finding == "" {
				continue
			}
			docs = append(docs, memory.Document{
				ID:      fmt.Sprintf("%s-%d-%d", sess.ID, summary.SubQuestionID, i),
				Content: finding,
				Metadata: map[string]string{
					"query":     sess.Query,
					"type":      "finding",
					"stored_at": time.Now().UTC().Format(time.RFC3339),
				},
			})
		}
	}
	if len(docs) == 0 {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	added, err := s.memory.Add(storeCtx, docs)
	if err != nil {
		s.log.Error("graph: store findings in memory failed", "session_id", sess.ID, "error", err)
		return
	}
	s.log.Info("graph: stored findings in memory", "session_id", sess.ID, "count", added)
}

// terminationWarning reports whether the run just ended early from a
// node other than synthesize — currently only scrape returning zero
// usable pages — and if so, the message to attach to the report.
func terminationWarning(sess *state.Session) (string, bool) {
	if sess.Step == "scrape" && len(sess.ScrapedContent) == 0 {
		return "scrape found no usable pages; run ended with no content to summarize", true
	}
	return "", false
}

// nextNode picks the first node to dispatch: plan if nothing has run yet,
// otherwise the edge leaving the last-completed node (used on resume).
func (s *Scheduler) nextNode(sess *state.Session) string {
	if sess.Step == "" {
		return "plan"
	}
	fn, ok := edges[sess.Step]
	if !ok {
		return "plan"
	}
	return fn(sess)
}

// checkpoint saves on a fresh, short-lived context rather than the run's
// own ctx, so a save triggered by cancellation (recording CANCELLED) is
// not itself aborted by that same cancellation.
func (s *Scheduler) checkpoint(ctx context.Context, sess *state.Session) {
	if s.checkpoints == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.checkpoints.Save(saveCtx, sess); err != nil {
		s.log.Error("graph: checkpoint save failed", "session_id", sess.ID, "error", err)
	}
}

func (s *Scheduler) publish(sessionID, eventType string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Publish(sessionID, eventType, payload); err != nil {
		s.log.Error("graph: publish failed", "session_id", sessionID, "event_type", eventType, "error", err)
	}
}
