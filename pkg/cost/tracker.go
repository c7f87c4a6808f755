// Package cost tracks a session's running spend against its budget and
// demotes non-critical calls to a cheaper model tier once spend crosses
// a warning threshold. Every external call reserves its
// estimated cost before it goes out, so a runaway session fails closed
// on ErrBudgetExhausted rather than discovering the overrun after the
// fact.
package cost

import (
	"sync"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/config"
)

// Tracker accumulates a single session's spend against its configured
// budget. Not shared across sessions — one Tracker per run.
type Tracker struct {
	cfg config.CostConfig

	mu       sync.Mutex
	spentUSD float64
	tokens   int64
}

// NewTracker builds a Tracker from cfg.
func NewTracker(cfg config.CostConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Reserve checks whether calling model with the given token estimate
// would exceed the session budget, without yet committing the spend —
// callers commit with Record once the actual usage is known. Returns
// apperrors.ErrBudgetExhausted if even the estimate would overrun.
func (t *Tracker) Reserve(model string, promptTokens, expectedOutputTokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	estimated := t.estimate(model, promptTokens, expectedOutputTokens)
	if t.spentUSD+estimated > t.cfg.MaxCostPerRunUSD {
		return apperrors.ErrBudgetExhausted
	}
	return nil
}

// Record commits the actual cost of a completed call to the running
// total and returns that call's cost in USD.
func (t *Tracker) Record(model string, promptTokens, outputTokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := t.estimate(model, promptTokens, outputTokens)
	t.spentUSD += cost
	t.tokens += int64(promptTokens + outputTokens)
	return cost
}

// estimate prices a call at the given token counts. An unknown model
// prices at zero rather than failing the call — an unpriced model is a
// config gap to fix, not a reason to block a research session.
func (t *Tracker) estimate(model string, promptTokens, outputTokens int) float64 {
	price, ok := t.cfg.ModelPrices[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)*price.InputPerMtok/1_000_000 + float64(outputTokens)*price.OutputPerMtok/1_000_000
}

// Seed preloads spentUSD/tokens onto a freshly constructed Tracker —
// used when a session resumes from checkpoint, so a process restart
// doesn't forget prior spend and let a resumed run burn past budget.
func (t *Tracker) Seed(spentUSD float64, tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spentUSD = spentUSD
	t.tokens = tokens
}

// SpentUSD reports the total committed spend so far.
func (t *Tracker) SpentUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spentUSD
}

// TokensUsed reports the total prompt+output tokens committed so far.
func (t *Tracker) TokensUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens
}

// PercentSpent is SpentUSD as a fraction of MaxCostPerRunUSD.
func (t *Tracker) PercentSpent() float64 {
	if t.cfg.MaxCostPerRunUSD <= 0 {
		return 0
	}
	return t.SpentUSD() / t.cfg.MaxCostPerRunUSD
}

// ResolveModel returns the model a call to primary should actually use:
// primary itself, unless spend has crossed WarnAtPercentage and a tier
// downgrade is configured for it. Callers that must never downgrade
// (Synthesize) should not call this at all.
func (t *Tracker) ResolveModel(primary string) string {
	if t.PercentSpent() < t.cfg.WarnAtPercentage {
		return primary
	}
	if cheaper, ok := t.cfg.TierDowngrades[primary]; ok {
		return cheaper
	}
	return primary
}
