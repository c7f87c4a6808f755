// Package context manages a rolling window of research-pipeline turns,
// masking older tool outputs once the context grows past its token
// budget so long-running sessions don't blow past the model's context
// window. Unrelated to stdlib context.Context.
package context

import "fmt"

// Turn is one entry in a session's raw turn history.
type Turn struct {
	Role       string `json:"role"` // system, user, assistant, tool
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
	StepName   string `json:"step_name"`
	Masked     bool   `json:"masked"`
}

// CompactionResult reports what a single Compact call changed.
type CompactionResult struct {
	OriginalTokens  int `json:"original_tokens"`
	CompactedTokens int `json:"compacted_tokens"`
	TurnsMasked     int `json:"turns_masked"`
	TurnsTotal      int `json:"turns_total"`
}

// Manager keeps the most recent WindowSize turns in full detail,
// replacing older tool-output turns with a short placeholder once the
// total estimated token count crosses MaxTokens.
type Manager struct {
	windowSize              int
	maxTokens               int
	compactionCooldownTurns int

	turns                []Turn
	turnsSinceCompaction int
	compactionPending    bool
}

// NewManager builds a Manager. Zero values fall back to defaults tuned
// for typical sessions: a 10-turn window, a 100,000-token soft budget,
// and a 3-turn cooldown between compaction
// attempts that find nothing to mask.
func NewManager(windowSize, maxTokens, compactionCooldownTurns int) *Manager {
	if windowSize <= 0 {
		windowSize = 10
	}
	if maxTokens <= 0 {
		maxTokens = 100_000
	}
	if compactionCooldownTurns <= 0 {
		compactionCooldownTurns = 3
	}
	return &Manager{windowSize: windowSize, maxTokens: maxTokens, compactionCooldownTurns: compactionCooldownTurns}
}

// TurnCount returns the number of turns tracked.
func (m *Manager) TurnCount() int { return len(m.turns) }

// Turns returns a copy of the tracked turns (masked and unmasked).
func (m *Manager) Turns() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// TotalTokens sums every tracked turn's estimated token count.
func (m *Manager) TotalTokens() int {
	total := 0
	for _, t := range m.turns {
		total += t.TokenCount
	}
	return total
}

// AddTurn appends turn and compacts if the context has grown past
// MaxTokens. Compaction is skipped during the cooldown window that
// follows a compaction pass which found nothing left to mask — without
// the cooldown, a session sitting above budget with no more tool turns
// to mask would re-scan every single turn on every subsequent AddTurn.
func (m *Manager) AddTurn(t Turn) {
	m.turns = append(m.turns, t)
	m.turnsSinceCompaction++

	if m.compactionPending {
		if m.turnsSinceCompaction < m.compactionCooldownTurns {
			return
		}
		m.compactionPending = false
	}

	if m.TotalTokens() > m.maxTokens {
		result := m.Compact()
		m.turnsSinceCompaction = 0
		if result.TurnsMasked == 0 {
			m.compactionPending = true
		}
	}
}

// Compact masks tool-output turns older than the last WindowSize turns,
// replacing their content with a placeholder.
func (m *Manager) Compact() CompactionResult {
	original := m.TotalTokens()
	masked := 0

	cutoff := len(m.turns) - m.windowSize
	if cutoff < 0 {
		cutoff = 0
	}

	for i := 0; i < cutoff; i++ {
		t := &m.turns[i]
		if t.Role == "tool" && !t.Masked {
			t.Content = fmt.Sprintf("[masked tool output from %s]", t.StepName)
			t.TokenCount = 10
			t.Masked = true
			masked++
		}
	}

	if masked > 0 {
		m.compactionPending = false
		m.turnsSinceCompaction = 0
	}

	return CompactionResult{
		OriginalTokens:  original,
		CompactedTokens: m.TotalTokens(),
		TurnsMasked:     masked,
		TurnsTotal:      len(m.turns),
	}
}

// Window returns the turns formatted as {role, content} pairs for LLM
// consumption.
func (m *Manager) Window() []map[string]string {
	out := make([]map[string]string, len(m.turns))
	for i, t := range m.turns {
		out[i] = map[string]string{"role": t.Role, "content": t.Content}
	}
	return out
}

// Clear removes every tracked turn.
func (m *Manager) Clear() {
	m.turns = nil
	m.turnsSinceCompaction = 0
	m.compactionPending = false
}
