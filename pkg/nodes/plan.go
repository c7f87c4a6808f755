package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/state"
)

const planModel = "claude-sonnet"

type planOutput struct {
	SubQuestions []struct {
		Question  string `json:"question"`
		Rationale string `json:"rationale"`
	} `json:"sub_questions"`
	Reasoning string `json:"reasoning"`
}

// Plan decomposes the session's query into 1..10 focused sub-questions,
// each assigned a sequential 1-based id.
func Plan(ctx context.Context, sess *state.Session, deps Deps) (state.Delta, error) {
	log := deps.logger().With("node", "plan", "session_id", sess.ID)
	log.Info("plan_start", "query", sess.Query)

	prompt := fmt.Sprintf(
		"Decompose the following research query into 1 to 10 focused "+
			"sub-questions. Reply with JSON only, shaped as "+
			`{"sub_questions":[{"question":"...","rationale":"..."}],"reasoning":"..."}.`+
			"\n\nQuery: %s", sess.Query)

	promptTokens, err := estimateTokens(prompt)
	if err != nil {
		return state.Delta{}, fmt.Errorf("nodes: estimate plan tokens: %w", err)
	}
	if err := deps.Cost.Reserve(planModel, promptTokens, 1024); err != nil {
		return state.Delta{}, err
	}

	resp, err := deps.LLM.Complete(ctx, llmclient.Request{
		Model:       planModel,
		Provider:    "anthropic",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return state.Delta{}, err
	}
	cost := deps.Cost.Record(planModel, promptTokens, resp.OutputTokens)

	var out planOutput
	if err := json.Unmarshal(extractJSON(resp.Text), &out); err != nil {
		return state.Delta{}, fmt.Errorf("%w: plan response not valid JSON: %s", apperrors.ErrInvariantViolation, err)
	}
	if len(out.SubQuestions) < 1 || len(out.SubQuestions) > 10 {
		return state.Delta{}, fmt.Errorf("%w: plan produced %d sub-questions, want 1..10", apperrors.ErrInvariantViolation, len(out.SubQuestions))
	}

	subQuestions := make([]state.SubQuestion, 0, len(out.SubQuestions))
	for i, sq := range out.SubQuestions {
		question := strings.TrimSpace(sq.Question)
		if question == "" {
			return state.Delta{}, fmt.Errorf("%w: plan sub-question %d is empty", apperrors.ErrInvariantViolation, i+1)
		}
		subQuestions = append(subQuestions, state.SubQuestion{
			ID:        i + 1,
			Question:  question,
			Rationale: sq.Rationale,
		})
	}

	log.Info("plan_complete", "num_sub_questions", len(subQuestions))

	zero := 0
	return state.Delta{
		Step:                 "plan",
		StepIndex:            0,
		SubQuestions:         subQuestions,
		CurrentSubtopicIndex: &zero,
		CostUSD:              cost,
		TokensUsed:           int64(promptTokens + resp.OutputTokens),
	}, nil
}

// extractJSON trims surrounding prose/code fences an LLM sometimes wraps
// a JSON object in, returning the innermost {...} span.
func extractJSON(text string) []byte {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}
