package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
)

// DimensionScore is one LLM-as-judge dimension's contribution to an
// EvaluationResult.
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"` // 0..10
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning"`
}

// WeightedScore is score*weight, this dimension's contribution to the
// overall 0..10 score.
func (d DimensionScore) WeightedScore() float64 { return d.Score * d.Weight }

// EvaluationResult is a full self-evaluation of a synthesized report.
type EvaluationResult struct {
	Query            string           `json:"query"`
	Dimensions       []DimensionScore `json:"dimensions"`
	OverallScore     float64          `json:"overall_score"`
	OverallReasoning string           `json:"overall_reasoning"`
	Recommendations  []string         `json:"recommendations"`
}

// evaluationDimensions names the five judged dimensions and their
// weights, which must sum to 1.0.
var evaluationDimensions = []struct {
	Name   string
	Weight float64
}{
	{"Factual Accuracy", 0.30},
	{"Completeness", 0.25},
	{"Coverage", 0.20},
	{"Coherence", 0.15},
	{"Bias", 0.10},
}

// ScoreEvaluation computes the weighted overall score (0..10) from a set
// of dimension scores — a pure function with no LLM dependency, so it is
// exercised directly in tests independent of any judge call.
func ScoreEvaluation(dimensions []DimensionScore) float64 {
	if len(dimensions) == 0 {
		return 0
	}
	var total float64
	for _, d := range dimensions {
		total += d.WeightedScore()
	}
	return total
}

// EvaluationPrompter builds and runs the LLM-as-judge call for a
// synthesized report — a narrow interface so the MCP `evaluate` tool and
// any test double depend only on what they use.
type EvaluationPrompter interface {
	Evaluate(ctx context.Context, query, report string) (EvaluationResult, error)
}

// JudgeEvaluator is the concrete EvaluationPrompter backed by an LLM
// call asked to score the report across the five fixed dimensions.
type JudgeEvaluator struct {
	LLM   *llmclient.Client
	Model string
}

// NewJudgeEvaluator builds a JudgeEvaluator; an empty model defaults to
// claude-sonnet, matching Synthesize's non-demoting tier.
func NewJudgeEvaluator(llm *llmclient.Client, model string) *JudgeEvaluator {
	if model == "" {
		model = synthesizeModel
	}
	return &JudgeEvaluator{LLM: llm, Model: model}
}

type judgeOutput struct {
	Dimensions []struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	} `json:"dimensions"` // one entry per evaluationDimensions, in order
	OverallReasoning string   `json:"overall_reasoning"`
	Recommendations  []string `json:"recommendations"`
}

// Evaluate scores report against query using an LLM judge prompted with
// the five fixed dimensions, in order.
func (e *JudgeEvaluator) Evaluate(ctx context.Context, query, report string) (EvaluationResult, error) {
	prompt := buildEvaluationPrompt(query, report)

	resp, err := e.LLM.Complete(ctx, llmclient.Request{
		Model:       e.Model,
		Provider:    "anthropic",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	var out judgeOutput
	if err := json.Unmarshal(extractJSON(resp.Text), &out); err != nil {
		return EvaluationResult{}, fmt.Errorf("%w: evaluation response not valid JSON", apperrors.ErrInvariantViolation)
	}
	if len(out.Dimensions) != len(evaluationDimensions) {
		return EvaluationResult{}, fmt.Errorf("%w: evaluation returned %d dimensions, want %d", apperrors.ErrInvariantViolation, len(out.Dimensions), len(evaluationDimensions))
	}

	dims := make([]DimensionScore, len(evaluationDimensions))
	for i, d := range evaluationDimensions {
		dims[i] = DimensionScore{
			Dimension: d.Name,
			Score:     clampScore(out.Dimensions[i].Score),
			Weight:    d.Weight,
			Reasoning: out.Dimensions[i].Reasoning,
		}
	}

	return EvaluationResult{
		Query:            query,
		Dimensions:       dims,
		OverallScore:     ScoreEvaluation(dims),
		OverallReasoning: out.OverallReasoning,
		Recommendations:  out.Recommendations,
	}, nil
}

func buildEvaluationPrompt(query, report string) string {
	prompt := "Score the research report below across exactly these dimensions, " +
		"in this order: "
	for i, d := range evaluationDimensions {
		if i > 0 {
			prompt += ", "
		}
		prompt += d.Name
	}
	prompt += ". Each score is 0-10. Reply with JSON only: " +
		`{"dimensions":[{"score":0,"reasoning":"..."}],"overall_reasoning":"...","recommendations":["..."]}` +
		fmt.Sprintf("\n\nQuery: %s\n\nReport:\n%s", query, report)
	return prompt
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
