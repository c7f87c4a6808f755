package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	rctx "github.com/deepresearch-labs/agent/pkg/context"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/state"
)

const summarizeModel = "claude-sonnet"

type summaryOutput struct {
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings"`
}

// Summarize groups scraped content by sub-question and produces one
// compressed Summary per group with content, skipping sub-questions that
// already have a summary or have no scraped content at all.
func Summarize(ctx context.Context, sess *state.Session, deps Deps) (state.Delta, error) {
	log := deps.logger().With("node", "summarize", "session_id", sess.ID)

	alreadySummarized := make(map[int]struct{}, len(sess.Summaries))
	for _, s := range sess.Summaries {
		alreadySummarized[s.SubQuestionID] = struct{}{}
	}

	groups := make(map[int][]state.ScrapedPage)
	for _, p := range sess.ScrapedContent {
		if _, done := alreadySummarized[p.SubQuestionID]; done {
			continue
		}
		groups[p.SubQuestionID] = append(groups[p.SubQuestionID], p)
	}

	log.Info("summarize_start", "num_content", len(sess.ScrapedContent), "num_groups", len(groups))

	questionByID := make(map[int]string, len(sess.SubQuestions))
	for _, q := range sess.SubQuestions {
		questionByID[q.ID] = q.Question
	}

	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var summaries []state.Summary
	var totalCost float64
	var totalTokens int64
	for _, id := range ids {
		items := groups[id]
		summary, costUSD, tokens, err := summarizeGroup(ctx, questionByID[id], items, deps)
		totalCost += costUSD
		totalTokens += tokens
		if err != nil {
			return state.Delta{}, err
		}
		summary.SubQuestionID = id
		summaries = append(summaries, summary)
	}

	log.Info("summarize_complete", "num_summaries", len(summaries))

	return state.Delta{
		Step:       "summarize",
		StepIndex:  3,
		Summaries:  summaries,
		CostUSD:    totalCost,
		TokensUsed: totalTokens,
	}, nil
}

func summarizeGroup(ctx context.Context, question string, items []state.ScrapedPage, deps Deps) (state.Summary, float64, int64, error) {
	// A sub-question with many scraped sources can otherwise produce a
	// prompt that blows past the model's context window; route sources
	// through a rolling-window manager so only the most recent
	// windowSize stay in full detail once the group's content crosses
	// the token budget.
	mgr := rctx.NewManager(0, 0, 0)
	urls := make([]string, 0, len(items))
	for i, item := range items {
		tokens, err := estimateTokens(item.Content)
		if err != nil {
			return state.Summary{}, 0, 0, err
		}
		mgr.AddTurn(rctx.Turn{
			Role:       "tool",
			Content:    fmt.Sprintf("Source %d (%s):\n%s", i+1, item.URL, item.Content),
			TokenCount: tokens,
			StepName:   "scrape",
		})
		urls = append(urls, item.URL)
	}

	var sb strings.Builder
	for _, t := range mgr.Turns() {
		sb.WriteString(t.Content)
		sb.WriteString("\n\n")
	}

	model := deps.Cost.ResolveModel(summarizeModel)
	prompt := fmt.Sprintf(
		"Summarize the following sources with respect to the sub-question "+
			`below. Reply with JSON only: {"summary":"...","key_findings":["...","..."]}.`+
			"\n\nSub-question: %s\n\n%s", question, sb.String())

	promptTokens, err := estimateTokens(prompt)
	if err != nil {
		return state.Summary{}, 0, 0, err
	}
	if err := deps.Cost.Reserve(model, promptTokens, 512); err != nil {
		return state.Summary{}, 0, 0, err
	}

	resp, err := deps.LLM.Complete(ctx, llmclient.Request{
		Model:       model,
		Provider:    "anthropic",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return state.Summary{}, 0, 0, err
	}
	costUSD := deps.Cost.Record(model, promptTokens, resp.OutputTokens)
	tokens := int64(promptTokens + resp.OutputTokens)

	var out summaryOutput
	if err := json.Unmarshal(extractJSON(resp.Text), &out); err != nil {
		return state.Summary{}, costUSD, tokens, fmt.Errorf("%w: summary response not valid JSON", apperrors.ErrInvariantViolation)
	}

	return state.Summary{
		Text:        out.Summary,
		SourceURLs:  urls,
		KeyFindings: out.KeyFindings,
	}, costUSD, tokens, nil
}
