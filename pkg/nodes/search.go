package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/state"
)

const expandModel = "claude-haiku"

// Search issues the web search for the current sub-question, expands it
// into query variations when configured, and returns the new,
// deduplicated results for that sub-question alone — the graph scheduler
// decides, from CurrentSubtopicIndex, whether to call Search again for
// the next sub-question or move on to Scrape.
func Search(ctx context.Context, sess *state.Session, deps Deps) (state.Delta, error) {
	log := deps.logger().With("node", "search", "session_id", sess.ID)

	idx := sess.CurrentSubtopicIndex
	if idx >= len(sess.SubQuestions) {
		log.Info("search_skip", "reason", "no more sub-questions")
		return state.Delta{Step: "search", StepIndex: 1}, nil
	}
	subQ := sess.SubQuestions[idx]

	queries := []string{subQ.Question}
	var expandCostUSD float64
	var expandTokens int64
	if deps.Search.ExpandVariations {
		variations, costUSD, tokens, err := expandQuery(ctx, subQ.Question, deps)
		expandCostUSD = costUSD
		expandTokens = tokens
		if err != nil {
			log.Warn("search_expand_failed", "error", err)
		} else {
			queries = append(queries, variations...)
		}
	}

	raw := runSearches(ctx, queries, subQ.ID, deps)

	unique := dedupeByURL(raw)
	seen := sess.SeenURLSet()
	fresh := make([]state.SearchResult, 0, len(unique))
	newURLs := make([]string, 0, len(unique))
	for _, r := range unique {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		fresh = append(fresh, r)
		newURLs = append(newURLs, r.URL)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Score > fresh[j].Score })
	if len(fresh) > deps.Search.MaxResultsPerBatch {
		fresh = fresh[:deps.Search.MaxResultsPerBatch]
	}

	existingForSubtopic := 0
	for _, r := range sess.SearchResults {
		if r.SubQuestionID == subQ.ID {
			existingForSubtopic++
		}
	}
	totalForSubtopic := existingForSubtopic + len(fresh)

	retryCount := sess.SearchRetryCount
	if len(fresh) < deps.Search.MinResults {
		retryCount++
	}
	doneWithSubtopic := totalForSubtopic >= deps.Search.MinResults || retryCount >= deps.Search.MaxRetries

	nextIdx := idx
	nextRetry := retryCount
	if doneWithSubtopic {
		nextIdx = idx + 1
		nextRetry = 0
	}

	log.Info("search_complete",
		"sub_question_id", subQ.ID,
		"new_results", len(fresh),
		"total_for_subtopic", totalForSubtopic,
		"done_with_subtopic", doneWithSubtopic,
	)

	return state.Delta{
		Step:                 "search",
		StepIndex:            1,
		SearchResults:        fresh,
		SeenURLs:             newURLs,
		CurrentSubtopicIndex: &nextIdx,
		SearchRetryCount:     &nextRetry,
		CostUSD:              expandCostUSD,
		TokensUsed:           expandTokens,
	}, nil
}

type expandedQueries struct {
	Variations []string `json:"variations"`
}

// expandQuery asks the LLM for three diverse reformulations of question
// (the "ExpandSearch" pattern) — gated by deps.Search.ExpandVariations.
// Returns the variations plus the USD cost and tokens the call spent, so
// the caller can fold them into its own Delta.
func expandQuery(ctx context.Context, question string, deps Deps) ([]string, float64, int64, error) {
	prompt := fmt.Sprintf(
		"Produce exactly 3 diverse reformulations of this search query, "+
			`each a complete standalone query. Reply with JSON only: {"variations":["...","...","..."]}`+
			"\n\nQuery: %s", question)

	model := deps.Cost.ResolveModel(expandModel)
	promptTokens, err := estimateTokens(prompt)
	if err != nil {
		return nil, 0, 0, err
	}
	if err := deps.Cost.Reserve(model, promptTokens, 256); err != nil {
		return nil, 0, 0, err
	}

	resp, err := deps.LLM.Complete(ctx, llmclient.Request{
		Model:       model,
		Provider:    "anthropic",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	costUSD := deps.Cost.Record(model, promptTokens, resp.OutputTokens)
	tokens := int64(promptTokens + resp.OutputTokens)

	var out expandedQueries
	if err := json.Unmarshal(extractJSON(resp.Text), &out); err != nil {
		return nil, costUSD, tokens, fmt.Errorf("%w: expand-query response not valid JSON", apperrors.ErrInvariantViolation)
	}
	return out.Variations, costUSD, tokens, nil
}

// runSearches issues one backend call per query, bounded to
// MaxConcurrentBackendCalls simultaneous calls, filtering below
// MinRelevanceScore and logging (not failing) per-query errors.
func runSearches(ctx context.Context, queries []string, subQuestionID int, deps Deps) []state.SearchResult {
	log := deps.logger().With("node", "search")
	limit := deps.Search.MaxConcurrentBackendCalls
	if limit <= 0 {
		limit = 1
	}
	gate := make(chan struct{}, limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var all []state.SearchResult

	for _, q := range queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()

			results, err := deps.Backend.Search(ctx, query, deps.Search.MaxResultsPerBatch)
			if err != nil {
				log.Warn("search_query_failed", "query", query, "error", err)
				return
			}

			filtered := make([]state.SearchResult, 0, len(results))
			for _, r := range results {
				if r.Score < deps.Search.MinRelevanceScore {
					continue
				}
				filtered = append(filtered, state.SearchResult{
					SubQuestionID: subQuestionID,
					Query:         query,
					URL:           r.URL,
					Title:         r.Title,
					Snippet:       r.Snippet,
					Score:         clamp01(r.Score),
				})
			}

			mu.Lock()
			all = append(all, filtered...)
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	return all
}

func dedupeByURL(results []state.SearchResult) []state.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]state.SearchResult, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
