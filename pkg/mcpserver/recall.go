package mcpserver

import (
	"encoding/json"
	"time"

	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/memory"
)

// formatRecall filters results below the configured relevance threshold
// and annotates the rest as stale once their stored_at metadata predates
// staleness_days. A result with no stored_at, or one that fails to
// parse, is treated as stale rather than fresh: every document this
// engine writes stamps stored_at itself (see Scheduler.storeFindings), so
// a missing timestamp means the entry came from somewhere else and its
// age can't be vouched for.
func formatRecall(results []memory.SimilarityResult, cfg config.MemoryConfig) []recallEntry {
	threshold := cfg.RelevanceThreshold
	if threshold <= 0 {
		threshold = 0.80
	}
	stalenessDays := cfg.StalenessDays
	if stalenessDays <= 0 {
		stalenessDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -stalenessDays)

	entries := make([]recallEntry, 0, len(results))
	for _, r := range results {
		if r.Score < threshold {
			continue
		}
		stale := true
		if storedAt, ok := r.Metadata["stored_at"]; ok {
			if ts, err := time.Parse(time.RFC3339, storedAt); err == nil {
				stale = ts.Before(cutoff)
			}
		}
		entries = append(entries, recallEntry{
			Content: r.Content,
			Score:   r.Score,
			Stale:   stale,
		})
	}
	return entries
}

func recallJSON(entries []recallEntry) string {
	data, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
