package promptcache

// Tracker accumulates prompt-cache hit/miss statistics for a session, so
// the final report can show how much of the session's input-token spend
// was served from the provider's cache.
type Tracker struct {
	totalCalls   int
	cacheHits    int
	cacheMisses  int
	totalTokens  int64
	cachedTokens int64
}

// RecordCall logs one API call's cache status: a call with any
// cachedTokens counts as a hit.
func (t *Tracker) RecordCall(inputTokens, cachedTokens int64) {
	t.totalCalls++
	t.totalTokens += inputTokens
	t.cachedTokens += cachedTokens
	if cachedTokens > 0 {
		t.cacheHits++
	} else {
		t.cacheMisses++
	}
}

// HitRate is the fraction of calls that hit the cache, 0 if none recorded.
func (t *Tracker) HitRate() float64 {
	if t.totalCalls == 0 {
		return 0
	}
	return float64(t.cacheHits) / float64(t.totalCalls)
}

// EstimatedSavings estimates USD saved by cache hits at the given
// per-million-token input price, since cached reads cost
// cacheReadCostMultiplier of the uncached price.
func (t *Tracker) EstimatedSavings(inputCostPerMtok float64) float64 {
	if t.cachedTokens == 0 {
		return 0
	}
	costPerToken := inputCostPerMtok / 1_000_000
	uncached := float64(t.cachedTokens) * costPerToken
	cached := uncached * cacheReadCostMultiplier
	return uncached - cached
}

// Summary is the aggregate stats attached to a session's report metadata.
type Summary struct {
	TotalCalls        int     `json:"total_calls"`
	CacheHits         int     `json:"cache_hits"`
	CacheMisses       int     `json:"cache_misses"`
	HitRate           float64 `json:"hit_rate"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	CachedInputTokens int64   `json:"cached_input_tokens"`
}

// Summary snapshots the tracker's current counters.
func (t *Tracker) Summary() Summary {
	return Summary{
		TotalCalls:        t.totalCalls,
		CacheHits:         t.cacheHits,
		CacheMisses:       t.cacheMisses,
		HitRate:           t.HitRate(),
		TotalInputTokens:  t.totalTokens,
		CachedInputTokens: t.cachedTokens,
	}
}
