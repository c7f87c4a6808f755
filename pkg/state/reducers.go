package state

import "fmt"

// Merge applies a node's Delta onto the session in place: list fields
// concatenate in node dispatch order, scalar fields are last-writer-wins.
// The scheduler calls
// this exactly once per node completion, before checkpointing — there is
// no partial/torn application, the whole delta merges as one step.
func (s *Session) Merge(d Delta) {
	if d.Step != "" {
		s.Step = d.Step
	}
	if d.StepIndex != 0 {
		s.StepIndex = d.StepIndex
	}

	if len(d.SubQuestions) > 0 {
		validateSubQuestions(d.SubQuestions)
		s.SubQuestions = append(s.SubQuestions, d.SubQuestions...)
	}
	if d.CurrentSubtopicIndex != nil {
		s.CurrentSubtopicIndex = *d.CurrentSubtopicIndex
	}

	if len(d.SearchResults) > 0 {
		validateSearchResults(d.SearchResults, s.SubQuestions)
		s.SearchResults = append(s.SearchResults, d.SearchResults...)
	}
	if len(d.SeenURLs) > 0 {
		s.SeenURLs = append(s.SeenURLs, d.SeenURLs...)
	}
	if len(d.ScrapedContent) > 0 {
		validateScrapedContent(d.ScrapedContent)
		s.ScrapedContent = append(s.ScrapedContent, d.ScrapedContent...)
	}
	if len(d.Summaries) > 0 {
		s.Summaries = append(s.Summaries, d.Summaries...)
	}
	if d.FinalReport != "" {
		s.FinalReport = d.FinalReport
	}
	if len(d.Sources) > 0 {
		s.Sources = append(s.Sources, d.Sources...)
	}
	if len(d.ErrorLog) > 0 {
		s.ErrorLog = append(s.ErrorLog, d.ErrorLog...)
	}
	if d.SearchRetryCount != nil {
		s.SearchRetryCount = *d.SearchRetryCount
	}

	s.CostUSD += d.CostUSD
	s.TokensUsed += d.TokensUsed

	if d.Recovery != nil {
		r := &s.ReportMetadata.Recovery
		r.RetriesAttempted += d.Recovery.RetriesAttempted
		r.RecoveredFailures += d.Recovery.RecoveredFailures
		r.RetryExhausted += d.Recovery.RetryExhausted
		r.CircuitBreakerOpened += d.Recovery.CircuitBreakerOpened
		r.CircuitBreakerSkips += d.Recovery.CircuitBreakerSkips
		r.DeadLetterCount += d.Recovery.DeadLetterCount
	}
	if len(d.DeadLetterQueue) > 0 {
		s.ReportMetadata.DeadLetterQueue = append(s.ReportMetadata.DeadLetterQueue, d.DeadLetterQueue...)
	}
	if d.QualityCheck != nil {
		s.ReportMetadata.QualityCheck = d.QualityCheck
	}
}

// validateSubQuestions enforces the 1..10, id-sequential, non-empty
// question invariants. A violation here is a programmer error in the
// Plan node, not a recoverable condition — it panics rather than
// silently corrupting state.
func validateSubQuestions(qs []SubQuestion) {
	if len(qs) < 1 || len(qs) > 10 {
		panic(fmt.Sprintf("state: sub_questions must have 1..10 items, got %d", len(qs)))
	}
	for i, q := range qs {
		if q.ID != i+1 {
			panic(fmt.Sprintf("state: sub_question ids must run 1..N in order, got id %d at position %d", q.ID, i+1))
		}
		if q.Question == "" {
			panic("state: sub_question.question must be non-empty")
		}
	}
}

// validateSearchResults enforces invariant 1 (§3/§8): every
// sub_question_id must reference an existing sub-question, and score
// must be clamped to [0,1].
func validateSearchResults(results []SearchResult, known []SubQuestion) {
	ids := make(map[int]struct{}, len(known))
	for _, q := range known {
		ids[q.ID] = struct{}{}
	}
	for _, r := range results {
		if _, ok := ids[r.SubQuestionID]; !ok {
			panic(fmt.Sprintf("state: search_result references unknown sub_question_id %d", r.SubQuestionID))
		}
		if r.Score < 0 || r.Score > 1 {
			panic(fmt.Sprintf("state: search_result score %f out of [0,1]", r.Score))
		}
	}
}

func validateScrapedContent(pages []ScrapedPage) {
	for _, p := range pages {
		if p.QualityScore < 0 || p.QualityScore > 1 {
			panic(fmt.Sprintf("state: scraped_page quality_score %f out of [0,1]", p.QualityScore))
		}
		if p.WordCount < 0 {
			panic("state: scraped_page word_count must be >= 0")
		}
	}
}

// SeenURLSet returns SeenURLs as a set for O(1) dedup lookups; callers
// (the Search node) use this rather than scanning the slice per result.
func (s *Session) SeenURLSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.SeenURLs))
	for _, u := range s.SeenURLs {
		set[u] = struct{}{}
	}
	return set
}
