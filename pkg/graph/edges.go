package graph

import "github.com/deepresearch-labs/agent/pkg/state"

// terminate is the pseudo-node name an edge function returns to end a run.
const terminate = "TERMINATE"

// edgeFunc decides the next node to dispatch given the session as it
// stands after the last-completed node's delta was merged. Evaluation is
// pure — no I/O, no mutation — so the scheduler can call it freely on
// resume without re-running anything.
type edgeFunc func(sess *state.Session) string

// edges is the fixed {plan, search, scrape, summarize, synthesize} graph.
var edges = map[string]edgeFunc{
	"plan":       edgeFromPlan,
	"search":     edgeFromSearch,
	"scrape":     edgeFromScrape,
	"summarize":  edgeFromSummarize,
	"synthesize": edgeFromSynthesize,
}

func edgeFromPlan(sess *state.Session) string {
	return "search"
}

// edgeFromSearch loops back to search until every sub-question has been
// advanced past by current_subtopic_index (see the Search node itself,
// which owns the per-subtopic advance decision — the edge only checks
// exhaustion, recorded as a deliberate departure from a literal global
// reading of the criterion in DESIGN.md).
func edgeFromSearch(sess *state.Session) string {
	if sess.CurrentSubtopicIndex >= len(sess.SubQuestions) {
		return "scrape"
	}
	return "search"
}

func edgeFromScrape(sess *state.Session) string {
	if len(sess.ScrapedContent) == 0 {
		return terminate
	}
	return "summarize"
}

func edgeFromSummarize(sess *state.Session) string {
	return "synthesize"
}

func edgeFromSynthesize(sess *state.Session) string {
	return terminate
}
