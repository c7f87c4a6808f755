// Package nodes implements the five pipeline stages the graph scheduler
// dispatches — plan, search, scrape, summarize, synthesize — plus the
// advisory post-Synthesize quality check. Every node is a plain function
// from (context, session, deps) to a state.Delta: no node mutates the
// session directly, and none of them retries internally — the recovery
// orchestrator owns that.
package nodes

import (
	"log/slog"

	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/cost"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/scrape"
	"github.com/deepresearch-labs/agent/pkg/search"
)

// Deps bundles every collaborator a node needs, constructed once at
// startup and threaded through the scheduler to every node invocation.
type Deps struct {
	LLM       *llmclient.Client
	Backend   search.Backend
	Extractor scrape.Extractor
	Cost      *cost.Tracker
	Search    config.SearchConfig
	Scrape    config.ScrapeConfig
	Log       *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}
