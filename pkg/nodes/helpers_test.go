package nodes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/cost"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/scrape"
	"github.com/deepresearch-labs/agent/pkg/search"
)

func testDeps(t *testing.T, llmHandler http.HandlerFunc, backend search.Backend, extractor scrape.Extractor) nodes.Deps {
	t.Helper()

	srv := httptest.NewServer(llmHandler)
	t.Cleanup(srv.Close)

	costCfg := config.CostConfig{
		MaxCostPerRunUSD: 100,
		WarnAtPercentage: 0.80,
		ModelPrices: map[string]config.ModelPrice{
			"claude-sonnet": {InputPerMtok: 3, OutputPerMtok: 15},
			"claude-haiku":  {InputPerMtok: 0.8, OutputPerMtok: 4},
		},
		TierDowngrades: map[string]string{
			"claude-sonnet": "claude-haiku",
		},
	}

	return nodes.Deps{
		LLM:       llmclient.New(srv.URL, srv.Client(), nil, nil, nil, nil),
		Backend:   backend,
		Extractor: extractor,
		Cost:      cost.NewTracker(costCfg),
		Search: config.SearchConfig{
			MaxConcurrentBackendCalls: 3,
			MinRelevanceScore:         0.3,
			MaxRetries:                3,
			MinResults:                3,
			MaxResultsPerBatch:        10,
			ExpandVariations:          false,
		},
		Scrape: config.ScrapeConfig{
			MaxConcurrentFetches: 5,
			PerURLTimeout:        0,
			MaxContentBytes:      500_000,
			MinQualityScore:      0.1,
		},
	}
}

// exhaustedTracker returns a cost.Tracker whose budget is already used
// up, for tests exercising the budget-exhausted failure path.
func exhaustedTracker() *cost.Tracker {
	tracker := cost.NewTracker(config.CostConfig{
		MaxCostPerRunUSD: 0,
		ModelPrices: map[string]config.ModelPrice{
			"claude-sonnet": {InputPerMtok: 3, OutputPerMtok: 15},
			"claude-haiku":  {InputPerMtok: 0.8, OutputPerMtok: 4},
		},
	})
	return tracker
}

type fakeBackend struct {
	results []search.Result
	err     error
}

func (f *fakeBackend) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeExtractor struct {
	pages map[string]scrape.Page
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (scrape.Page, error) {
	if f.err != nil {
		return scrape.Page{}, f.err
	}
	return f.pages[url], nil
}
