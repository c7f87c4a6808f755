package nodes

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/scrape"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// Scrape fetches and extracts content for every search result not yet
// scraped, with bounded concurrency, dropping pages that are unusable
// (paywalled, empty) or below the configured quality threshold.
func Scrape(ctx context.Context, sess *state.Session, deps Deps) (state.Delta, error) {
	log := deps.logger().With("node", "scrape", "session_id", sess.ID)

	already := make(map[string]struct{}, len(sess.ScrapedContent))
	for _, p := range sess.ScrapedContent {
		already[p.URL] = struct{}{}
	}

	var pending []state.SearchResult
	for _, r := range sess.SearchResults {
		if _, ok := already[r.URL]; !ok {
			pending = append(pending, r)
		}
	}
	log.Info("scrape_start", "num_urls", len(pending))

	limit := deps.Scrape.MaxConcurrentFetches
	if limit <= 0 {
		limit = 1
	}
	gate := make(chan struct{}, limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var pages []state.ScrapedPage

	for _, result := range pending {
		wg.Add(1)
		go func(r state.SearchResult) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()

			fetchCtx := ctx
			if deps.Scrape.PerURLTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, deps.Scrape.PerURLTimeout)
				defer cancel()
			}

			page, err := deps.Extractor.Extract(fetchCtx, r.URL)
			if err != nil {
				if errors.Is(err, apperrors.ErrContentUnusable) {
					log.Info("scrape_skip_unusable", "url", r.URL, "error", err)
					return
				}
				log.Warn("scrape_fetch_failed", "url", r.URL, "error", err)
				return
			}

			if page.Paywall.IsPaywalled {
				log.Info("scrape_skip_paywalled", "url", r.URL, "adjusted_weight", page.Paywall.AdjustedWeight)
				return
			}

			// Extractors that don't compute word count themselves (e.g.
			// tests stubbing Extract directly) still get a real word
			// count here rather than scoring against a zero value.
			signals := page.Quality
			signals.WordCount = len(strings.Fields(page.Content))

			quality := scrape.ScoreQuality(signals)
			if quality < deps.Scrape.MinQualityScore {
				log.Info("scrape_skip_low_quality", "url", r.URL, "quality_score", quality)
				return
			}

			mu.Lock()
			pages = append(pages, state.ScrapedPage{
				URL:           r.URL,
				SubQuestionID: r.SubQuestionID,
				Title:         page.Title,
				Content:       truncate(page.Content, int(deps.Scrape.MaxContentBytes)),
				WordCount:     signals.WordCount,
				QualityScore:  quality,
			})
			mu.Unlock()
		}(result)
	}
	wg.Wait()

	log.Info("scrape_complete", "scraped", len(pages), "attempted", len(pending))

	return state.Delta{
		Step:           "scrape",
		StepIndex:      2,
		ScrapedContent: pages,
	}, nil
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}
