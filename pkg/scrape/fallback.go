package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
)

// HeadlessExtractor renders url in a headless Chrome instance before
// extracting text. It is the fallback engine for sites whose content
// never appears in the plain HTTP response — client-rendered pages and
// JS-gated articles the no-JS extractor sees as empty or thin.
type HeadlessExtractor struct {
	timeout time.Duration
	log     *slog.Logger
}

// NewHeadlessExtractor builds a HeadlessExtractor. timeout <= 0 falls
// back to 20s.
func NewHeadlessExtractor(timeout time.Duration, log *slog.Logger) *HeadlessExtractor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HeadlessExtractor{timeout: timeout, log: log}
}

// Extract navigates to url in a headless browser and extracts text with
// the same tokenizer walk and injection-marker pass HTTPExtractor uses.
// It does not run the bluemonday sanitization pass or paywall detection.
func (e *HeadlessExtractor) Extract(ctx context.Context, url string) (Page, error) {
	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, e.timeout)
	defer cancelTimeout()

	var rawHTML, title string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("%w: headless render: %s", apperrors.ErrTransientIO, err)
	}

	_, text, err := extractText(strings.NewReader(rawHTML))
	if err != nil {
		return Page{}, fmt.Errorf("scrape: parse rendered html: %w", err)
	}
	text, hits := stripInjectionMarkers(text)
	if hits > 0 {
		e.log.Warn("scrape_injection_markers_detected", "url", url, "count", hits, "engine", "headless")
	}
	if strings.TrimSpace(text) == "" {
		return Page{}, apperrors.ErrContentUnusable
	}

	return Page{Title: title, Content: text, Quality: analyzeQuality(rawHTML, text)}, nil
}

// FallbackExtractor tries primary first and retries with secondary
// when primary's result is empty/unusable or scores below
// minQualityForFallback — e.g. a page whose primary extraction yielded
// thin nav text because the real content only renders after JS runs.
type FallbackExtractor struct {
	primary               Extractor
	secondary             Extractor
	minQualityForFallback float64
	log                   *slog.Logger
}

// NewFallbackExtractor builds a FallbackExtractor.
func NewFallbackExtractor(primary, secondary Extractor, minQualityForFallback float64, log *slog.Logger) *FallbackExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &FallbackExtractor{primary: primary, secondary: secondary, minQualityForFallback: minQualityForFallback, log: log}
}

// Extract runs primary and falls back to secondary when the result
// looks unusable. Errors other than ErrContentUnusable from primary
// are not retried with the fallback engine — those are transient or
// rate-limit failures the fallback engine would hit identically.
func (e *FallbackExtractor) Extract(ctx context.Context, url string) (Page, error) {
	page, err := e.primary.Extract(ctx, url)
	if err == nil && ScoreQuality(page.Quality) >= e.minQualityForFallback {
		return page, nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrContentUnusable) {
		return Page{}, err
	}

	e.log.Info("scrape_fallback_engine", "url", url, "reason", fallbackReason(err))
	fallbackPage, fbErr := e.secondary.Extract(ctx, url)
	if fbErr != nil {
		if err != nil {
			return Page{}, err
		}
		return Page{}, fbErr
	}
	return fallbackPage, nil
}

func fallbackReason(primaryErr error) string {
	if primaryErr != nil {
		return "primary_unusable"
	}
	return "low_quality"
}
