package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
)

// skipTags never contribute to extracted text — their content is markup
// or presentation, not prose.
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "aside": true, "noscript": true, "svg": true,
}

// HTTPExtractor fetches a URL over plain HTTP(S) and reduces it to
// sanitized readable text: an `html.Tokenizer` walk collects prose text
// outside skipTags, bluemonday's strict policy strips any surviving
// markup, and a plain-text pass replaces known prompt-injection marker
// tokens with "[REMOVED]" before the text is handed to the pipeline.
// The raw HTML is also scored for paywall signals and for the quality
// dimensions ScoreQuality combines.
type HTTPExtractor struct {
	httpClient *http.Client
	maxBytes   int64
	policy     *bluemonday.Policy
	paywall    *PaywallDetector
	log        *slog.Logger
}

// NewHTTPExtractor builds an HTTPExtractor. maxBytes caps the response
// body read to bound memory use on oversized pages; zero disables the
// cap. paywallThreshold configures the weighted paywall score above
// which a page is treated as gated; see PaywallDetector.
func NewHTTPExtractor(httpClient *http.Client, maxBytes int64, paywallThreshold float64, log *slog.Logger) *HTTPExtractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPExtractor{
		httpClient: httpClient,
		maxBytes:   maxBytes,
		policy:     bluemonday.StrictPolicy(),
		paywall:    NewPaywallDetector(paywallThreshold),
		log:        log,
	}
}

// Extract fetches url and returns its sanitized readable text, title,
// and quality/paywall signals.
func (e *HTTPExtractor) Extract(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: build request: %w", err)
	}
	req.Header.Set("User-Agent", "deepresearch-labs-agent/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %s", apperrors.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Page{}, apperrors.ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired, resp.StatusCode == http.StatusForbidden:
		return Page{}, apperrors.ErrContentUnusable
	case resp.StatusCode >= 500:
		return Page{}, fmt.Errorf("%w: scrape status %d", apperrors.ErrTransientIO, resp.StatusCode)
	case resp.StatusCode >= 400:
		return Page{}, apperrors.ErrContentUnusable
	}

	var body io.Reader = resp.Body
	if e.maxBytes > 0 {
		body = io.LimitReader(resp.Body, e.maxBytes)
	}
	rawHTML, err := io.ReadAll(body)
	if err != nil {
		return Page{}, fmt.Errorf("%w: reading body: %s", apperrors.ErrTransientIO, err)
	}

	title, text, err := extractText(strings.NewReader(string(rawHTML)))
	if err != nil {
		return Page{}, fmt.Errorf("scrape: parse html: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return Page{}, apperrors.ErrContentUnusable
	}

	title = e.policy.Sanitize(title)
	text = e.policy.Sanitize(text)

	title, titleHits := stripInjectionMarkers(title)
	text, textHits := stripInjectionMarkers(text)
	if hits := titleHits + textHits; hits > 0 {
		e.log.Warn("scrape_injection_markers_detected", "url", url, "count", hits)
	}

	pw := e.paywall.Detect(string(rawHTML))
	if pw.IsPaywalled {
		e.log.Info("scrape_paywall_detected", "url", url, "adjusted_weight", pw.AdjustedWeight)
		return Page{}, apperrors.ErrContentUnusable
	}

	return Page{
		Title:   title,
		Content: text,
		Quality: analyzeQuality(string(rawHTML), text),
		Paywall: pw,
	}, nil
}

// extractText walks an HTML document's tokens, collecting the <title>
// text and every text node outside skipTags.
func extractText(r io.Reader) (title, content string, err error) {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	var titleBuilder strings.Builder
	skipDepth := 0
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", "", err
			}
			return strings.TrimSpace(titleBuilder.String()), strings.TrimSpace(sb.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if tt == html.StartTagToken {
					skipDepth++
				}
			}
			if tag == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if tag == "title" {
				inTitle = false
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				titleBuilder.WriteString(text)
				continue
			}
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
}
