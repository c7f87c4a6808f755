package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
)

const defaultBaseURL = "https://api.tavily.com/search"

// TavilyBackend is a Backend implementation shaped after Tavily's search
// API: POST a query + result cap, get back a ranked result list.
type TavilyBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewTavilyBackend builds a TavilyBackend. An empty baseURL uses Tavily's
// production endpoint.
func NewTavilyBackend(apiKey, baseURL string, httpClient *http.Client, log *slog.Logger) *TavilyBackend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TavilyBackend{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient, log: log}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search issues one Tavily search call, translating HTTP failure classes
// onto the shared error taxonomy so the recovery orchestrator can decide
// whether to retry.
func (b *TavilyBackend) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(tavilyRequest{APIKey: b.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.log.Warn("search backend request failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: search backend status %d", apperrors.ErrTransientIO, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("search: backend rejected request: status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading search response: %s", apperrors.ErrTransientIO, err)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, Result{URL: r.URL, Title: r.Title, Snippet: r.Content, Score: r.Score})
	}
	return results, nil
}
