// Package llmclient is the narrow provider-facing collaborator every
// pipeline node calls through: a plain-HTTP chat-completion client that
// wraps the key rotator, the disk response cache, and prompt-cache
// ordering, so nodes themselves never touch provider wire formats.
package llmclient

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
	"github.com/deepresearch-labs/agent/pkg/keys"
	"github.com/deepresearch-labs/agent/pkg/llmcache"
	"github.com/deepresearch-labs/agent/pkg/promptcache"
)

// Message is one chat turn in a call.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat-completion call.
type Request struct {
	Model        string
	Provider     string // "anthropic", "openai", "google" — selects the key rotator pool
	SystemPrompt string
	Tools        []map[string]any
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	PromptVersion string // included in the cache key so a prompt-template change invalidates old entries
}

// Response is a completed chat call's result.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CachedTokens int // input tokens served from the provider's prompt cache
}

// Client is a provider-agnostic chat-completion client: it resolves a
// rotating API key, checks the disk cache, orders the call for prompt
// caching, and issues the HTTP request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rotator    *keys.Rotator
	cache      *llmcache.Cache
	tracker    *promptcache.Tracker
	log        *slog.Logger
}

// New builds a Client. cache may be nil to disable response caching.
func New(baseURL string, httpClient *http.Client, rotator *keys.Rotator, cache *llmcache.Cache, tracker *promptcache.Tracker, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, rotator: rotator, cache: cache, tracker: tracker, log: log}
}

// Complete runs a chat-completion call, serving from the disk cache when
// the call's temperature is at or below the cache's configured ceiling
// and a cached entry exists.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	payload := promptcache.OrderForCache(req.SystemPrompt, req.Tools, nil, toCacheMessage(req.Messages))

	if c.cache != nil {
		if cached, ok := c.cache.Get(req.Model, req.Temperature, payload.Messages, req.PromptVersion); ok {
			var resp Response
			if err := json.Unmarshal(cached, &resp); err == nil {
				if c.tracker != nil {
					c.tracker.RecordCall(int64(resp.InputTokens), int64(resp.InputTokens))
				}
				return resp, nil
			}
		}
	}

	apiKey, _ := c.keyFor(req.Provider)

	resp, err := c.call(ctx, req, apiKey, payload)
	if err != nil {
		return Response{}, err
	}

	if c.tracker != nil {
		c.tracker.RecordCall(int64(resp.InputTokens), int64(resp.CachedTokens))
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(resp); err == nil {
			_ = c.cache.Set(req.Model, req.Temperature, payload.Messages, req.PromptVersion, encoded)
		}
	}

	return resp, nil
}

func (c *Client) keyFor(provider string) (string, bool) {
	if c.rotator == nil || provider == "" {
		return "", false
	}
	return c.rotator.GetKey(provider)
}

type wireRequest struct {
	Model       string            `json:"model"`
	System      []promptcache.TextBlock `json:"system"`
	Messages    []promptcache.Message   `json:"messages"`
	Tools       []map[string]any  `json:"tools,omitempty"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type wireResponse struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens         int `json:"input_tokens"`
		OutputTokens        int `json:"output_tokens"`
		CacheReadInputTokens int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

func (c *Client) call(ctx context.Context, req Request, apiKey string, payload promptcache.CachePayload) (Response, error) {
	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		System:      payload.System,
		Messages:    payload.Messages,
		Tools:       payload.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llmclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s", apperrors.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if apiKey != "" && c.rotator != nil {
			c.rotator.MarkRateLimited(req.Provider, apiKey)
		}
		return Response{}, apperrors.ErrRateLimited
	case resp.StatusCode >= 500:
		return Response{}, fmt.Errorf("%w: llm provider status %d", apperrors.ErrTransientIO, resp.StatusCode)
	case resp.StatusCode >= 400:
		return Response{}, fmt.Errorf("%w: llm provider rejected request: status %d", apperrors.ErrInvariantViolation, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading llm response: %s", apperrors.ErrTransientIO, err)
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("llmclient: decode response: %w", err)
	}

	return Response{
		Text:         parsed.Text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		CachedTokens: parsed.Usage.CacheReadInputTokens,
	}, nil
}

func toCacheMessage(msgs []Message) promptcache.Message {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	return promptcache.Message{"role": last.Role, "content": last.Content}
}
