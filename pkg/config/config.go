// Package config loads and validates the research engine's configuration:
// cost/budget limits, concurrency and queueing, retry/circuit-breaker policy,
// memory/similarity thresholds, cache settings, and LLM provider registries.
package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// threaded through the engine's constructors by value (no package-level
// singleton).
type Config struct {
	configDir string

	Cost        CostConfig
	Queue       QueueConfig
	Retry       RetryConfig
	Memory      MemoryConfig
	Cache       CacheConfig
	Search      SearchConfig
	Scrape      ScrapeConfig
	API         APIConfig
	Retention   RetentionConfig
	LLMProviders *LLMProviderRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// CostConfig controls the budget envelope and model price table.
type CostConfig struct {
	MaxCostPerRunUSD float64                     `yaml:"max_cost_per_run"`
	WarnAtPercentage float64                     `yaml:"warn_at_percentage"`
	ModelPrices      map[string]ModelPrice       `yaml:"model_prices"`
	TierDowngrades   map[string]string           `yaml:"tier_downgrades"` // primary model -> cheaper model
}

// ModelPrice is USD per million tokens, input and output priced separately.
type ModelPrice struct {
	InputPerMtok  float64 `yaml:"input_per_mtok"`
	OutputPerMtok float64 `yaml:"output_per_mtok"`
}

// RetryConfig is the recovery orchestrator's policy.
type RetryConfig struct {
	Attempts                     int           `yaml:"attempts"`
	BackoffInitial                time.Duration `yaml:"backoff_initial_seconds"`
	BackoffMax                   time.Duration `yaml:"backoff_max_seconds"`
	CircuitBreakerThreshold      int           `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldown       time.Duration `yaml:"circuit_breaker_cooldown_seconds"`
}

// MemoryConfig drives the cross-session similarity store.
type MemoryConfig struct {
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	StalenessDays      int     `yaml:"staleness_days"`
	MaxResults         int     `yaml:"max_results"`
}

// CacheConfig drives the LLM response cache.
type CacheConfig struct {
	TTLSeconds           int64   `yaml:"ttl_seconds"`
	MaxTemperatureToCache float64 `yaml:"max_temperature_to_cache"`
}

// SearchConfig drives the Search node.
type SearchConfig struct {
	MaxConcurrentBackendCalls int     `yaml:"max_concurrent_backend_calls"`
	MinRelevanceScore         float64 `yaml:"min_relevance_score"`
	MaxRetries                int     `yaml:"max_retries"`
	MinResults                int     `yaml:"min_results"`
	MaxResultsPerBatch        int     `yaml:"max_results_per_batch"`
	ExpandVariations          bool    `yaml:"expand_variations"`
	BackendAPIKeyEnv          string  `yaml:"backend_api_key_env"`
}

// ScrapeConfig drives the Scrape node.
type ScrapeConfig struct {
	MaxConcurrentFetches  int           `yaml:"max_concurrent_fetches"`
	PerURLTimeout         time.Duration `yaml:"per_url_timeout"`
	MaxContentBytes       int64         `yaml:"max_content_bytes"`
	PaywallThreshold      float64       `yaml:"paywall_threshold"`       // weighted score (see scrape.PaywallDetector) above which a page is dropped as gated
	MinQualityScore       float64       `yaml:"min_quality_score"`       // composite ScoreQuality floor below which a page is dropped
	MinQualityForFallback float64       `yaml:"min_quality_for_fallback"` // composite ScoreQuality floor below which the headless fallback engine is tried
	HeadlessTimeout       time.Duration `yaml:"headless_timeout"`
}

// APIConfig drives the HTTP/MCP surfaces.
type APIConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	RateLimitPerMin  int           `yaml:"rate_limit_per_minute"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	APIKeysPath      string        `yaml:"api_keys_path"`
}

// RetentionConfig controls event-log and checkpoint retention.
type RetentionConfig struct {
	SessionRetentionDays int           `yaml:"session_retention_days"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
}
