package config

import "time"

// Defaults mirrors the constants recovered from the Python original
// (research_agent/key_rotation.py, llm_cache.py, context.py, graph.py)
// so that an empty YAML file still produces a runnable configuration.
func Defaults() *Config {
	return &Config{
		Cost: CostConfig{
			MaxCostPerRunUSD: 5.00,
			WarnAtPercentage: 0.80,
			ModelPrices: map[string]ModelPrice{
				"claude-sonnet": {InputPerMtok: 3.00, OutputPerMtok: 15.00},
				"claude-haiku":  {InputPerMtok: 0.80, OutputPerMtok: 4.00},
				"gpt-4o":        {InputPerMtok: 2.50, OutputPerMtok: 10.00},
				"gpt-4o-mini":   {InputPerMtok: 0.15, OutputPerMtok: 0.60},
			},
			TierDowngrades: map[string]string{
				"claude-sonnet": "claude-haiku",
				"gpt-4o":        "gpt-4o-mini",
			},
		},
		Queue: QueueConfig{
			MaxConcurrentSessions:   5,
			QueueLimit:              20,
			WorkerCount:             5,
			PollInterval:            1 * time.Second,
			PollIntervalJitter:      250 * time.Millisecond,
			DrainTimeout:            2 * time.Minute,
			SessionTimeout:          15 * time.Minute,
			HeartbeatInterval:       10 * time.Second,
			OrphanDetectionInterval: 30 * time.Second,
			OrphanThreshold:         2 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts:                3,
			BackoffInitial:          1 * time.Second,
			BackoffMax:              30 * time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerCooldown:  60 * time.Second,
		},
		Memory: MemoryConfig{
			RelevanceThreshold: 0.80,
			StalenessDays:      30,
			MaxResults:         10,
		},
		Cache: CacheConfig{
			TTLSeconds:            86400,
			MaxTemperatureToCache: 0.0,
		},
		Search: SearchConfig{
			MaxConcurrentBackendCalls: 3,
			MinRelevanceScore:         0.3,
			MaxRetries:                3,
			MinResults:                3,
			MaxResultsPerBatch:        10,
			ExpandVariations:          true,
			BackendAPIKeyEnv:          "TAVILY_API_KEY",
		},
		Scrape: ScrapeConfig{
			MaxConcurrentFetches:  5,
			PerURLTimeout:         30 * time.Second,
			MaxContentBytes:       500 * 1024,
			PaywallThreshold:      3.0,
			MinQualityScore:       0.3,
			MinQualityForFallback: 0.2,
			HeadlessTimeout:       20 * time.Second,
		},
		API: APIConfig{
			ListenAddr:      ":8080",
			RateLimitPerMin: 60,
			DrainTimeout:    30 * time.Second,
			APIKeysPath:     "apikeys.json",
		},
		Retention: RetentionConfig{
			SessionRetentionDays: 30,
			CleanupInterval:      12 * time.Hour,
		},
	}
}
