package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape. Only the fields an operator is
// likely to override are exposed; everything else falls back to Defaults().
type fileConfig struct {
	Cost         *CostConfig                    `yaml:"cost"`
	Queue        *QueueConfig                   `yaml:"queue"`
	Retry        *RetryConfig                   `yaml:"retry"`
	Memory       *MemoryConfig                  `yaml:"memory"`
	Cache        *CacheConfig                   `yaml:"cache"`
	Search       *SearchConfig                  `yaml:"search"`
	Scrape       *ScrapeConfig                  `yaml:"scrape"`
	API          *APIConfig                     `yaml:"api"`
	Retention    *RetentionConfig               `yaml:"retention"`
	LLMProviders map[string]LLMProviderConfig   `yaml:"llm_providers"`
}

// Initialize loads researchengine.yaml (if present) from configDir, expands
// environment variables, merges it over the built-in defaults, and
// validates the result: load → expand → parse → merge → validate.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "loading configuration")

	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := Defaults()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "researchengine.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.InfoContext(ctx, "no researchengine.yaml found, using defaults")
			cfg.LLMProviders = NewLLMProviderRegistry(nil)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}

	raw = ExpandEnv(raw)

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := mergeFileConfig(cfg, &fc); err != nil {
		return nil, fmt.Errorf("merging configuration: %w", err)
	}

	cfg.LLMProviders = NewLLMProviderRegistry(fc.LLMProviders)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFileConfig overlays any section present in the file onto the
// built-in defaults via mergo, field by field so zero-value sections in
// the file don't blank out an unrelated default.
func mergeFileConfig(cfg *Config, fc *fileConfig) error {
	merges := []struct {
		dst, src any
	}{
		{&cfg.Cost, fc.Cost},
		{&cfg.Queue, fc.Queue},
		{&cfg.Retry, fc.Retry},
		{&cfg.Memory, fc.Memory},
		{&cfg.Cache, fc.Cache},
		{&cfg.Search, fc.Search},
		{&cfg.Scrape, fc.Scrape},
		{&cfg.API, fc.API},
		{&cfg.Retention, fc.Retention},
	}
	for _, m := range merges {
		switch src := m.src.(type) {
		case *CostConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*CostConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *QueueConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*QueueConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *RetryConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*RetryConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *MemoryConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*MemoryConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *CacheConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*CacheConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *SearchConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*SearchConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *ScrapeConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*ScrapeConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *APIConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*APIConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		case *RetentionConfig:
			if src != nil {
				if err := mergo.Merge(m.dst.(*RetentionConfig), *src, mergo.WithOverride); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Validate checks required invariants that would otherwise surface as
// confusing runtime errors deep in the pipeline.
func Validate(cfg *Config) error {
	if cfg.Cost.MaxCostPerRunUSD <= 0 {
		return &ValidationError{Field: "cost.max_cost_per_run", Err: ErrInvalidValue}
	}
	if cfg.Queue.MaxConcurrentSessions <= 0 {
		return &ValidationError{Field: "queue.max_concurrent_sessions", Err: ErrInvalidValue}
	}
	if cfg.Retry.Attempts <= 0 || cfg.Retry.Attempts > 10 {
		return &ValidationError{Field: "retry.attempts", Err: ErrInvalidValue}
	}
	return nil
}
