package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	llmProviders = []string{"openrouter", "openai", "ollama", "anthropic"}
	timeframes   = []string{"today", "7d", "30d", "90d", "mtd"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateStats(); err != nil {
		return err
	}
	return nil
}

// RequireSourceCredentials reports a configuration error when sync cannot
// reach the conversation provider.
func (c *Config) RequireSourceCredentials() error {
	if c.Source.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/callscope/config.toml"
	}
	return fmt.Errorf("source.api_key is required. Set CALLSCOPE_SOURCE_API_KEY env var or edit %s (create with 'callscope config init')", defaultPath)
}

func (c *Config) validateSource() error {
	if err := ensurePositiveMap(map[string]int{
		"source.page_size":           c.Source.PageSize,
		"source.max_pages":           c.Source.MaxPages,
		"source.detail_workers":      c.Source.DetailWorkers,
		"source.timeout_seconds":     c.Source.TimeoutSeconds,
		"source.retry_attempts":      c.Source.RetryAttempts,
		"source.retry_base_delay_ms": c.Source.RetryBaseDelayMS,
		"source.retry_max_delay_ms":  c.Source.RetryMaxDelayMS,
	}); err != nil {
		return err
	}
	if c.Source.SyncIntervalMinutes < 0 {
		return errors.New("source.sync_interval_minutes must be >= 0")
	}
	if c.Source.RetryMaxDelayMS < c.Source.RetryBaseDelayMS {
		return errors.New("source.retry_max_delay_ms must be >= source.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !slices.Contains(llmProviders, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be one of %v", llmProviders)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	return ensurePositiveMap(map[string]int{
		"analysis.cache_ttl_seconds": c.Analysis.CacheTTLSeconds,
		"analysis.timeout_seconds":   c.Analysis.TimeoutSeconds,
		"analysis.max_conversations": c.Analysis.MaxConversations,
		"analysis.max_quotes":        c.Analysis.MaxQuotes,
	})
}

func (c *Config) validateStats() error {
	if c.Stats.MonthlyBudget < 0 {
		return errors.New("stats.monthly_budget must be >= 0")
	}
	if !slices.Contains(timeframes, c.Stats.DefaultTimeframe) {
		return fmt.Errorf("stats.default_timeframe must be one of %v", timeframes)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
