package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeLLM()
	c.normalizeStats()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CALLSCOPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = defaultSourceBaseURL
	}
	c.Source.APIKey = strings.TrimSpace(c.Source.APIKey)
	if c.Source.APIKey == "" {
		if value, ok := os.LookupEnv("CALLSCOPE_SOURCE_API_KEY"); ok {
			c.Source.APIKey = strings.TrimSpace(value)
		}
	}
	c.Source.ListEndpoints = compactStrings(c.Source.ListEndpoints, func(v string) string {
		return strings.Trim(v, "/")
	})
	if len(c.Source.ListEndpoints) == 0 {
		c.Source.ListEndpoints = []string{defaultListEndpoint}
	}
	c.Source.DetailPath = strings.Trim(strings.TrimSpace(c.Source.DetailPath), "/")
	if c.Source.DetailPath == "" {
		c.Source.DetailPath = defaultDetailPath
	}
	c.Source.AgentIDs = compactStrings(c.Source.AgentIDs, nil)
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, key := range []string{"CALLSCOPE_LLM_API_KEY", "OPENROUTER_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Provider == defaultLLMProvider {
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultLLMBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultLLMModel
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
}

func (c *Config) normalizeStats() {
	c.Stats.DefaultTimeframe = strings.ToLower(strings.TrimSpace(c.Stats.DefaultTimeframe))
	if c.Stats.DefaultTimeframe == "" {
		c.Stats.DefaultTimeframe = defaultStatsTimeframe
	}
	c.Stats.CompletedStatus = strings.ToLower(strings.TrimSpace(c.Stats.CompletedStatus))
	if c.Stats.CompletedStatus == "" {
		c.Stats.CompletedStatus = defaultCompletedStatus
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func compactStrings(values []string, transform func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if transform != nil {
			value = transform(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
