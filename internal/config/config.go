package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Source contains configuration for the external conversation provider.
type Source struct {
	BaseURL             string   `toml:"base_url"`
	APIKey              string   `toml:"api_key"`
	ListEndpoints       []string `toml:"list_endpoints"`
	DetailPath          string   `toml:"detail_path"`
	AgentIDs            []string `toml:"agent_ids"`
	PageSize            int      `toml:"page_size"`
	MaxPages            int      `toml:"max_pages"`
	DetailWorkers       int      `toml:"detail_workers"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	RetryAttempts       int      `toml:"retry_attempts"`
	RetryBaseDelayMS    int      `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS     int      `toml:"retry_max_delay_ms"`
	SyncIntervalMinutes int      `toml:"sync_interval_minutes"`
}

// LLM contains model connection settings used by the analyzer.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis contains configuration for thematic analysis and its cache.
type Analysis struct {
	Enabled          bool `toml:"enabled"`
	CacheTTLSeconds  int  `toml:"cache_ttl_seconds"`
	TimeoutSeconds   int  `toml:"timeout_seconds"`
	MaxConversations int  `toml:"max_conversations"`
	MaxQuotes        int  `toml:"max_quotes"`
}

// Stats contains configuration for dashboard rollups.
type Stats struct {
	MonthlyBudget    float64 `toml:"monthly_budget"`
	DefaultTimeframe string  `toml:"default_timeframe"`
	CompletedStatus  string  `toml:"completed_status"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callscope.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Source: conversation provider endpoints, paging, and retry policy
//   - LLM: model backend used for full analysis
//   - Analysis: analysis timeout and cache lifetime
//   - Stats: dashboard budget and completion settings
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Source   Source   `toml:"source"`
	LLM      LLM      `toml:"llm"`
	Analysis Analysis `toml:"analysis"`
	Stats    Stats    `toml:"stats"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/callscope/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callscope.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "callscope.db")
}

// SyncLockPath returns the lock file that serializes sync runs.
func (c *Config) SyncLockPath() string {
	return filepath.Join(c.Paths.DataDir, "sync.lock")
}

// DaemonLockPath returns the lock file held by a running server.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "callscope.lock")
}

// SyncInterval returns the scheduled sync period, or zero when disabled.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Source.SyncIntervalMinutes) * time.Minute
}

// LogFilePath returns the persistent log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "callscope.log")
}

// SourceTimeout returns the per-request timeout for provider calls.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// AnalysisTimeout returns the total budget for one analysis computation.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long computed analysis payloads stay valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Analysis.CacheTTLSeconds) * time.Second
}

// RetryPolicy returns the configured attempt count and backoff bounds.
func (c *Config) RetryPolicy() (attempts int, base, max time.Duration) {
	return c.Source.RetryAttempts,
		time.Duration(c.Source.RetryBaseDelayMS) * time.Millisecond,
		time.Duration(c.Source.RetryMaxDelayMS) * time.Millisecond
}

// Redacted returns a copy with credentials masked for display.
func (c Config) Redacted() Config {
	c.Source.APIKey = redact(c.Source.APIKey)
	c.LLM.APIKey = redact(c.LLM.APIKey)
	c.Paths.APIToken = redact(c.Paths.APIToken)
	c.Source.ListEndpoints = append([]string(nil), c.Source.ListEndpoints...)
	c.Source.AgentIDs = append([]string(nil), c.Source.AgentIDs...)
	return c
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
