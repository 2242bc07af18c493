package testsupport

import (
	"path/filepath"
	"testing"

	"callscope/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Source.APIKey = "test"
	cfgVal.Source.BaseURL = "http://127.0.0.1:0"
	cfgVal.Source.RetryAttempts = 2
	cfgVal.Source.RetryBaseDelayMS = 1
	cfgVal.Source.RetryMaxDelayMS = 2
	cfgVal.Analysis.TimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSourceURL points the conversation source at a test server.
func WithSourceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.BaseURL = url
	}
}

// WithAgents restricts sync to the supplied agent IDs.
func WithAgents(agentIDs ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.AgentIDs = append([]string(nil), agentIDs...)
	}
}

// WithLLM points the model backend at a test server.
func WithLLM(url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Provider = "openrouter"
		b.cfg.LLM.BaseURL = url
		b.cfg.LLM.APIKey = apiKey
		b.cfg.LLM.Model = "test-model"
	}
}

// WithAPIToken enables bearer authentication on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
