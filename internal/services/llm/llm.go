package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callscope/internal/config"
	"callscope/internal/services"
)

// ErrNotConfigured reports that no model backend is available.
var ErrNotConfigured = errors.New("llm backend not configured")

// Completer produces JSON completions.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Settings captures the runtime values a backend needs.
type Settings struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// SettingsFromConfig extracts backend settings from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		return Settings{}
	}
	return Settings{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

func (s Settings) timeout() time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return defaultHTTPTimeout
}

// New returns the backend selected by configuration. Analysis disabled,
// a missing model, or missing credentials yield ErrNotConfigured.
func New(cfg *config.Config, opts ...Option) (Completer, error) {
	if cfg == nil || !cfg.Analysis.Enabled {
		return nil, ErrNotConfigured
	}
	settings := SettingsFromConfig(cfg)
	provider := strings.ToLower(strings.TrimSpace(settings.Provider))
	if strings.TrimSpace(settings.Model) == "" {
		return nil, fmt.Errorf("%w: llm.model is empty", ErrNotConfigured)
	}
	if provider != "ollama" && strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s api key missing", ErrNotConfigured, provider)
	}

	switch provider {
	case "openrouter":
		return NewClient(settings, opts...), nil
	case "openai", "ollama", "anthropic":
		return NewLangChain(settings)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new", fmt.Sprintf("unsupported provider %q", provider), nil)
	}
}
