package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"callscope/internal/analysis"
	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/logging"
	"callscope/internal/report"
	"callscope/internal/services/convai"
	"callscope/internal/services/llm"
	"callscope/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	store *store.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// log returns the process logger. Logger construction failures fall back to
// a no-op logger so read-only commands keep working.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) openStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.store = st
	return st, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

func (c *commandContext) newSyncer(st *store.Store, opts ...ingest.SyncerOption) (*ingest.Syncer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireSourceCredentials(); err != nil {
		return nil, err
	}
	source, err := convai.New(cfg.Source.APIKey, cfg.Source.BaseURL,
		convai.WithTimeout(cfg.SourceTimeout()),
		convai.WithDetailPath(cfg.Source.DetailPath),
	)
	if err != nil {
		return nil, err
	}
	return ingest.NewSyncer(cfg, st, source, c.log(), opts...), nil
}

// newReports builds the report service. A missing model configuration
// degrades to heuristic analysis rather than failing.
func (c *commandContext) newReports(st *store.Store) (*report.Service, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	logger := c.log()

	completer, err := llm.New(cfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Info("model analysis disabled; using heuristic fallback", logging.String("reason", err.Error()))
		completer = nil
	case err != nil:
		return nil, "", fmt.Errorf("model backend: %w", err)
	}

	opts := analysis.OptionsFromConfig(cfg)
	opts.Logger = logger
	analyzer := analysis.New(completer, opts)
	cache := analysis.NewCache(cfg.CacheTTL())
	return report.New(cfg, st, analyzer, cache, logger), analyzer.ModelName(), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
