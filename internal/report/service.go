package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"callscope/internal/analysis"
	"callscope/internal/config"
	"callscope/internal/logging"
	"callscope/internal/stats"
	"callscope/internal/store"
)

const defaultHistoryLimit = 20

// Reader is the slice of the store the reports need.
type Reader interface {
	ConversationsInRange(ctx context.Context, r store.Range, withMessages bool) ([]store.Conversation, error)
	ListConversations(ctx context.Context, filter store.ListFilter) ([]store.Conversation, error)
	CostSince(ctx context.Context, since time.Time, agentID string) (float64, error)
	ListSyncRuns(ctx context.Context, limit int) ([]store.SyncRun, error)
}

// Analysis is one served analysis document.
type Analysis struct {
	Data     []byte
	CacheHit bool
	Key      analysis.Key
}

// Service answers report queries.
type Service struct {
	reader   Reader
	analyzer *analysis.Analyzer
	cache    *analysis.Cache
	cfg      config.Stats
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for named timeframes and month-to-date cost.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service. A nil cache computes every analysis request.
func New(cfg *config.Config, reader Reader, analyzer *analysis.Analyzer, cache *analysis.Cache, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if analyzer == nil {
		analyzer = analysis.New(nil, analysis.Options{Logger: logger})
	}
	svc := &Service{
		reader:   reader,
		analyzer: analyzer,
		cache:    cache,
		now:      time.Now,
		logger:   logging.NewComponentLogger(logger, "report"),
	}
	if cfg != nil {
		svc.cfg = cfg.Stats
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// DefaultTimeframe is the dashboard timeframe used when a request names none.
func (s *Service) DefaultTimeframe() string {
	if s.cfg.DefaultTimeframe == "" {
		return "30d"
	}
	return s.cfg.DefaultTimeframe
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Analysis returns the serialized analysis payload for q. Identical queries
// within the cache lifetime get byte-identical documents.
func (s *Service) Analysis(ctx context.Context, q Query) (Analysis, error) {
	key := analysis.KeyFor(q.analysisRequest())
	compute := func(ctx context.Context) ([]byte, bool, error) {
		return s.computeAnalysis(ctx, q)
	}

	if s.cache == nil {
		data, _, err := compute(ctx)
		if err != nil {
			return Analysis{}, err
		}
		return Analysis{Data: data, Key: key}, nil
	}

	data, hit, err := s.cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		return Analysis{}, err
	}
	s.logger.Debug("analysis served",
		logging.String("cache_key", key.String()),
		logging.Bool("cache_hit", hit),
		logging.Int("bytes", len(data)),
	)
	return Analysis{Data: data, CacheHit: hit, Key: key}, nil
}

func (s *Service) computeAnalysis(ctx context.Context, q Query) (data []byte, cacheable bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, cacheable = nil, false
			err = fmt.Errorf("analysis computation panicked: %v", r)
		}
	}()

	convs, err := s.reader.ConversationsInRange(ctx, q.storeRange(), true)
	if err != nil {
		return nil, false, fmt.Errorf("load conversations: %w", err)
	}
	result := s.analyzer.Analyze(ctx, q.analysisRequest(), convs)
	data, err = json.Marshal(result.Payload())
	if err != nil {
		return nil, false, fmt.Errorf("encode analysis: %w", err)
	}
	return data, result.Cacheable(), nil
}

// Dashboard computes activity rollups for q.
func (s *Service) Dashboard(ctx context.Context, q Query) (stats.Dashboard, error) {
	convs, err := s.reader.ConversationsInRange(ctx, q.storeRange(), false)
	if err != nil {
		return stats.Dashboard{}, fmt.Errorf("load conversations: %w", err)
	}
	monthCost, err := s.reader.CostSince(ctx, stats.MonthStart(s.now()), q.AgentID)
	if err != nil {
		return stats.Dashboard{}, fmt.Errorf("month to date cost: %w", err)
	}
	return stats.Compute(convs, q.Period, stats.Options{
		MonthlyBudget:   s.cfg.MonthlyBudget,
		CompletedStatus: s.cfg.CompletedStatus,
		MonthToDateCost: monthCost,
		AgentID:         q.AgentID,
	}), nil
}

// SyncHistory returns the most recent sync runs, newest first.
func (s *Service) SyncHistory(ctx context.Context, limit int) ([]store.SyncRun, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.reader.ListSyncRuns(ctx, limit)
}

// Conversations lists the most recent conversations without transcripts.
func (s *Service) Conversations(ctx context.Context, filter store.ListFilter) ([]store.Conversation, error) {
	return s.reader.ListConversations(ctx, filter)
}

// InvalidateAnalyses drops every cached analysis. Used as the sync change hook.
func (s *Service) InvalidateAnalyses() {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate()
	s.logger.Info("analysis cache invalidated", logging.String(logging.FieldEventType, "cache_invalidated"))
}

// PurgeExpired drops expired analyses and returns how many were removed.
func (s *Service) PurgeExpired() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Purge()
}
