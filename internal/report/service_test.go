package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"callscope/internal/analysis"
	"callscope/internal/report"
	"callscope/internal/services"
	"callscope/internal/store"
	"callscope/internal/testsupport"
)

var (
	day1 = time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)
	now  = time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
)

func newService(t *testing.T) (*report.Service, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Stats.MonthlyBudget = 500
	st := testsupport.MustOpenStore(t, cfg)

	billing := testsupport.Conversation("conv_billing", "agent_a", day1,
		"I was charged twice on my bill and I am really upset", "I am sorry, let me refund that")
	billing.CostCredits = 120
	testsupport.MustInsert(t, st, billing)

	delivery := testsupport.Conversation("conv_delivery", "agent_b", day1.Add(26*time.Hour),
		"Where is my delivery? The package is late", "It ships tomorrow, thanks for waiting")
	delivery.CostCredits = 80
	testsupport.MustInsert(t, st, delivery)

	analyzer := analysis.New(nil, analysis.Options{Now: func() time.Time { return now }})
	cache := analysis.NewCache(time.Hour, analysis.WithCacheClock(func() time.Time { return now }))
	svc := report.New(cfg, st, analyzer, cache, nil, report.WithClock(func() time.Time { return now }))
	return svc, st
}

func TestAnalysisIsCachedUntilInvalidated(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	q, err := report.AnalysisQuery("2025-04-07", "2025-04-08", "")
	if err != nil {
		t.Fatalf("AnalysisQuery: %v", err)
	}

	first, err := svc.Analysis(ctx, q)
	if err != nil {
		t.Fatalf("first analysis: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first request should miss")
	}
	var payload analysis.Payload
	if err := json.Unmarshal(first.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.AnalysisStatus.Mode != analysis.ModeFallback {
		t.Fatalf("mode = %q, want fallback", payload.AnalysisStatus.Mode)
	}
	if payload.Metadata.TotalConversationsInRange != 2 {
		t.Fatalf("conversations in range = %d, want 2", payload.Metadata.TotalConversationsInRange)
	}

	second, err := svc.Analysis(ctx, q)
	if err != nil {
		t.Fatalf("second analysis: %v", err)
	}
	if !second.CacheHit || !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("expected identical cached bytes (hit=%v)", second.CacheHit)
	}

	svc.InvalidateAnalyses()
	third, err := svc.Analysis(ctx, q)
	if err != nil {
		t.Fatalf("third analysis: %v", err)
	}
	if third.CacheHit {
		t.Fatal("request after invalidation should miss")
	}
}

func TestAnalysisAgentFilterUsesSeparateKey(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	all, _ := report.AnalysisQuery("2025-04-07", "2025-04-08", "")
	agentB, _ := report.AnalysisQuery("2025-04-07", "2025-04-08", "agent_b")
	if _, err := svc.Analysis(ctx, all); err != nil {
		t.Fatalf("analysis: %v", err)
	}
	got, err := svc.Analysis(ctx, agentB)
	if err != nil {
		t.Fatalf("agent analysis: %v", err)
	}
	if got.CacheHit {
		t.Fatal("agent-filtered request must not reuse the unfiltered entry")
	}
	var payload analysis.Payload
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Metadata.TotalConversationsInRange != 1 || payload.Metadata.AgentID != "agent_b" {
		t.Fatalf("unexpected metadata: %+v", payload.Metadata)
	}
}

type failingReader struct {
	calls int
}

func (f *failingReader) ConversationsInRange(context.Context, store.Range, bool) ([]store.Conversation, error) {
	f.calls++
	return nil, errors.New("database is locked")
}

func (f *failingReader) ListConversations(context.Context, store.ListFilter) ([]store.Conversation, error) {
	return nil, nil
}

func (f *failingReader) CostSince(context.Context, time.Time, string) (float64, error) {
	return 0, nil
}

func (f *failingReader) ListSyncRuns(context.Context, int) ([]store.SyncRun, error) {
	return nil, nil
}

func TestAnalysisLoadFailureIsNotCached(t *testing.T) {
	reader := &failingReader{}
	cache := analysis.NewCache(time.Hour)
	svc := report.New(nil, reader, nil, cache, nil)
	q, _ := report.AnalysisQuery("2025-04-07", "2025-04-07", "")

	for range 2 {
		_, err := svc.Analysis(context.Background(), q)
		if err == nil {
			t.Fatal("expected load failure")
		}
		if status := services.HTTPStatus(err); status != http.StatusInternalServerError {
			t.Fatalf("status for local store failure = %d, want 500 (%v)", status, err)
		}
	}
	if reader.calls != 2 {
		t.Fatalf("reader calls = %d, want 2", reader.calls)
	}
	if cache.Len() != 0 {
		t.Fatalf("cache holds %d entries after failures", cache.Len())
	}
}

func TestDashboardLoadFailureIsInternal(t *testing.T) {
	svc := report.New(nil, &failingReader{}, nil, nil, nil)
	q, err := report.DashboardQuery("7d", "", "", "", "", time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DashboardQuery: %v", err)
	}
	_, err = svc.Dashboard(context.Background(), q)
	if err == nil || services.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected a 500-class failure, got %v", err)
	}
	if errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrExternal) {
		t.Fatalf("local store failure classified as upstream: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := newService(t)
	q, err := report.DashboardQuery("", "2025-04-07", "2025-04-09", "", svc.DefaultTimeframe(), svc.Now())
	if err != nil {
		t.Fatalf("DashboardQuery: %v", err)
	}

	d, err := svc.Dashboard(context.Background(), q)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalConversationsPeriod != 2 {
		t.Fatalf("total = %d, want 2", d.TotalConversationsPeriod)
	}
	if d.DailyVolume["2025-04-07"] != 1 || d.DailyVolume["2025-04-08"] != 1 || d.DailyVolume["2025-04-09"] != 0 {
		t.Fatalf("unexpected daily volume: %v", d.DailyVolume)
	}
	if d.MonthToDateCost != 200 || d.MonthlyBudget != 500 || d.BudgetUsedPercent != 40 {
		t.Fatalf("unexpected budget fields: mtd=%v budget=%v pct=%v", d.MonthToDateCost, d.MonthlyBudget, d.BudgetUsedPercent)
	}
	if d.CompletionRate != 100 {
		t.Fatalf("completion rate = %v, want 100", d.CompletionRate)
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"analysis missing end", func() error {
			_, err := report.AnalysisQuery("2025-04-07", "", "")
			return err
		}},
		{"analysis reversed", func() error {
			_, err := report.AnalysisQuery("2025-04-09", "2025-04-07", "")
			return err
		}},
		{"dashboard half range", func() error {
			_, err := report.DashboardQuery("", "2025-04-07", "", "", "30d", now)
			return err
		}},
		{"dashboard unknown timeframe", func() error {
			_, err := report.DashboardQuery("yearly", "", "", "", "30d", now)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	q, err := report.DashboardQuery("", "", "", " agent_a ", "7d", now)
	if err != nil {
		t.Fatalf("default timeframe: %v", err)
	}
	if q.AgentID != "agent_a" || q.Period.StartDate() != "2025-04-14" {
		t.Fatalf("unexpected query: %+v", q)
	}
}
