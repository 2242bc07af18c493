package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"callscope/internal/analysis"
	"callscope/internal/store"
	"callscope/internal/testsupport"
)

var day1 = time.Date(2025, 4, 7, 9, 30, 0, 0, time.UTC)

type fakeCompleter struct {
	model    string
	complete func(ctx context.Context, system, user string) (string, error)
	calls    int
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.complete(ctx, system, user)
}

func (f *fakeCompleter) Model() string { return f.model }

func sampleConversations() []store.Conversation {
	return []store.Conversation{
		testsupport.Conversation("conv_billing", "agent_a", day1,
			"I was overcharged on my invoice and I am really frustrated",
			"I'm sorry about that, let me look.",
			"Can you refund the extra charge?",
			"Done, the refund is processed."),
		testsupport.Conversation("conv_delivery", "agent_a", day1.Add(2*time.Hour),
			"Thanks, the delivery was quick and great",
			"Glad to hear it!"),
		testsupport.Conversation("conv_login", "agent_b", day1.AddDate(0, 0, 1),
			"My login password reset is not working",
			"Let me send a new link."),
	}
}

func request() analysis.Request {
	start := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	return analysis.Request{Start: start, End: start.AddDate(0, 0, 3)}
}

func TestAnalyzeWithoutModelUsesHeuristics(t *testing.T) {
	analyzer := analysis.New(nil, analysis.Options{})
	result := analyzer.Analyze(context.Background(), request(), sampleConversations())

	fallback, ok := result.(analysis.Fallback)
	if !ok {
		t.Fatalf("expected Fallback, got %T", result)
	}
	if fallback.Reason != nil || !fallback.Cacheable() {
		t.Fatalf("unconfigured fallback should be cacheable: %+v", fallback)
	}
	p := result.Payload()
	if p.AnalysisStatus.Mode != analysis.ModeFallback || p.Error != "" {
		t.Fatalf("unexpected status: %+v error=%q", p.AnalysisStatus, p.Error)
	}
	if p.Metadata.TotalConversationsInRange != 3 || p.Metadata.StartDate != "2025-04-07" || p.Metadata.EndDate != "2025-04-09" {
		t.Fatalf("unexpected metadata: %+v", p.Metadata)
	}
	if len(p.TopThemes) == 0 || p.TopThemes[0].Theme != "Billing" || p.TopThemes[0].Mentions != 2 {
		t.Fatalf("expected Billing to lead themes, got %+v", p.TopThemes)
	}
	if len(p.SentimentTrends) != 3 || p.SentimentTrends[2].Conversations != 0 {
		t.Fatalf("expected three zero-filled trend days, got %+v", p.SentimentTrends)
	}

	quotes := p.CategorizedQuotes
	if len(quotes.Questions) != 1 || quotes.Questions[0].Text != "Can you refund the extra charge?" || quotes.Questions[0].ConversationID != "conv_billing" {
		t.Fatalf("unexpected questions: %+v", quotes.Questions)
	}
	if len(quotes.Concerns) != 1 || !strings.Contains(quotes.Concerns[0].Text, "overcharged") {
		t.Fatalf("unexpected concerns: %+v", quotes.Concerns)
	}
	if len(quotes.Positive) == 0 || quotes.Positive[0].ConversationID != "conv_delivery" {
		t.Fatalf("unexpected positive quotes: %+v", quotes.Positive)
	}
	if p.SentimentOverview.Caller.Distribution.Negative != 2 {
		t.Fatalf("unexpected caller distribution: %+v", p.SentimentOverview.Caller)
	}
}

func TestAnalyzeEmptyRangeIsWellTyped(t *testing.T) {
	completer := &fakeCompleter{model: "m", complete: func(context.Context, string, string) (string, error) {
		t.Fatal("model should not be called without conversations")
		return "", nil
	}}
	result := analysis.New(completer, analysis.Options{}).Analyze(context.Background(), request(), nil)

	data, err := json.Marshal(result.Payload())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, fragment := range []string{`"top_themes":[]`, `"questions":[]`, `"concerns":[]`, `"positive":[]`, `"theme_sentiment_correlation":[]`, `"mode":"fallback"`, `"model_name":"m"`} {
		if !strings.Contains(string(data), fragment) {
			t.Errorf("payload missing %s: %s", fragment, data)
		}
	}
}

func TestAnalyzeFullMode(t *testing.T) {
	answer := `{
		"sentiment_overview": {
			"overall": {"average": 1.7, "label": "positive", "distribution": {"positive": 3, "neutral": 2, "negative": -1}},
			"caller": {"average": -0.4, "label": "negative", "distribution": {"positive": 1, "neutral": 1, "negative": 2}},
			"agent": {"average": 0.5, "label": "positive", "distribution": {"positive": 2, "neutral": 1, "negative": 0}}
		},
		"top_themes": [
			{"theme": "Billing Errors", "mentions": 3, "conversation_count": 1},
			{"theme": "billing errors", "mentions": 1, "conversation_count": 1},
			{"theme": "Delivery", "mentions": 1, "conversation_count": 9}
		],
		"theme_sentiment_correlation": [{"theme": "Billing Errors", "average_sentiment": -0.8, "negative": 1}],
		"categorized_quotes": {
			"questions": [{"text": "Can you refund the extra charge?", "conversation_id": "conv_billing", "role": "caller"}],
			"concerns": [{"text": "made up", "conversation_id": "conv_unknown"}],
			"positive": []
		},
		"conversation_sentiments": [{"conversation_id": "conv_billing", "score": -0.9}]
	}`
	completer := &fakeCompleter{model: "demo/model", complete: func(_ context.Context, system, user string) (string, error) {
		if !strings.Contains(system, `"conversation_sentiments"`) {
			t.Errorf("system prompt should embed the answer schema")
		}
		if !strings.Contains(user, "conversation_id=conv_login") {
			t.Errorf("user prompt should include every conversation")
		}
		return "```json\n" + answer + "\n```", nil
	}}

	result := analysis.New(completer, analysis.Options{}).Analyze(context.Background(), request(), sampleConversations())
	if _, ok := result.(analysis.Full); !ok {
		t.Fatalf("expected Full, got %T (%+v)", result, result.Payload())
	}
	p := result.Payload()
	if p.AnalysisStatus.Mode != analysis.ModeFull || p.AnalysisStatus.ModelName != "demo/model" {
		t.Fatalf("unexpected status: %+v", p.AnalysisStatus)
	}
	if p.SentimentOverview.Overall.Average != 1 || p.SentimentOverview.Overall.Distribution.Negative != 0 {
		t.Fatalf("overview not clamped: %+v", p.SentimentOverview.Overall)
	}
	if p.SentimentOverview.Caller.Label != analysis.LabelNegative {
		t.Fatalf("caller label = %q", p.SentimentOverview.Caller.Label)
	}
	if len(p.TopThemes) != 2 || p.TopThemes[0].Theme != "Delivery" || p.TopThemes[0].ConversationCount != 3 {
		t.Fatalf("themes not normalized: %+v", p.TopThemes)
	}
	if len(p.CategorizedQuotes.Concerns) != 0 || len(p.CategorizedQuotes.Questions) != 1 {
		t.Fatalf("untraceable quotes should be dropped: %+v", p.CategorizedQuotes)
	}
	if p.SentimentTrends[0].Date != "2025-04-07" || p.SentimentTrends[0].Conversations != 2 {
		t.Fatalf("unexpected trend: %+v", p.SentimentTrends)
	}
	if p.Metadata.TotalConversationsInRange != 3 || p.Metadata.AnalyzedConversations != 3 {
		t.Fatalf("unexpected metadata: %+v", p.Metadata)
	}
}

func TestAnalyzeFallsBackOnModelFailure(t *testing.T) {
	tests := []struct {
		name     string
		complete func(context.Context, string, string) (string, error)
		details  string
	}{
		{
			name: "error",
			complete: func(context.Context, string, string) (string, error) {
				return "", errors.New("provider unavailable")
			},
			details: "provider unavailable",
		},
		{
			name: "panic",
			complete: func(context.Context, string, string) (string, error) {
				panic("boom")
			},
			details: "panicked: boom",
		},
		{
			name: "malformed answer",
			complete: func(context.Context, string, string) (string, error) {
				return "I could not analyze that", nil
			},
			details: "decode model answer",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{model: "demo/model", complete: tc.complete}
			result := analysis.New(completer, analysis.Options{}).Analyze(context.Background(), request(), sampleConversations())

			fallback, ok := result.(analysis.Fallback)
			if !ok {
				t.Fatalf("expected Fallback, got %T", result)
			}
			if fallback.Reason == nil || fallback.Cacheable() {
				t.Fatalf("failure fallback must carry a reason and not be cacheable")
			}
			p := result.Payload()
			if p.AnalysisStatus.Mode != analysis.ModeFallback || p.Error == "" || !strings.Contains(p.Details, tc.details) {
				t.Fatalf("unexpected payload status: mode=%s error=%q details=%q", p.AnalysisStatus.Mode, p.Error, p.Details)
			}
			if len(p.TopThemes) == 0 {
				t.Fatal("fallback payload should still carry heuristic themes")
			}
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	completer := &fakeCompleter{model: "slow", complete: func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	analyzer := analysis.New(completer, analysis.Options{Timeout: 20 * time.Millisecond})

	started := time.Now()
	result := analyzer.Analyze(context.Background(), request(), sampleConversations())
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced: %s", elapsed)
	}
	fallback, ok := result.(analysis.Fallback)
	if !ok || !fallback.TimedOut {
		t.Fatalf("expected timed-out fallback, got %#v", result)
	}
	p := result.Payload()
	if !p.Timeout || p.AnalysisStatus.Mode != analysis.ModeFallback {
		t.Fatalf("payload should flag timeout: %+v", p)
	}
}
