package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callscope/internal/config"
	"callscope/internal/logging"
	"callscope/internal/services/llm"
	"callscope/internal/store"
)

const (
	defaultTimeout   = 90 * time.Second
	defaultMaxQuotes = 5
)

// Request selects the conversations analyzed. Start is inclusive and End
// exclusive.
type Request struct {
	Start   time.Time
	End     time.Time
	AgentID string
}

func inclusiveEnd(req Request) string {
	if req.End.IsZero() {
		return ""
	}
	return req.End.Add(-time.Nanosecond).UTC().Format(dateLayout)
}

// Result is either Full or Fallback.
type Result interface {
	Payload() Payload
	// Cacheable reports whether the result may be reused for later requests.
	Cacheable() bool
	isResult()
}

// Full is a model-backed result.
type Full struct {
	payload Payload
}

func (f Full) Payload() Payload { return f.payload }
func (f Full) Cacheable() bool  { return true }
func (Full) isResult()          {}

// Fallback is a heuristic result. Reason is nil when the model path was
// never attempted.
type Fallback struct {
	payload  Payload
	Reason   error
	TimedOut bool
}

func (f Fallback) Payload() Payload { return f.payload }

// Cacheable is false when the fallback was caused by a failure, so the next
// request tries the model again.
func (f Fallback) Cacheable() bool { return f.Reason == nil && !f.TimedOut }
func (Fallback) isResult()         {}

// Options tunes an Analyzer.
type Options struct {
	Timeout          time.Duration
	MaxConversations int
	MaxQuotes        int
	Now              func() time.Time
	Logger           *slog.Logger
}

// OptionsFromConfig reads analyzer limits from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:          cfg.AnalysisTimeout(),
		MaxConversations: cfg.Analysis.MaxConversations,
		MaxQuotes:        cfg.Analysis.MaxQuotes,
	}
}

// Analyzer produces analysis payloads. A nil completer always yields
// fallback results.
type Analyzer struct {
	completer llm.Completer
	opts      Options
	logger    *slog.Logger
}

// New builds an Analyzer.
func New(completer llm.Completer, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxQuotes <= 0 {
		opts.MaxQuotes = defaultMaxQuotes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		completer: completer,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "analysis"),
	}
}

// ModelName returns the configured model, or "" in fallback-only mode.
func (a *Analyzer) ModelName() string {
	if a.completer == nil {
		return ""
	}
	return a.completer.Model()
}

type fullOutcome struct {
	payload Payload
	err     error
}

// Analyze never fails: model errors, panics, and the total timeout all
// produce a Fallback.
func (a *Analyzer) Analyze(ctx context.Context, req Request, convs []store.Conversation) Result {
	meta := Metadata{
		TotalConversationsInRange: len(convs),
		AnalyzedConversations:     len(convs),
		StartDate:                 req.Start.UTC().Format(dateLayout),
		EndDate:                   inclusiveEnd(req),
		AgentID:                   req.AgentID,
		GeneratedAt:               a.opts.Now().UTC(),
	}
	logger := logging.WithContext(ctx, a.logger)

	if a.completer == nil {
		return a.fallback(convs, req, meta, nil, false, "language model not configured")
	}
	if len(convs) == 0 {
		return a.fallback(convs, req, meta, nil, false, "no conversations in range")
	}

	runCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	done := make(chan fullOutcome, 1)
	started := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fullOutcome{err: fmt.Errorf("model analysis panicked: %v", r)}
			}
		}()
		payload, err := a.full(runCtx, req, convs)
		done <- fullOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			analyzed := out.payload.Metadata.AnalyzedConversations
			out.payload.Metadata = meta
			out.payload.Metadata.AnalyzedConversations = analyzed
			logger.Info("model analysis complete",
				logging.String("model", a.completer.Model()),
				logging.Int("conversations", len(convs)),
				logging.Duration("elapsed", time.Since(started)),
			)
			return Full{payload: out.payload}
		}
		timedOut := errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil
		a.logFailure(logger, out.err, timedOut)
		return a.fallback(convs, req, meta, out.err, timedOut, "")
	case <-runCtx.Done():
		err := runCtx.Err()
		timedOut := ctx.Err() == nil
		if timedOut {
			err = fmt.Errorf("model analysis exceeded %s: %w", a.opts.Timeout, err)
		}
		a.logFailure(logger, err, timedOut)
		return a.fallback(convs, req, meta, err, timedOut, "")
	}
}

func (a *Analyzer) logFailure(logger *slog.Logger, err error, timedOut bool) {
	event := "analysis_model_failed"
	if timedOut {
		event = "analysis_timeout"
	}
	logging.WarnWithContext(logger, "model analysis unavailable; using fallback", event,
		logging.String("model", a.completer.Model()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check llm settings and provider status"),
		logging.String(logging.FieldImpact, "analysis shows heuristic results"),
	)
}

func (a *Analyzer) fallback(convs []store.Conversation, req Request, meta Metadata, reason error, timedOut bool, note string) Fallback {
	payload := fallbackPayload(convs, req, a.opts.MaxQuotes)
	payload.Metadata = meta
	payload.AnalysisStatus.ModelName = a.ModelName()
	switch {
	case timedOut:
		payload.Timeout = true
		payload.Error = "analysis timed out"
		payload.Details = reason.Error()
	case reason != nil:
		payload.Error = "model analysis failed"
		payload.Details = reason.Error()
	default:
		payload.Details = note
	}
	return Fallback{payload: payload, Reason: reason, TimedOut: timedOut}
}
