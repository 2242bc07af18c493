package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"callscope/internal/config"
	"callscope/internal/logging"
	"callscope/internal/retry"
	"callscope/internal/services"
	"callscope/internal/services/convai"
	"callscope/internal/store"
)

// Run status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrSyncInProgress is returned when another run holds the sync lock.
var ErrSyncInProgress = fmt.Errorf("%w: sync already in progress", services.ErrConflict)

// Repository is the storage surface a sync run needs.
type Repository interface {
	Writer
	CountConversations(ctx context.Context) (int, error)
	SummaryIndex(ctx context.Context) (map[string]bool, error)
	RecordSyncRun(ctx context.Context, run *store.SyncRun) error
}

// Options selects the run mode.
type Options struct {
	// Full refreshes every listed conversation already stored, not only
	// those missing a summary.
	Full bool
}

// Outcome summarizes one run. When a run is cut short, CheckedAPI exceeds
// the sum of Added, Updated, Skipped, and Failed.
type Outcome struct {
	RunID          string    `json:"run_id"`
	FullSync       bool      `json:"full_sync"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	InitialDBCount int       `json:"initial_db_count"`
	FinalDBCount   int       `json:"final_db_count"`
	Added          int       `json:"added"`
	Updated        int       `json:"updated"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	CheckedAPI     int       `json:"checked_api"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Syncer runs synchronization against one store and source.
type Syncer struct {
	repo     Repository
	source   convai.Source
	logger   *slog.Logger
	lockPath string
	fetch    FetchOptions
	workers  int
	policy   retry.Policy
	now      func() time.Time
	onChange func()

	running sync.Mutex
}

// SyncerOption customizes a Syncer.
type SyncerOption func(*Syncer)

// WithClock overrides the time source used for run timestamps and missing
// payload times.
func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetryPolicy overrides the policy built from configuration.
func WithRetryPolicy(policy retry.Policy) SyncerOption {
	return func(s *Syncer) {
		s.policy = policy
		s.fetch.Retry = policy
	}
}

// WithChangeHook registers fn to run after a sync that added or updated
// records. The report layer uses it to drop cached analyses.
func WithChangeHook(fn func()) SyncerOption {
	return func(s *Syncer) {
		s.onChange = fn
	}
}

// NewSyncer builds a Syncer from configuration.
func NewSyncer(cfg *config.Config, repo Repository, source convai.Source, logger *slog.Logger, opts ...SyncerOption) *Syncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	policy := retry.New(cfg.RetryPolicy())
	s := &Syncer{
		repo:     repo,
		source:   source,
		logger:   logging.NewComponentLogger(logger, "sync"),
		lockPath: cfg.SyncLockPath(),
		fetch: FetchOptions{
			Endpoints: append([]string(nil), cfg.Source.ListEndpoints...),
			AgentIDs:  append([]string(nil), cfg.Source.AgentIDs...),
			PageSize:  cfg.Source.PageSize,
			MaxPages:  cfg.Source.MaxPages,
			Retry:     policy,
		},
		workers: cfg.Source.DetailWorkers,
		policy:  policy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one synchronization. It returns ErrSyncInProgress when
// another run holds the lock, and an error when the store cannot be read.
// Listing shortfalls, record failures, and cancellation are reported through
// the Outcome instead.
func (s *Syncer) Run(ctx context.Context, opts Options) (Outcome, error) {
	if !s.running.TryLock() {
		return Outcome{Status: StatusError, Message: "sync already in progress"}, ErrSyncInProgress
	}
	defer s.running.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "sync", "lock", "create lock directory", err)
	}
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "sync", "lock", "acquire sync lock", err)
	}
	if !locked {
		return Outcome{Status: StatusError, Message: "sync already in progress"}, ErrSyncInProgress
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release sync lock", logging.Error(err))
		}
	}()

	runID := uuid.NewString()
	ctx = services.WithSyncRunID(ctx, runID)
	logger := logging.WithContext(ctx, s.logger)

	outcome := Outcome{RunID: runID, FullSync: opts.Full, StartedAt: s.now().UTC()}
	logger.Info("sync started",
		logging.String(logging.FieldEventType, "sync_start"),
		logging.Bool("full_sync", opts.Full),
	)

	initial, err := s.repo.CountConversations(ctx)
	if err != nil {
		return s.fail(ctx, logger, outcome, "count stored conversations", err)
	}
	outcome.InitialDBCount = initial
	outcome.FinalDBCount = initial

	fetchOpts := s.fetch
	fetchOpts.Logger = logger
	listing, fetchErr := FetchIDs(ctx, s.source, fetchOpts)
	outcome.CheckedAPI = listing.CheckedAPI
	if fetchErr == nil && listing.CheckedAPI == 0 && len(listing.Failures) > 0 {
		return s.fail(ctx, logger, outcome, "list conversations", errors.Join(listing.Failures...))
	}

	var counts UpsertCounts
	if fetchErr == nil {
		index, err := s.repo.SummaryIndex(ctx)
		if err != nil {
			return s.fail(ctx, logger, outcome, "load summary index", err)
		}
		plan := Classify(listing.IDs, index, opts.Full)
		outcome.Skipped = plan.Skip
		logger.Info("sync plan ready",
			logging.Int("checked_api", listing.CheckedAPI),
			logging.Int("new", plan.New),
			logging.Int("needs_update", plan.Update),
			logging.Int("skip", plan.Skip),
		)
		counts = Upsert(ctx, s.source, s.repo, plan.Pending(), UpsertOptions{
			Workers: s.workers,
			Retry:   s.policy,
			Agents:  listing.Agents,
			Now:     s.now,
			Logger:  logger,
		})
	}
	outcome.Added = counts.Added
	outcome.Updated = counts.Updated
	outcome.Failed = counts.Failed

	persistCtx := context.WithoutCancel(ctx)
	if final, err := s.repo.CountConversations(persistCtx); err == nil {
		outcome.FinalDBCount = final
	} else {
		logger.Warn("final conversation count unavailable", logging.Error(err))
	}

	cancelled := ctx.Err() != nil
	outcome.Status = StatusSuccess
	if cancelled {
		outcome.Status = StatusError
	}
	outcome.Message = describe(outcome, listing, cancelled)
	outcome.FinishedAt = s.now().UTC()
	s.record(persistCtx, logger, outcome)

	if outcome.Added+outcome.Updated > 0 && s.onChange != nil {
		s.onChange()
	}

	attrs := []logging.Attr{
		logging.String("status", outcome.Status),
		logging.Int("checked_api", outcome.CheckedAPI),
		logging.Int("added", outcome.Added),
		logging.Int("updated", outcome.Updated),
		logging.Int("skipped", outcome.Skipped),
		logging.Int("failed", outcome.Failed),
		logging.Duration("duration", outcome.FinishedAt.Sub(outcome.StartedAt)),
	}
	if outcome.Status == StatusSuccess && outcome.Failed == 0 && !listing.Partial {
		logger.Info("sync completed", logging.Args(append(attrs, logging.String(logging.FieldEventType, "sync_complete"))...)...)
	} else {
		logging.WarnWithContext(logger, "sync completed with problems", "sync_incomplete", append(attrs,
			logging.String("message", outcome.Message),
			logging.String(logging.FieldImpact, "some conversations were not synced"),
		)...)
	}
	return outcome, nil
}

func (s *Syncer) fail(ctx context.Context, logger *slog.Logger, outcome Outcome, step string, err error) (Outcome, error) {
	outcome.Status = StatusError
	outcome.Message = fmt.Sprintf("%s: %v", step, err)
	outcome.FinishedAt = s.now().UTC()
	logging.ErrorWithContext(logger, "sync failed", "sync_failed",
		logging.String("step", step),
		logging.Error(err),
	)
	s.record(context.WithoutCancel(ctx), logger, outcome)
	return outcome, fmt.Errorf("sync %s: %w", step, err)
}

func (s *Syncer) record(ctx context.Context, logger *slog.Logger, outcome Outcome) {
	run := &store.SyncRun{
		RunID:          outcome.RunID,
		FullSync:       outcome.FullSync,
		Status:         outcome.Status,
		Message:        outcome.Message,
		StartedAt:      outcome.StartedAt,
		FinishedAt:     outcome.FinishedAt,
		InitialDBCount: outcome.InitialDBCount,
		FinalDBCount:   outcome.FinalDBCount,
		Added:          outcome.Added,
		Updated:        outcome.Updated,
		Skipped:        outcome.Skipped,
		Failed:         outcome.Failed,
		CheckedAPI:     outcome.CheckedAPI,
	}
	if err := s.repo.RecordSyncRun(ctx, run); err != nil {
		logger.Warn("failed to record sync run", logging.Error(err))
	}
}

func describe(outcome Outcome, listing FetchResult, cancelled bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d conversations: %d added, %d updated, %d skipped, %d failed",
		outcome.CheckedAPI, outcome.Added, outcome.Updated, outcome.Skipped, outcome.Failed)
	if listing.Partial && len(listing.Failures) > 0 {
		fmt.Fprintf(&b, "; listing incomplete (%d listing failures)", len(listing.Failures))
	}
	if cancelled {
		processed := outcome.Added + outcome.Updated + outcome.Skipped + outcome.Failed
		fmt.Fprintf(&b, "; cancelled with %d of %d processed", processed, outcome.CheckedAPI)
	}
	return b.String()
}
