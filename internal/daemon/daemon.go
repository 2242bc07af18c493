package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/logging"
)

const minPurgeInterval = time.Minute

// Syncer runs one synchronization.
type Syncer interface {
	Run(ctx context.Context, opts ingest.Options) (ingest.Outcome, error)
}

// Purger drops expired cached analyses.
type Purger interface {
	PurgeExpired() int
}

// Server is the HTTP front end started alongside the background loops.
type Server interface {
	Start(ctx context.Context) error
	Stop()
	Addr() string
}

// Daemon coordinates the background loops and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	syncer Syncer
	purger Purger
	server Server

	syncInterval  time.Duration
	purgeInterval time.Duration

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	lastSync atomic.Pointer[ingest.Outcome]
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	APIAddress   string
	SyncInterval time.Duration
	LastSync     *ingest.Outcome
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithSyncInterval overrides the configured scheduled sync period.
func WithSyncInterval(interval time.Duration) Option {
	return func(d *Daemon) { d.syncInterval = interval }
}

// WithPurgeInterval overrides how often expired analyses are dropped.
func WithPurgeInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.purgeInterval = interval
		}
	}
}

// New constructs a daemon. server and purger may be nil.
func New(cfg *config.Config, syncer Syncer, purger Purger, server Server, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || syncer == nil {
		return nil, errors.New("daemon requires config and syncer")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		syncer:        syncer,
		purger:        purger,
		server:        server,
		syncInterval:  cfg.SyncInterval(),
		purgeInterval: max(cfg.CacheTTL(), minPurgeInterval),
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the API server, and launches the
// background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another callscope server is already running for this data directory")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.server != nil {
		if err := d.server.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start api server: %w", err)
		}
	}
	d.cancel = cancel

	if d.purger != nil {
		d.wg.Add(1)
		go d.purgeLoop(runCtx)
	}
	if d.syncInterval > 0 {
		d.wg.Add(1)
		go d.syncLoop(runCtx)
	}

	d.running.Store(true)
	d.logger.Info("callscope daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("sync_interval", d.syncInterval),
	)
	return nil
}

// Stop stops the background loops and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.server != nil {
		d.server.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("callscope daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		SyncInterval: d.syncInterval,
		LastSync:     d.lastSync.Load(),
	}
	if d.server != nil {
		status.APIAddress = d.server.Addr()
	}
	return status
}

func (d *Daemon) syncLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runScheduledSync(ctx)
		}
	}
}

func (d *Daemon) runScheduledSync(ctx context.Context) {
	outcome, err := d.syncer.Run(ctx, ingest.Options{})
	switch {
	case errors.Is(err, ingest.ErrSyncInProgress):
		d.logger.Info("scheduled sync skipped",
			logging.Args(logging.DecisionAttrs("scheduled_sync", "skipped", "another run holds the sync lock")...)...)
		return
	case err != nil:
		logging.WarnWithContext(d.logger, "scheduled sync failed", "scheduled_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check source credentials and connectivity"),
			logging.String(logging.FieldImpact, "local data may be stale until the next run"),
		)
	}
	d.lastSync.Store(&outcome)
}

func (d *Daemon) purgeLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := d.purger.PurgeExpired(); removed > 0 {
				d.logger.Debug("expired analyses purged", logging.Int("removed", removed))
			}
		}
	}
}
