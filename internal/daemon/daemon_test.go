package daemon_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"callscope/internal/daemon"
	"callscope/internal/ingest"
	"callscope/internal/testsupport"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) Run(context.Context, ingest.Options) (ingest.Outcome, error) {
	n := s.calls.Add(1)
	if n == 1 {
		return ingest.Outcome{}, ingest.ErrSyncInProgress
	}
	return ingest.Outcome{Status: ingest.StatusSuccess, Added: int(n)}, nil
}

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired() int {
	p.calls.Add(1)
	return 1
}

type stubServer struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (s *stubServer) Start(context.Context) error {
	s.started.Store(true)
	return nil
}

func (s *stubServer) Stop()        { s.stopped.Store(true) }
func (s *stubServer) Addr() string { return "127.0.0.1:7488" }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	syncer := &countingSyncer{}
	purger := &countingPurger{}
	server := &stubServer{}

	d, err := daemon.New(cfg, syncer, purger, server, nil,
		daemon.WithSyncInterval(10*time.Millisecond),
		daemon.WithPurgeInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running || status.APIAddress != "127.0.0.1:7488" || !server.started.Load() {
		t.Fatalf("unexpected status after start: %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	waitFor(t, "scheduled sync", func() bool { return syncer.calls.Load() >= 2 })
	waitFor(t, "cache purge", func() bool { return purger.calls.Load() >= 1 })
	waitFor(t, "last sync outcome", func() bool { return d.Status().LastSync != nil })
	if last := d.Status().LastSync; last.Status != ingest.StatusSuccess {
		t.Fatalf("last sync status = %q", last.Status)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if !server.stopped.Load() {
		t.Fatal("expected api server to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, &countingSyncer{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	second, err := daemon.New(cfg, &countingSyncer{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
	first.Stop()

	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
}
