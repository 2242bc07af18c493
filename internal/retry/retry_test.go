package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"callscope/internal/retry"
	"callscope/internal/services"
)

type instantTimer struct {
	ch     chan time.Time
	delays []time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	if t.ch == nil {
		t.ch = make(chan time.Time, 1)
	}
	t.delays = append(t.delays, d)
	t.ch <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.ch }

type hintErr struct{ after time.Duration }

func (e hintErr) Error() string { return "rate limited" }
func (e hintErr) RetryAfter() time.Duration { return e.after }
func (e hintErr) Unwrap() error { return services.ErrTransient }

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	timer := &instantTimer{}
	policy := retry.New(4, 100*time.Millisecond, time.Second).WithTimer(timer)

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return services.ErrTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(timer.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %v", timer.delays)
	}
	for _, d := range timer.delays {
		if d <= 0 || d > time.Second {
			t.Fatalf("delay %v outside policy bounds", d)
		}
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	policy := retry.New(3, time.Millisecond, 5*time.Millisecond).WithTimer(&instantTimer{})

	calls := 0
	var notified []int
	err := policy.DoNotify(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "source", "list", "503", nil)
	}, func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("unexpected attempt count %d", exhausted.Attempts)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected underlying marker, got %v", err)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Fatalf("unexpected notify attempts: %v", notified)
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	policy := retry.New(5, time.Millisecond, time.Millisecond).WithTimer(&instantTimer{})
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "source", "detail", "bad id", nil)
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDoHonoursRetryAfterHintCappedAtMax(t *testing.T) {
	timer := &instantTimer{}
	policy := retry.New(2, time.Millisecond, 2*time.Second).WithTimer(timer)
	calls := 0
	_ = policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return hintErr{after: 10 * time.Second}
		}
		return nil
	})
	if len(timer.delays) != 1 || timer.delays[0] != 2*time.Second {
		t.Fatalf("expected hinted delay capped to 2s, got %v", timer.delays)
	}
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.New(10, time.Millisecond, time.Millisecond).WithTimer(&instantTimer{})
	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return services.ErrTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", calls)
	}
}

func TestCustomClassifier(t *testing.T) {
	policy := retry.New(3, time.Millisecond, time.Millisecond).WithTimer(&instantTimer{})
	policy.Retryable = func(error) bool { return true }
	calls := 0
	_ = policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain")
	})
	if calls != 3 {
		t.Fatalf("expected classifier to allow retries, got %d calls", calls)
	}
}
