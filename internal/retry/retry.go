// Package retry runs operations under a bounded exponential backoff policy.
//
// Policies are value types built from configuration and are safe to share.
// Errors are classified with services.IsRetryable unless a policy supplies its
// own classifier, and failures that expose a RetryAfter hint (such as HTTP 429
// responses) override the computed delay up to the policy's maximum.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"callscope/internal/services"
)

// Policy bounds how many times an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error warrants another attempt. Nil uses
	// services.IsRetryable.
	Retryable func(error) bool

	timer backoff.Timer
}

// Notify is invoked before each sleep with the failed attempt number (1-based),
// its error, and the upcoming delay.
type Notify func(attempt int, err error, delay time.Duration)

// RetryAfterHint is implemented by errors that carry a server-provided delay.
type RetryAfterHint interface {
	RetryAfter() time.Duration
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// New returns a policy with the given bounds.
func New(maxAttempts int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max}
}

// WithTimer returns a copy of the policy that waits on the supplied timer.
// Tests use it to skip real sleeps.
func (p Policy) WithTimer(timer backoff.Timer) Policy {
	p.timer = timer
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, the context is
// done, or the attempt budget is spent.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a hook that observes each retry.
func (p Policy) DoNotify(ctx context.Context, op func(context.Context) error, notify Notify) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.attempts()
	retryable := p.Retryable
	if retryable == nil {
		retryable = services.IsRetryable
	}

	hinted := &hintedBackOff{next: p.backOff(attempts), max: p.MaxDelay}
	policy := backoff.WithContext(hinted, ctx)

	attempt := 0
	var lastErr error
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		hinted.hint = 0
		var h RetryAfterHint
		if errors.As(err, &h) {
			hinted.hint = h.RetryAfter()
		}
		return err
	}
	onRetry := func(err error, delay time.Duration) {
		if notify != nil {
			notify(attempt, err, delay)
		}
	}

	var err error
	if p.timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, policy, onRetry, p.timer)
	} else {
		err = backoff.RetryNotify(operation, policy, onRetry)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w (last error: %v)", ctxErr, err)
	}
	if lastErr != nil && errors.Is(err, lastErr) && retryable(lastErr) && attempt >= attempts {
		return &ExhaustedError{Attempts: attempt, Err: lastErr}
	}
	return err
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff(attempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(attempts-1))
}

// hintedBackOff prefers a server-provided delay over the computed one.
type hintedBackOff struct {
	next backoff.BackOff
	max  time.Duration
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	delay := h.next.NextBackOff()
	if delay == backoff.Stop {
		return backoff.Stop
	}
	if h.hint > 0 {
		delay = h.hint
		if h.max > 0 && delay > h.max {
			delay = h.max
		}
	}
	return delay
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.next.Reset()
}
