package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds how a step retries a failing call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Retryable classifies an error. Nil means domain.IsTransient.
	Retryable func(error) bool
}

// DefaultPersistPolicy retries transient store errors three times with
// exponential backoff.
func DefaultPersistPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Retryable:      domain.IsTransient,
	}
}

// SingleAttempt makes exactly one call.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// retryUnlessCancelled retries every error except context expiry.
func retryUnlessCancelled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. It reports how many calls were made. When ctx
// expires during a call or a backoff the context error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	attempts := 0
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsTransient
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(p.InitialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	}
	if p.MaxBackoff > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxBackoff))
	}

	err := retry.Do(func() error {
		attempts++
		return call(ctx, fn)
	}, opts...)

	return attempts, err
}

// call runs fn and stops waiting for it once ctx is done. A call that
// ignores ctx is abandoned and its late result dropped.
func call(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
