package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	// DefaultBaseDelay is the wait before the first retry, doubled per attempt
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxJitter bounds the uniform random delay added to every wait
	DefaultMaxJitter = 500 * time.Millisecond

	// DefaultMaxRetries is the number of retries after the first failure
	DefaultMaxRetries = 2
)

// Policy retries an operation with exponential backoff plus uniform jitter.
// Attempt n (1-indexed) waits BaseDelay*2^(n-1) + rand[0, MaxJitter).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration

	// Sleep and Jitter are replaceable for tests
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// NewPolicy creates a policy with the default delays and the given retry budget
func NewPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxJitter:  DefaultMaxJitter,
	}
}

// ExponentialBackoff returns the wait for the given attempt without jitter
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

// Wait returns the full wait (backoff plus jitter) before the given retry attempt
func (p Policy) Wait(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return ExponentialBackoff(attempt, base) + p.jitter()
}

func (p Policy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return time.Duration(rand.Int63n(int64(p.MaxJitter)))
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// OnRetry is called before each retry with the failed attempt number,
// the computed wait and the error that caused it
type OnRetry func(attempt int, wait time.Duration, err error)

// Do runs fn until it succeeds, returns a permanent error, or the retry
// budget is exhausted. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry OnRetry) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		attempt++
		if attempt > p.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		wait := p.Wait(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable; Do returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// SleepContext waits for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
