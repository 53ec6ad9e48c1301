// Package backoff runs fallible operations with bounded exponential retries.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is matched by errors returned after every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes an Executor.
type Option func(*Executor)

// WithSleeper replaces the timer-based wait. Tests use it to avoid real delays.
func WithSleeper(fn SleepFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// NotifyFunc observes a failed attempt that will be retried after wait.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// WithNotify registers fn to be called before each retry wait.
func WithNotify(fn NotifyFunc) Option {
	return func(e *Executor) {
		e.notify = fn
	}
}

// Executor retries an operation up to a fixed number of attempts, waiting
// unit * 2^attempt between failures.
type Executor struct {
	attempts int
	unit     time.Duration
	sleep    SleepFunc
	notify   NotifyFunc
}

// New builds an Executor. attempts must be >= 1.
func New(attempts int, unit time.Duration, opts ...Option) (*Executor, error) {
	if attempts < 1 {
		return nil, fmt.Errorf("attempts must be >= 1, got %d", attempts)
	}
	if unit < 0 {
		return nil, fmt.Errorf("unit must be >= 0, got %s", unit)
	}
	e := &Executor{
		attempts: attempts,
		unit:     unit,
		sleep:    timerSleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Attempts reports the configured attempt budget.
func (e *Executor) Attempts() int {
	return e.attempts
}

// Delay returns the wait applied after a failure on the given zero-based attempt.
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(e.unit) * math.Pow(2, float64(attempt))
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Do executes op until it succeeds or the attempt budget is spent.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Retry(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry executes op with e's policy and returns the first successful value.
// After the last failed attempt it returns an *ExhaustedError wrapping that failure.
func Retry[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Join(ctxErr, lastErr)
		}
		if attempt+1 >= e.attempts {
			break
		}
		wait := e.Delay(attempt)
		if e.notify != nil {
			e.notify(attempt, err, wait)
		}
		if sleepErr := e.sleep(ctx, wait); sleepErr != nil {
			return zero, errors.Join(sleepErr, lastErr)
		}
	}
	return zero, &ExhaustedError{Attempts: e.attempts, Err: lastErr}
}

// ExhaustedError reports that every attempt failed; Err is the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Permanent marks err so that Retry stops immediately and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
