package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestExecutor(t *testing.T, attempts int) (*Executor, *recordingSleeper) {
	t.Helper()
	rec := &recordingSleeper{}
	exec, err := New(attempts, time.Second, WithSleeper(rec.sleep))
	require.NoError(t, err)
	return exec, rec
}

// TestNewRejectsInvalidAttempts ensures the attempt budget is at least one.
func TestNewRejectsInvalidAttempts(t *testing.T) {
	t.Parallel()

	_, err := New(0, time.Second)
	require.Error(t, err)
	_, err = New(1, -time.Second)
	require.Error(t, err)
}

// TestRetrySucceedsFirstAttempt confirms success returns without waiting.
func TestRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	exec, rec := newTestExecutor(t, 3)
	calls := 0
	got, err := Retry(context.Background(), exec, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

// TestRetryWaitsExponentially checks the 1, 2, 4 unit schedule between failures.
func TestRetryWaitsExponentially(t *testing.T) {
	t.Parallel()

	exec, rec := newTestExecutor(t, 4)
	calls := 0
	got, err := Retry(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.waits)
}

// TestRetryPropagatesLastFailure ensures exhaustion surfaces the final error.
func TestRetryPropagatesLastFailure(t *testing.T) {
	t.Parallel()

	exec, rec := newTestExecutor(t, 3)
	calls := 0
	last := errors.New("third")
	err := exec.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("earlier")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.waits, 2, "no wait after the final attempt")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

// TestRetrySingleAttempt verifies N=1 never waits.
func TestRetrySingleAttempt(t *testing.T) {
	t.Parallel()

	exec, rec := newTestExecutor(t, 1)
	err := exec.Do(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, rec.waits)
}

// TestRetryStopsOnPermanent ensures permanent failures skip remaining attempts.
func TestRetryStopsOnPermanent(t *testing.T) {
	t.Parallel()

	exec, rec := newTestExecutor(t, 5)
	cause := errors.New("not found")
	calls := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

// TestRetryHonorsCanceledContext stops once the caller's context is done.
func TestRetryHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := exec.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("failed")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// TestTimerSleepCanceled covers the real sleeper's cancellation path.
func TestTimerSleepCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := timerSleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, timerSleep(context.Background(), 0))
}

func TestDelay(t *testing.T) {
	t.Parallel()

	exec, err := New(3, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, exec.Delay(0))
	assert.Equal(t, 800*time.Millisecond, exec.Delay(3))
	assert.Equal(t, 100*time.Millisecond, exec.Delay(-1))
	assert.Equal(t, 3, exec.Attempts())
}

// TestWithNotifyObservesRetries checks the hook fires once per retry wait.
func TestWithNotifyObservesRetries(t *testing.T) {
	t.Parallel()

	type call struct {
		attempt int
		wait    time.Duration
	}
	var calls []call
	exec, err := New(3, time.Millisecond,
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
		WithNotify(func(attempt int, _ error, wait time.Duration) {
			calls = append(calls, call{attempt, wait})
		}),
	)
	require.NoError(t, err)

	err = exec.Do(context.Background(), func(context.Context) error { return errors.New("down") })
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []call{{0, time.Millisecond}, {1, 2 * time.Millisecond}}, calls)
}
