package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls []string
}

func (c *countingFetcher) Fetch(_ context.Context, url string) (Page, error) {
	c.calls = append(c.calls, url)
	return Page{URL: url, StatusCode: 200}, nil
}

func TestThrottleDisabledReturnsNext(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	assert.Same(t, Fetcher(next), Throttle(next, ThrottleConfig{}))
}

func TestThrottleSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Throttle(next, ThrottleConfig{RatePerSecond: 20, Burst: 1})
	throttled, ok := f.(*ThrottledFetcher)
	require.True(t, ok)

	var waits []string
	throttled.OnWait = func(host string, _ time.Duration) { waits = append(waits, host) }

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(ctx, "https://laws.example/law/A")
		require.NoError(t, err)
	}
	_, err := f.Fetch(ctx, "https://other.example/law/B")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Len(t, next.calls, 4)
	assert.NotContains(t, waits, "other.example", "a fresh host starts with a full bucket")
	assert.Contains(t, waits, "laws.example")
}

func TestThrottleHonorsContext(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Throttle(next, ThrottleConfig{RatePerSecond: 0.001, Burst: 1})

	_, err := f.Fetch(context.Background(), "https://laws.example/law/A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, "https://laws.example/law/B")
	require.Error(t, err)
	assert.Len(t, next.calls, 1)
}
