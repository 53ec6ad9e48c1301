package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero depth", func(c *Config) { c.MaxDepth = 0 }, ""},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, "crawl.max_depth must be >= 0"},
		{"no retries", func(c *Config) { c.Retries = 0 }, "crawl.retries must be >= 1"},
		{"bad policy", func(c *Config) { c.Existing = "merge" }, `crawl.existing must be "overwrite" or "skip", got "merge"`},
		{"negative unit", func(c *Config) { c.BackoffUnit = -time.Second }, "crawl.backoff_unit must be >= 0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestParseExistingPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseExistingPolicy(" SKIP ")
	require.NoError(t, err)
	assert.Equal(t, ExistingSkip, p)

	_, err = ParseExistingPolicy("")
	require.Error(t, err)
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	var q fifo
	q.push(QueueItem{ID: "A"})
	q.push(QueueItem{ID: "B"})
	first, ok := q.pop()
	require.True(t, ok)
	q.push(QueueItem{ID: "C"})

	var got []string
	got = append(got, first.ID)
	for q.len() > 0 {
		item, _ := q.pop()
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestFetchErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := &FetchError{ID: "A", Attempts: 2, Err: assert.AnError}
	assert.ErrorIs(t, err, ErrFetchExhausted)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "fetch law A (2 attempts)")
}
