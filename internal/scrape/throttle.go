package scrape

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig limits page fetches per host.
//   - RatePerSecond: sustained fetches per second; <= 0 disables the limit.
//   - Burst: fetches allowed back to back (default 1).
type ThrottleConfig struct {
	RatePerSecond float64
	Burst         int
}

// ThrottledFetcher waits on a per-host token bucket before delegating.
type ThrottledFetcher struct {
	next  Fetcher
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// OnWait, when set, observes every non-trivial wait.
	OnWait func(host string, waited time.Duration)
}

// Throttle wraps next. With a non-positive rate next is returned unchanged.
func Throttle(next Fetcher, cfg ThrottleConfig) Fetcher {
	if cfg.RatePerSecond <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledFetcher{
		next:     next,
		limit:    rate.Limit(cfg.RatePerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *ThrottledFetcher) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[host] = l
	}
	return l
}

// Fetch implements Fetcher.
func (t *ThrottledFetcher) Fetch(ctx context.Context, target string) (Page, error) {
	host := "unknown"
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	start := time.Now()
	if err := t.limiter(host).Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond && t.OnWait != nil {
		t.OnWait(host, waited)
	}
	return t.next.Fetch(ctx, target)
}
