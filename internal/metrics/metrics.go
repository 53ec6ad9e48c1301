// Package metrics exposes Prometheus collectors for page fetches and the
// status server.
package metrics

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JakeFAU/law-notes-crawler/internal/scrape"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	pagesTotal          *prometheus.CounterVec
	bytesTotal          *prometheus.CounterVec
	fetchSeconds        *prometheus.HistogramVec
	throttleSeconds     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		pagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lawcrawler_fetch_pages_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		),
		bytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lawcrawler_fetch_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		),
		fetchSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lawcrawler_page_fetch_seconds",
				Help:    "Histogram of single page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		throttleSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lawcrawler_rate_limit_delay_seconds",
				Help:    "Histogram of politeness waits before a fetch.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one fetch. status is the HTTP status or a failure
// class such as "error" or "canceled".
func (m *Metrics) ObserveFetch(site, status string, bytesFetched int, duration time.Duration) {
	sanitized := SanitizeSite(site)
	m.pagesTotal.WithLabelValues(sanitized, status).Inc()
	if bytesFetched > 0 {
		m.bytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
	m.fetchSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records a politeness wait for host.
func (m *Metrics) ObserveRateLimitDelay(host string, duration time.Duration) {
	m.throttleSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// InstrumentedFetcher records every fetch made through it.
type InstrumentedFetcher struct {
	next    scrape.Fetcher
	metrics *Metrics
}

// InstrumentFetcher wraps next.
func (m *Metrics) InstrumentFetcher(next scrape.Fetcher) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next, metrics: m}
}

// Fetch implements scrape.Fetcher.
func (f *InstrumentedFetcher) Fetch(ctx context.Context, target string) (scrape.Page, error) {
	start := time.Now()
	page, err := f.next.Fetch(ctx, target)
	f.metrics.ObserveFetch(target, fetchStatus(page, err), len(page.Body), time.Since(start))
	return page, err
}

func fetchStatus(page scrape.Page, err error) string {
	var statusErr *scrape.StatusError
	switch {
	case err == nil:
		return strconv.Itoa(page.StatusCode)
	case errors.As(err, &statusErr):
		return strconv.Itoa(statusErr.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
