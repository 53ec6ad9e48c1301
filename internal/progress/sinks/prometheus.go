package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/law-notes-crawler/internal/progress"
)

// PrometheusSink exports crawl counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	notes         *prometheus.CounterVec
	retries       prometheus.Counter
	unresolved    prometheus.Counter
	noteDepth     prometheus.Histogram
	fetchDuration prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lawcrawler_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lawcrawler_runs_completed_total",
			Help: "Crawl runs finished, partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lawcrawler_runs_active",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lawcrawler_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"result"}),
		notes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lawcrawler_notes_total",
			Help: "Queue items processed, partitioned by outcome.",
		}, []string{"state"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lawcrawler_fetch_retries_total",
			Help: "Scrape attempts that failed and were retried.",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lawcrawler_unresolved_records_total",
			Help: "Unresolved-reference records added to the log.",
		}),
		noteDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lawcrawler_note_depth",
			Help:    "BFS depth of written notes.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lawcrawler_fetch_duration_seconds",
			Help:    "Scrape and render time per fetched note.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.notes,
		s.retries,
		s.unresolved,
		s.noteDepth,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.runsActive.Inc()
		case progress.StageRunDone:
			s.finishRun(evt, "success")
			s.unresolved.Add(float64(evt.Unresolved))
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageFetched:
			s.notes.WithLabelValues("fetched").Inc()
			s.noteDepth.Observe(float64(evt.Depth))
			if evt.Dur > 0 {
				s.fetchDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageSkipped:
			s.notes.WithLabelValues("skipped").Inc()
			s.noteDepth.Observe(float64(evt.Depth))
		case progress.StageDropped:
			s.notes.WithLabelValues("dropped").Inc()
		case progress.StageRetry:
			s.retries.Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	s.runsActive.Dec()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
