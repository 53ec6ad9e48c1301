// Package app builds the long-lived services of a crawl from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/api"
	"github.com/JakeFAU/law-notes-crawler/internal/clock"
	"github.com/JakeFAU/law-notes-crawler/internal/config"
	"github.com/JakeFAU/law-notes-crawler/internal/crawler"
	"github.com/JakeFAU/law-notes-crawler/internal/egov"
	"github.com/JakeFAU/law-notes-crawler/internal/id/uuid"
	"github.com/JakeFAU/law-notes-crawler/internal/metrics"
	"github.com/JakeFAU/law-notes-crawler/internal/notes"
	"github.com/JakeFAU/law-notes-crawler/internal/progress"
	"github.com/JakeFAU/law-notes-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/law-notes-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/law-notes-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/render"
	"github.com/JakeFAU/law-notes-crawler/internal/scrape"
	"github.com/JakeFAU/law-notes-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/law-notes-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/law-notes-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/law-notes-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/law-notes-crawler/internal/storage/postgres"
	"github.com/JakeFAU/law-notes-crawler/internal/unresolved"
)

type publisher interface {
	sinks.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	gcs        *gcsclient.Client
	notes      *notes.Store
	index      *notes.Index
	registry   registry.Store
	pgRegistry *pgstore.RegistryStore
	unresolved *unresolved.Store
	api        *egov.Client
	headless   *scrape.HeadlessFetcher
	publisher  publisher
	hub        *progress.Hub
	status     *sinks.StatusSink
	server     *api.Server
	driver     *crawler.Driver

	metrics     *prometheus.Registry
	instruments *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Build creates every dependency described by cfg. The caller owns the
// returned App and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("registry", cfg.Registry.Backend),
		zap.String("scraper", cfg.Scraper.Mode),
		zap.String("publisher", cfg.Publisher.Provider),
	)

	noteObjects, dataObjects, err := a.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	if a.notes, err = notes.NewStore(noteObjects); err != nil {
		return nil, fmt.Errorf("note store init failed: %w", err)
	}
	if a.index, err = notes.BuildIndex(ctx, noteObjects); err != nil {
		return nil, fmt.Errorf("note index init failed: %w", err)
	}
	a.logger.Debug("indexed existing notes", zap.Int("notes", a.index.Len()))

	if err = a.setupRegistry(ctx, dataObjects); err != nil {
		return nil, err
	}
	if a.unresolved, err = unresolved.NewStore(dataObjects, cfg.Paths.UnresolvedFile); err != nil {
		return nil, fmt.Errorf("unresolved log init failed: %w", err)
	}

	a.api, err = egov.NewClient(cfg.API, egov.WithLogger(logger.Named("egov")))
	if err != nil {
		return nil, fmt.Errorf("e-gov client init failed: %w", err)
	}
	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.instruments = metrics.New(a.metrics)

	scraper, err := a.setupScraper()
	if err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.setupProgress(); err != nil {
		return nil, err
	}

	renderer, err := render.New(cfg.Crawl.SiteBase)
	if err != nil {
		return nil, fmt.Errorf("renderer init failed: %w", err)
	}
	crawlCfg, err := cfg.CrawlerConfig()
	if err != nil {
		return nil, err
	}
	a.driver, err = crawler.New(crawlCfg, crawler.Dependencies{
		Renderer:   renderer,
		Scraper:    scraper,
		Titles:     a.api,
		Notes:      a.notes,
		Index:      a.index,
		Registry:   a.registry,
		Unresolved: a.unresolved,
		Clock:      clock.System{},
		IDs:        uuid.New(),
		Emitter:    a.hub,
	}, crawler.WithLogger(logger.Named("crawler")))
	if err != nil {
		return nil, fmt.Errorf("crawl driver init failed: %w", err)
	}

	if cfg.Server.Enabled {
		a.server = api.NewServer(a.status, a.registry, a.metrics, logger.Named("api"), api.WithMiddleware(a.instruments.Middleware))
	}
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) (noteObjects, dataObjects storage.ObjectStore, err error) {
	cfg := a.cfg
	switch cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Storage.GCSBucket))
		a.gcs, err = gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		base, err := gcsstorage.New(a.gcs, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return storage.NewPrefixed(base, cfg.Storage.NotesPrefix), storage.NewPrefixed(base, cfg.Storage.DataPrefix), nil
	case "memory":
		a.logger.Info("using in-memory storage backend")
		base := memorystorage.NewBlobStore()
		return storage.NewPrefixed(base, cfg.Storage.NotesPrefix), storage.NewPrefixed(base, cfg.Storage.DataPrefix), nil
	default:
		a.logger.Info("using local storage backend",
			zap.String("output_dir", cfg.Paths.OutputDir),
			zap.String("data_dir", cfg.Paths.DataDir),
		)
		noteStore, err := localstorage.New(localstorage.Config{BaseDir: cfg.Paths.OutputDir})
		if err != nil {
			return nil, nil, fmt.Errorf("local note store init failed: %w", err)
		}
		dataStore, err := localstorage.New(localstorage.Config{BaseDir: cfg.Paths.DataDir})
		if err != nil {
			return nil, nil, fmt.Errorf("local data store init failed: %w", err)
		}
		return noteStore, dataStore, nil
	}
}

func (a *App) setupRegistry(ctx context.Context, dataObjects storage.ObjectStore) error {
	if a.cfg.Registry.Backend == "postgres" {
		store, err := pgstore.NewRegistryStore(ctx, pgstore.Config{
			DSN:      a.cfg.Registry.DSN,
			Table:    a.cfg.Registry.Table,
			MaxConns: a.cfg.Registry.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres registry init failed: %w", err)
		}
		a.pgRegistry = store
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.registry = store
		a.logger.Info("using postgres registry", zap.String("table", a.cfg.Registry.Table))
		return nil
	}
	store, err := registry.NewJSONStore(dataObjects, a.cfg.Paths.RegistryFile)
	if err != nil {
		return fmt.Errorf("registry store init failed: %w", err)
	}
	a.registry = store
	return nil
}

func (a *App) setupScraper() (crawler.Scraper, error) {
	cfg := a.cfg.Scraper
	switch cfg.Mode {
	case config.ScraperAPI:
		a.logger.Info("using e-gov api scraper", zap.String("base_url", a.cfg.API.BaseURL))
		s, err := egov.NewScraper(a.api, a.cfg.Crawl.SiteBase)
		if err != nil {
			return nil, fmt.Errorf("api scraper init failed: %w", err)
		}
		return s, nil
	case config.ScraperStatic:
		a.logger.Info("using colly page fetcher", zap.String("user_agent", cfg.UserAgent))
		return a.pageScraper(a.collyFetcher())
	case config.ScraperAuto:
		if err := a.setupHeadless(); err != nil {
			return nil, err
		}
		fetcher := scrape.Promote(a.collyFetcher(), a.headless, scrape.NewDetector(cfg.PromoteThreshold))
		fetcher.OnPromote = func(url string) {
			a.logger.Debug("promoting fetch to headless", zap.String("url", url))
		}
		a.logger.Info("using colly page fetcher with headless promotion", zap.Int("promote_threshold", cfg.PromoteThreshold))
		return a.pageScraper(fetcher)
	default:
		if err := a.setupHeadless(); err != nil {
			return nil, err
		}
		a.logger.Info("using headless page fetcher", zap.Int("max_parallel", cfg.MaxParallel))
		return a.pageScraper(a.headless)
	}
}

func (a *App) collyFetcher() *scrape.CollyFetcher {
	cfg := a.cfg.Scraper
	return scrape.NewColly(scrape.CollyConfig{
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
		Timeout:       cfg.Timeout,
	})
}

func (a *App) setupHeadless() error {
	cfg := a.cfg.Scraper
	var err error
	a.headless, err = scrape.NewHeadless(scrape.HeadlessConfig{
		MaxParallel:       cfg.MaxParallel,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.Timeout,
		SettleDelay:       cfg.SettleDelay,
		WaitSelector:      cfg.WaitSelector,
	})
	if err != nil {
		return fmt.Errorf("headless fetcher init failed: %w", err)
	}
	return nil
}

func (a *App) pageScraper(fetcher scrape.Fetcher) (crawler.Scraper, error) {
	fetcher = scrape.Throttle(a.instruments.InstrumentFetcher(fetcher), scrape.ThrottleConfig{
		RatePerSecond: a.cfg.Scraper.RatePerSecond,
		Burst:         a.cfg.Scraper.Burst,
	})
	if throttled, ok := fetcher.(*scrape.ThrottledFetcher); ok {
		throttled.OnWait = func(host string, waited time.Duration) {
			a.instruments.ObserveRateLimitDelay(host, waited)
			a.logger.Debug("fetch throttled", zap.String("host", host), zap.Duration("waited", waited))
		}
	}
	s, err := scrape.New(fetcher, a.cfg.Crawl.SiteBase, a.cfg.Scraper.Selectors)
	if err != nil {
		return nil, fmt.Errorf("page scraper init failed: %w", err)
	}
	return s, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		pub, err := gcppublisher.New(ctx, a.cfg.Publisher.ProjectID, a.cfg.Publisher.Topic)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("using in-memory publisher")
	default:
		a.logger.Debug("note publishing disabled")
	}
	return nil
}

func (a *App) setupProgress() error {
	a.status = sinks.NewStatusSink()
	promSink, err := sinks.NewPrometheusSink(a.metrics)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{a.status, promSink}
	if a.cfg.Progress.Log {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.publisher != nil {
		sinkList = append(sinkList, sinks.NewPublishSink(a.publisher, a.cfg.Publisher.Topic, a.logger.Named("progress_publish")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// Crawl runs one crawl from rootID. When the status server is enabled it
// serves for the duration of the run.
func (a *App) Crawl(ctx context.Context, rootID, titleHint string) (crawler.Summary, error) {
	if a.server == nil {
		return a.driver.Run(ctx, rootID, titleHint)
	}
	serveCtx, stop := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() {
		served <- a.server.ListenAndServe(serveCtx, a.cfg.Server.Addr)
	}()
	summary, err := a.driver.Run(ctx, rootID, titleHint)
	stop()
	if serveErr := <-served; serveErr != nil {
		a.logger.Warn("status server stopped with error", zap.Error(serveErr))
	}
	return summary, err
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// API returns the e-Gov client.
func (a *App) API() *egov.Client {
	return a.api
}

// Registry returns the configured registry store.
func (a *App) Registry() registry.Store {
	return a.registry
}

// Notes returns the note store.
func (a *App) Notes() *notes.Store {
	return a.notes
}

// Status returns the live run status.
func (a *App) Status() sinks.RunStatus {
	return a.status.Snapshot()
}

// Close flushes progress events and releases every client. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.hub != nil {
			if err := a.hub.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("progress hub close: %w", err))
			}
		}
		if a.publisher != nil {
			if err := a.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("publisher close: %w", err))
			}
		}
		if a.headless != nil {
			a.headless.Close()
		}
		if a.pgRegistry != nil {
			a.pgRegistry.Close()
		}
		if a.gcs != nil {
			if err := a.gcs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("gcs client close: %w", err))
			}
		}
		_ = a.logger.Sync()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
