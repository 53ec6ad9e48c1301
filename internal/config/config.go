// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/law-notes-crawler/internal/crawler"
	"github.com/JakeFAU/law-notes-crawler/internal/egov"
	"github.com/JakeFAU/law-notes-crawler/internal/scrape"
)

// EnvPrefix prefixes environment overrides, e.g. LAWCRAWLER_CRAWL_MAX_DEPTH.
const EnvPrefix = "LAWCRAWLER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	API       egov.Config     `mapstructure:"api"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Server    ServerConfig    `mapstructure:"server"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlConfig governs the crawl driver.
type CrawlConfig struct {
	MaxDepth    int           `mapstructure:"max_depth"`
	Retries     int           `mapstructure:"retries"`
	Existing    string        `mapstructure:"existing"`
	AutoUpdate  bool          `mapstructure:"auto_update"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`
	SiteBase    string        `mapstructure:"site_base"`
}

// PathsConfig names where notes and crawler state live inside the storage
// provider. For the local provider they are directories on disk.
type PathsConfig struct {
	OutputDir      string `mapstructure:"output_dir"`
	DataDir        string `mapstructure:"data_dir"`
	RegistryFile   string `mapstructure:"registry_file"`
	UnresolvedFile string `mapstructure:"unresolved_file"`
}

// StorageConfig selects the object store for notes and state files.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	NotesPrefix string `mapstructure:"notes_prefix"`
	DataPrefix  string `mapstructure:"data_prefix"`
}

// RegistryConfig selects where the registry is kept.
type RegistryConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ScraperConfig selects and tunes the page source.
type ScraperConfig struct {
	Mode             string           `mapstructure:"mode"`
	UserAgent        string           `mapstructure:"user_agent"`
	Timeout          time.Duration    `mapstructure:"timeout"`
	RespectRobots    bool             `mapstructure:"respect_robots"`
	MaxParallel      int              `mapstructure:"max_parallel"`
	SettleDelay      time.Duration    `mapstructure:"settle_delay"`
	WaitSelector     string           `mapstructure:"wait_selector"`
	RatePerSecond    float64          `mapstructure:"rate_per_second"`
	Burst            int              `mapstructure:"burst"`
	PromoteThreshold int              `mapstructure:"promote_threshold"`
	Selectors        scrape.Selectors `mapstructure:"selectors"`
}

// PublisherConfig holds metadata for note notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	Log            bool          `mapstructure:"log"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Scraper modes.
const (
	ScraperHeadless = "headless"
	ScraperStatic   = "static"
	ScraperAPI      = "api"
	ScraperAuto     = "auto"
)

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	def := crawler.DefaultConfig()
	v.SetDefault("crawl.max_depth", def.MaxDepth)
	v.SetDefault("crawl.retries", def.Retries)
	v.SetDefault("crawl.existing", string(def.Existing))
	v.SetDefault("crawl.auto_update", def.AutoUpdate)
	v.SetDefault("crawl.backoff_unit", def.BackoffUnit)
	v.SetDefault("crawl.site_base", "https://laws.e-gov.go.jp")

	v.SetDefault("paths.output_dir", "notes")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.registry_file", "law_registry.json")
	v.SetDefault("paths.unresolved_file", "unresolved_refs.json")

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.notes_prefix", "notes")
	v.SetDefault("storage.data_prefix", "data")

	v.SetDefault("registry.backend", "file")
	v.SetDefault("registry.table", "law_registry")
	v.SetDefault("registry.max_conns", 4)

	sel := scrape.DefaultSelectors()
	v.SetDefault("scraper.mode", ScraperHeadless)
	v.SetDefault("scraper.user_agent", "lawcrawler/0.1 (+https://github.com/JakeFAU/law-notes-crawler)")
	v.SetDefault("scraper.timeout", 45*time.Second)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.max_parallel", 1)
	v.SetDefault("scraper.settle_delay", 500*time.Millisecond)
	v.SetDefault("scraper.wait_selector", "body")
	v.SetDefault("scraper.rate_per_second", 1.0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.promote_threshold", 2048)
	v.SetDefault("scraper.selectors.title", sel.Title)
	v.SetDefault("scraper.selectors.block", sel.Block)
	v.SetDefault("scraper.selectors.heading", sel.Heading)
	v.SetDefault("scraper.selectors.paragraph", sel.Paragraph)
	v.SetDefault("scraper.selectors.remove", sel.Remove)

	api := egov.DefaultConfig()
	v.SetDefault("api.base_url", api.BaseURL)
	v.SetDefault("api.timeout", api.Timeout)
	v.SetDefault("api.retries", api.Retries)
	v.SetDefault("api.retry_unit", api.RetryUnit)

	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.topic", "law-notes")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("progress.log", true)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.CrawlerConfig(); err != nil {
		return err
	}
	if c.Crawl.SiteBase == "" {
		return errors.New("crawl.site_base is required")
	}
	switch c.Storage.Provider {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider %q is not one of local, gcs, memory", c.Storage.Provider)
	}
	if c.Paths.RegistryFile == "" || c.Paths.UnresolvedFile == "" {
		return errors.New("paths.registry_file and paths.unresolved_file are required")
	}
	switch c.Registry.Backend {
	case "file":
	case "postgres":
		if c.Registry.DSN == "" {
			return errors.New("registry.dsn must be set when registry.backend is postgres")
		}
	default:
		return fmt.Errorf("registry.backend %q is not one of file, postgres", c.Registry.Backend)
	}
	switch c.Scraper.Mode {
	case ScraperHeadless, ScraperStatic, ScraperAPI, ScraperAuto:
	default:
		return fmt.Errorf("scraper.mode %q is not one of headless, static, api, auto", c.Scraper.Mode)
	}
	if c.Scraper.MaxParallel < 0 {
		return errors.New("scraper.max_parallel must be >= 0")
	}
	if c.Scraper.RatePerSecond < 0 {
		return errors.New("scraper.rate_per_second must be >= 0")
	}
	if c.API.Retries < 1 {
		return errors.New("api.retries must be >= 1")
	}
	switch c.Publisher.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return errors.New("publisher.project_id and publisher.topic must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider %q is not one of none, memory, pubsub", c.Publisher.Provider)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr must be set when the server is enabled")
	}
	return nil
}

// CrawlerConfig converts the crawl section into a validated crawler.Config.
func (c Config) CrawlerConfig() (crawler.Config, error) {
	policy, err := crawler.ParseExistingPolicy(c.Crawl.Existing)
	if err != nil {
		return crawler.Config{}, err
	}
	cfg := crawler.Config{
		MaxDepth:    c.Crawl.MaxDepth,
		Retries:     c.Crawl.Retries,
		Existing:    policy,
		AutoUpdate:  c.Crawl.AutoUpdate,
		BackoffUnit: c.Crawl.BackoffUnit,
	}
	if err := cfg.Validate(); err != nil {
		return crawler.Config{}, err
	}
	return cfg, nil
}
