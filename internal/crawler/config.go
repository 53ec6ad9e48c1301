package crawler

import (
	"fmt"
	"strings"
	"time"
)

// ExistingPolicy decides what happens to laws that already have a note.
type ExistingPolicy string

// Supported policies.
const (
	ExistingOverwrite ExistingPolicy = "overwrite"
	ExistingSkip      ExistingPolicy = "skip"
)

// ParseExistingPolicy accepts "overwrite" or "skip", case-insensitively.
func ParseExistingPolicy(raw string) (ExistingPolicy, error) {
	switch p := ExistingPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case ExistingOverwrite, ExistingSkip:
		return p, nil
	default:
		return "", fmt.Errorf("crawl.existing must be %q or %q, got %q", ExistingOverwrite, ExistingSkip, raw)
	}
}

// Config holds the knobs of one crawl run. It is decoupled from viper so the
// driver can be built directly in tests.
type Config struct {
	// MaxDepth bounds the BFS distance from the root. Zero crawls only the root.
	MaxDepth int
	// Retries is the scrape attempt budget per law.
	Retries  int
	Existing ExistingPolicy
	// AutoUpdate resolves titles of unknown references before rendering.
	AutoUpdate bool
	// BackoffUnit is the base wait between attempts; waits double each time.
	BackoffUnit time.Duration
}

// DefaultConfig mirrors the CLI defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:    1,
		Retries:     3,
		Existing:    ExistingOverwrite,
		BackoffUnit: time.Second,
	}
}

// Validate rejects impossible settings.
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0")
	}
	if c.Retries < 1 {
		return fmt.Errorf("crawl.retries must be >= 1")
	}
	if _, err := ParseExistingPolicy(string(c.Existing)); err != nil {
		return err
	}
	if c.BackoffUnit < 0 {
		return fmt.Errorf("crawl.backoff_unit must be >= 0")
	}
	return nil
}
