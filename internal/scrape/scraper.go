package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
	"github.com/JakeFAU/law-notes-crawler/internal/document"
)

// Page is a fetched HTML page.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Scraper fetches law pages under a site base and parses them.
type Scraper struct {
	fetcher   Fetcher
	base      *url.URL
	selectors Selectors
}

// New builds a Scraper. siteBase is the origin law paths are resolved against.
func New(fetcher Fetcher, siteBase string, sel Selectors) (*Scraper, error) {
	if fetcher == nil {
		return nil, errors.New("scrape: fetcher is required")
	}
	base, err := url.Parse(strings.TrimRight(siteBase, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("scrape: invalid site base %q", siteBase)
	}
	return &Scraper{fetcher: fetcher, base: base, selectors: sel.withDefaults()}, nil
}

// LawURL returns the page address of a law.
func (s *Scraper) LawURL(id string) string {
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + "/law/" + id
	return u.String()
}

// Scrape fetches and parses the law. A 404 is wrapped with backoff.Permanent
// so callers stop retrying a law that does not exist.
func (s *Scraper) Scrape(ctx context.Context, id string) (document.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return document.Document{}, backoff.Permanent(errors.New("scrape: empty law id"))
	}
	target := s.LawURL(id)
	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return document.Document{}, backoff.Permanent(err)
		}
		return document.Document{}, err
	}
	if page.StatusCode == http.StatusNotFound {
		return document.Document{}, backoff.Permanent(&StatusError{URL: target, StatusCode: page.StatusCode})
	}
	if page.StatusCode != 0 && (page.StatusCode < 200 || page.StatusCode > 299) {
		return document.Document{}, &StatusError{URL: target, StatusCode: page.StatusCode}
	}
	source := page.URL
	if source == "" {
		source = target
	}
	doc, err := Parse(id, source, page.Body, s.selectors)
	if err != nil {
		return document.Document{}, err
	}
	return doc, nil
}
