package scrape

import (
	"bytes"
	"context"
	"strings"
)

const defaultPromoteThreshold = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// Detector decides whether a statically fetched page needs a browser.
type Detector struct {
	// BodyLengthThreshold marks short, script-heavy bodies as shells.
	BodyLengthThreshold int
	// Required lists body substrings whose absence forces promotion, such
	// as the article markup a rendered law page always carries.
	Required []string
}

// NewDetector returns a Detector; threshold <= 0 uses 2048 bytes.
func NewDetector(threshold int, required ...string) *Detector {
	if threshold <= 0 {
		threshold = defaultPromoteThreshold
	}
	return &Detector{BodyLengthThreshold: threshold, Required: required}
}

// ShouldPromote reports whether page looks like a client-rendered shell.
func (d *Detector) ShouldPromote(page Page) bool {
	if page.StatusCode != 200 {
		return false
	}
	body := page.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if len(d.Required) > 0 {
		for _, needle := range d.Required {
			if bytes.Contains(body, []byte(needle)) {
				return false
			}
		}
		return true
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of the body.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1
		relEnd := strings.Index(lower[contentStart:], closeTag)
		next := total
		if relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}

// PromotingFetcher probes with a cheap fetcher and refetches with a browser
// when the detector flags the probe.
type PromotingFetcher struct {
	probe    Fetcher
	browser  Fetcher
	detector *Detector

	// OnPromote, when set, is called before each browser fetch.
	OnPromote func(url string)
}

// Promote builds a PromotingFetcher. A nil detector uses NewDetector(0).
func Promote(probe, browser Fetcher, detector *Detector) *PromotingFetcher {
	if detector == nil {
		detector = NewDetector(0)
	}
	return &PromotingFetcher{probe: probe, browser: browser, detector: detector}
}

// Fetch implements Fetcher. Probe errors are returned as is so a 404 stays
// a 404.
func (p *PromotingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	page, err := p.probe.Fetch(ctx, url)
	if err != nil || p.browser == nil || !p.detector.ShouldPromote(page) {
		return page, err
	}
	if p.OnPromote != nil {
		p.OnPromote(url)
	}
	return p.browser.Fetch(ctx, url)
}
