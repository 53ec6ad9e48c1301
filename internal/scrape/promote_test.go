package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorShouldPromote(t *testing.T) {
	t.Parallel()

	article := `<html><body><div class="Article">` + strings.Repeat("条文", 800) + `</div></body></html>`
	testCases := []struct {
		name     string
		detector *Detector
		page     Page
		want     bool
	}{
		{"not found", NewDetector(0), Page{StatusCode: 404}, false},
		{"empty body", NewDetector(0), Page{StatusCode: 200}, true},
		{"script heavy shell", NewDetector(0), Page{StatusCode: 200, Body: []byte(`<html><script src="a.js"></script><script>boot()</script><div></div></html>`)}, true},
		{"spa marker", NewDetector(0), Page{StatusCode: 200, Body: []byte(`<html><body><div id="root"></div>` + strings.Repeat(" ", 4096) + `</body></html>`)}, true},
		{"rendered law", NewDetector(0), Page{StatusCode: 200, Body: []byte(article)}, false},
		{"required markup present", NewDetector(0, `class="Article"`), Page{StatusCode: 200, Body: []byte(article)}, false},
		{"required markup missing", NewDetector(0, `class="Article"`), Page{StatusCode: 200, Body: []byte("<html><body>" + strings.Repeat("x", 4096) + "</body></html>")}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.detector.ShouldPromote(tc.page))
		})
	}
}

type recordingFetcher struct {
	page  Page
	err   error
	calls int
}

func (r *recordingFetcher) Fetch(context.Context, string) (Page, error) {
	r.calls++
	return r.page, r.err
}

func TestPromotingFetcher(t *testing.T) {
	t.Parallel()

	shell := Page{StatusCode: 200}
	rendered := Page{StatusCode: 200, Body: []byte(`<div class="Article">x</div>`)}

	t.Run("promotes shells", func(t *testing.T) {
		t.Parallel()
		probe := &recordingFetcher{page: shell}
		browser := &recordingFetcher{page: rendered}
		var promoted []string
		f := Promote(probe, browser, nil)
		f.OnPromote = func(url string) { promoted = append(promoted, url) }

		page, err := f.Fetch(context.Background(), "https://laws.example/law/A")
		require.NoError(t, err)
		assert.Equal(t, rendered, page)
		assert.Equal(t, []string{"https://laws.example/law/A"}, promoted)
	})

	t.Run("keeps static pages", func(t *testing.T) {
		t.Parallel()
		probe := &recordingFetcher{page: Page{StatusCode: 200, Body: []byte(strings.Repeat("本文", 2000))}}
		browser := &recordingFetcher{}
		_, err := Promote(probe, browser, nil).Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Zero(t, browser.calls)
	})

	t.Run("returns probe errors", func(t *testing.T) {
		t.Parallel()
		probe := &recordingFetcher{err: &StatusError{URL: "u", StatusCode: 404}}
		browser := &recordingFetcher{page: rendered}
		_, err := Promote(probe, browser, nil).Fetch(context.Background(), "u")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Zero(t, browser.calls)
	})

	t.Run("no browser configured", func(t *testing.T) {
		t.Parallel()
		probe := &recordingFetcher{page: shell}
		page, err := Promote(probe, nil, nil).Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Equal(t, shell, page)
	})
}
