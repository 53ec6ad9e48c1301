package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/config"
	"github.com/JakeFAU/law-notes-crawler/internal/crawler"
	"github.com/JakeFAU/law-notes-crawler/internal/egov"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/storage/memory"
)

type fakeApp struct {
	cfg      config.Config
	api      *egov.Client
	registry registry.Store

	crawled []string
	hints   []string
	crawlFn func(rootID string) (crawler.Summary, error)
	closed  int
}

func (f *fakeApp) Crawl(_ context.Context, rootID, titleHint string) (crawler.Summary, error) {
	f.crawled = append(f.crawled, rootID)
	f.hints = append(f.hints, titleHint)
	if f.crawlFn != nil {
		return f.crawlFn(rootID)
	}
	return crawler.Summary{RunID: "run-1", RootID: rootID, Order: []string{rootID}, Fetched: 1}, nil
}

func (f *fakeApp) API() *egov.Client        { return f.api }
func (f *fakeApp) Registry() registry.Store { return f.registry }
func (f *fakeApp) Logger() *zap.Logger      { return zap.NewNop() }
func (f *fakeApp) Close(context.Context) error {
	f.closed++
	return nil
}

// withFakeApp swaps the app factory for the duration of the test. Tests
// using it share the global viper and cannot run in parallel.
func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	viper.Reset()
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		newApp = prev
		viper.Reset()
	})
}

func newTestRegistry(t *testing.T) registry.Store {
	t.Helper()
	store, err := registry.NewJSONStore(memory.NewBlobStore(), "law_registry.json")
	require.NoError(t, err)
	return store
}

func newTestAPI(t *testing.T, handler http.HandlerFunc) *egov.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := egov.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RetryUnit = time.Millisecond
	client, err := egov.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestCrawlCommandBindsFlags(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute(t, "crawl", "129AC0000000089", "--title", "民法", "--depth", "3", "--existing", "overwrite", "--mode", "api")
	require.NoError(t, err)

	assert.Equal(t, []string{"129AC0000000089"}, fake.crawled)
	assert.Equal(t, []string{"民法"}, fake.hints)
	assert.Equal(t, 3, fake.cfg.Crawl.MaxDepth)
	assert.Equal(t, "overwrite", fake.cfg.Crawl.Existing)
	assert.Equal(t, config.ScraperAPI, fake.cfg.Scraper.Mode)
	assert.Equal(t, 1, fake.closed)
	assert.Contains(t, out, "## Crawl 129AC0000000089")
	assert.Contains(t, out, "| Fetched")
}

func TestCrawlCommandClosesAppOnFailure(t *testing.T) {
	fake := &fakeApp{crawlFn: func(string) (crawler.Summary, error) {
		return crawler.Summary{}, errors.New("boom")
	}}
	withFakeApp(t, fake)

	_, err := execute(t, "crawl", "A")
	require.ErrorContains(t, err, "crawl A: boom")
	assert.Equal(t, 1, fake.closed)
}

func TestCrawlCommandRequiresID(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := execute(t, "crawl")
	require.Error(t, err)
	assert.Empty(t, fake.crawled)
}

func TestCrawlCommandRejectsInvalidConfig(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := execute(t, "crawl", "A", "--depth=-1")
	require.ErrorContains(t, err, "crawl.max_depth")
	assert.Empty(t, fake.crawled)
	assert.Zero(t, fake.closed, "no app is built for an invalid config")
}

func TestSearchCommand(t *testing.T) {
	fake := &fakeApp{api: newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "民法", r.URL.Query().Get("law_title"))
		_, _ = fmt.Fprint(w, `{"laws": [{"law_info": {"law_id": "129AC0000000089", "law_num": "明治二十九年法律第八十九号", "promulgation_date": "1896-04-27"}, "revision_info": {"law_title": "民法"}}]}`)
	})}
	withFakeApp(t, fake)

	out, err := execute(t, "search", "民法")
	require.NoError(t, err)
	assert.Contains(t, out, "| Law ID")
	assert.Contains(t, out, "129AC0000000089")
	assert.Contains(t, out, "明治二十九年法律第八十九号")

	out, err = execute(t, "search", "民法", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"law_id": "129AC0000000089"`)
}

func TestSearchCommandNoMatches(t *testing.T) {
	fake := &fakeApp{api: newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"laws": []}`)
	})}
	withFakeApp(t, fake)

	out, err := execute(t, "search", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, `no laws match "nothing"`)
}

func TestRegistryRefreshAndGet(t *testing.T) {
	fake := &fakeApp{
		registry: newTestRegistry(t),
		api: newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("offset") != "0" {
				_, _ = fmt.Fprint(w, `{"laws": []}`)
				return
			}
			_, _ = fmt.Fprint(w, `{"laws": [{"law_info": {"law_id": "B"}, "revision_info": {"law_title": "商法"}}]}`)
		}),
	}
	withFakeApp(t, fake)

	out, err := execute(t, "registry", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "1 laws seen, 1 entries updated")

	out, err = execute(t, "registry", "get", "B")
	require.NoError(t, err)
	assert.Contains(t, out, `"fallback": false`)
	assert.Contains(t, out, "商法_B.md")

	_, err = execute(t, "registry", "get", "missing")
	require.ErrorContains(t, err, "missing is not registered")
}
