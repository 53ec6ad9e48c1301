package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
	"github.com/JakeFAU/law-notes-crawler/internal/clock"
	"github.com/JakeFAU/law-notes-crawler/internal/document"
	iduuid "github.com/JakeFAU/law-notes-crawler/internal/id/uuid"
	"github.com/JakeFAU/law-notes-crawler/internal/notes"
	"github.com/JakeFAU/law-notes-crawler/internal/progress"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/render"
	"github.com/JakeFAU/law-notes-crawler/internal/storage/memory"
	"github.com/JakeFAU/law-notes-crawler/internal/unresolved"
)

var (
	t0    = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	runID = uuid.MustParse("0190f3a0-0000-7000-8000-0000000000aa")
)

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, id string) (document.Document, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(document.Document), args.Error(1)
}

type mockTitles struct {
	mock.Mock
}

func (m *mockTitles) LookupTitle(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

// fixture wires a Driver to in-memory stores.
type fixture struct {
	scraper  *mockScraper
	titles   *mockTitles
	objects  *memory.BlobStore
	data     *memory.BlobStore
	notes    *notes.Store
	index    *notes.Index
	registry *registry.JSONStore
	log      *unresolved.Store
	emitter  *recordingEmitter
	waits    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		scraper: &mockScraper{},
		titles:  &mockTitles{},
		objects: memory.NewBlobStore(),
		data:    memory.NewBlobStore(),
		index:   notes.NewIndex(),
		emitter: &recordingEmitter{},
	}
	var err error
	f.notes, err = notes.NewStore(f.objects)
	require.NoError(t, err)
	f.registry, err = registry.NewJSONStore(f.data, "registry.json")
	require.NoError(t, err)
	f.log, err = unresolved.NewStore(f.data, "unresolved.json")
	require.NoError(t, err)
	return f
}

func (f *fixture) driver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	renderer, err := render.New("https://laws.e-gov.go.jp")
	require.NoError(t, err)
	d, err := New(cfg, Dependencies{
		Renderer:   renderer,
		Scraper:    f.scraper,
		Titles:     f.titles,
		Notes:      f.notes,
		Index:      f.index,
		Registry:   f.registry,
		Unresolved: f.log,
		Clock:      clock.NewFixed(t0),
		IDs:        iduuid.Static(runID),
		Emitter:    f.emitter,
	}, WithBackoffOptions(backoff.WithSleeper(func(_ context.Context, d time.Duration) error {
		f.waits = append(f.waits, d)
		return nil
	})))
	require.NoError(t, err)
	return d
}

func testConfig(maxDepth int) Config {
	return Config{MaxDepth: maxDepth, Retries: 3, Existing: ExistingOverwrite, BackoffUnit: time.Second}
}

// law builds a scraped document with one paragraph per linked ID.
func law(id, title string, links ...string) document.Document {
	paras := make([]document.Paragraph, 0, len(links)+1)
	paras = append(paras, document.Paragraph{Anchor: "P0", Segments: []document.Segment{document.Text(title + " body")}})
	for i, target := range links {
		paras = append(paras, document.Paragraph{
			Anchor:   "P" + string(rune('1'+i)),
			Segments: []document.Segment{document.Text("see "), document.Link("link "+target, "/law/"+target)},
		})
	}
	return document.Document{
		ID:        id,
		Title:     title,
		SourceURL: "https://laws.e-gov.go.jp/law/" + id,
		Blocks:    []document.Block{{ID: "Mp-At_1", Heading: "第一条", Paragraphs: paras}},
	}
}

func reasons(records []unresolved.Record, want unresolved.Reason) []string {
	var ids []string
	for _, rec := range records {
		if rec.Reason == want {
			ids = append(ids, rec.Href)
		}
	}
	return ids
}

// TestRunCrawlsBreadthFirst walks A -> {B, C}, B -> {C, D} with maxDepth 1.
func TestRunCrawlsBreadthFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "Doc A", "B", "C"), nil).Once()
	f.scraper.On("Scrape", mock.Anything, "B").Return(law("B", "Doc B", "C", "D"), nil).Once()
	f.scraper.On("Scrape", mock.Anything, "C").Return(law("C", "Doc C"), nil).Once()

	summary, err := f.driver(t, testConfig(1)).Run(ctx, "A", "")
	require.NoError(t, err)
	f.scraper.AssertExpectations(t)
	f.scraper.AssertNotCalled(t, "Scrape", mock.Anything, "D")

	assert.Equal(t, []string{"A", "B", "C"}, summary.Order)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, runID.String(), summary.RunID)
	assert.Equal(t, 4, summary.Registered)
	assert.Equal(t, summary.Recorded, summary.Unresolved)

	for _, name := range []string{"Doc A_A.md", "Doc B_B.md", "Doc C_C.md"} {
		ok, err := f.notes.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	text, err := f.notes.Read(ctx, "Doc A_A.md")
	require.NoError(t, err)
	assert.Contains(t, text, "[[law_B.md|link B]]")

	reg, err := f.registry.Load(ctx)
	require.NoError(t, err)
	entry, ok := reg.Get("B")
	require.True(t, ok)
	assert.Equal(t, "Doc B_B.md", entry.FileName)
	assert.True(t, reg.IsFallback("D"))

	records, err := f.log.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/law/C", "/law/D"}, reasons(records, unresolved.ReasonDepthLimit))
	for _, rec := range records {
		assert.Equal(t, "A", rec.RootID)
		assert.Equal(t, "Doc A", rec.RootTitle)
	}

	assert.Equal(t, progress.StageRunStart, f.emitter.stages()[0])
	assert.Equal(t, progress.StageRunDone, f.emitter.stages()[len(f.emitter.stages())-1])
}

// TestRunDropsVisitedAndDeepItems covers a cycle and the depth budget.
func TestRunDropsVisitedAndDeepItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "Doc A", "B"), nil).Once()
	f.scraper.On("Scrape", mock.Anything, "B").Return(law("B", "Doc B", "A"), nil).Once()

	summary, err := f.driver(t, testConfig(5)).Run(context.Background(), "A", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, summary.Order)
	assert.Equal(t, 1, summary.Dropped, "the edge back to A is dropped as visited")
	f.scraper.AssertExpectations(t)
}

// TestRunSkipExistingFollowsRecordedEdges reuses a stored note for A and
// enqueues its links without fetching A.
func TestRunSkipExistingFollowsRecordedEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	seed := registry.New()
	seed.Set("A", registry.NewEntry("A", "Doc A", t0))
	require.NoError(t, f.registry.Save(ctx, seed))
	require.NoError(t, f.notes.Write(ctx, "Doc A_A.md", "# Doc A\n\n[[law_B.md|B]] and [[Doc C_C.md#P2|C]]\n"))

	f.scraper.On("Scrape", mock.Anything, "B").Return(law("B", "Doc B"), nil).Once()
	f.scraper.On("Scrape", mock.Anything, "C").Return(law("C", "Doc C"), nil).Once()

	cfg := testConfig(1)
	cfg.Existing = ExistingSkip
	summary, err := f.driver(t, cfg).Run(ctx, "A", "")
	require.NoError(t, err)

	f.scraper.AssertNotCalled(t, "Scrape", mock.Anything, "A")
	f.scraper.AssertExpectations(t)
	assert.Equal(t, []string{"A", "B", "C"}, summary.Order)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Fetched)
	assert.Contains(t, f.emitter.stages(), progress.StageSkipped)
}

// TestRunSkipExistingFindsNoteThroughIndex reconciles the registry with a
// note stored under a name the registry did not know.
func TestRunSkipExistingFindsNoteThroughIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.notes.Write(ctx, "旧名_A.md", "[[law_B.md|B]]"))
	f.index.Add("A", "旧名_A.md")

	cfg := testConfig(0)
	cfg.Existing = ExistingSkip
	summary, err := f.driver(t, cfg).Run(ctx, "A", "")
	require.NoError(t, err)

	f.scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Dropped, "B is beyond maxDepth 0")

	reg, err := f.registry.Load(ctx)
	require.NoError(t, err)
	entry, ok := reg.Get("A")
	require.True(t, ok)
	assert.Equal(t, "旧名_A.md", entry.FileName)
	assert.Equal(t, "旧名", entry.Title)
}

// TestRunAbortsWhenFetchExhausted checks the attempt budget, the error
// taxonomy, and that the final save and merge are skipped.
func TestRunAbortsWhenFetchExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(document.Document{}, errors.New("502 bad gateway"))

	_, err := f.driver(t, testConfig(1)).Run(ctx, "A", "民法")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrFetchExhausted)
	require.ErrorIs(t, err, backoff.ErrExhausted)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "A", fetchErr.ID)
	assert.Equal(t, 3, fetchErr.Attempts)

	f.scraper.AssertNumberOfCalls(t, "Scrape", 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.waits)

	keys, err := f.data.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "nothing is persisted for an aborted run")
	assert.Contains(t, f.emitter.stages(), progress.StageRetry)
	assert.Equal(t, progress.StageRunError, f.emitter.stages()[len(f.emitter.stages())-1])
}

// TestRunRetriesTransientFetchFailures succeeds on the third attempt.
func TestRunRetriesTransientFetchFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(document.Document{}, errors.New("timeout")).Twice()
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "Doc A"), nil).Once()

	summary, err := f.driver(t, testConfig(0)).Run(context.Background(), "A", "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.waits)
}

// TestRunAutoUpdateResolvesTitles resolves B and falls back for C when its
// lookup fails.
func TestRunAutoUpdateResolvesTitles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "Doc A", "B", "C"), nil).Once()
	f.titles.On("LookupTitle", mock.Anything, "B").Return("商法", nil).Once()
	f.titles.On("LookupTitle", mock.Anything, "C").Return("", errors.New("api down"))

	cfg := testConfig(0)
	cfg.AutoUpdate = true
	_, err := f.driver(t, cfg).Run(ctx, "A", "")
	require.NoError(t, err)

	f.titles.AssertNumberOfCalls(t, "LookupTitle", 1+cfg.Retries)
	text, err := f.notes.Read(ctx, "Doc A_A.md")
	require.NoError(t, err)
	assert.Contains(t, text, "[[商法_B.md|link B]]")
	assert.Contains(t, text, "[[law_C.md|link C]]")

	records, err := f.log.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/law/C"}, reasons(records, unresolved.ReasonTargetNotBuilt))
}

// TestRunRemovesStaleNote renames a placeholder note once the title is known.
func TestRunRemovesStaleNote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	seed := registry.New()
	seed.EnsureFallback("A", t0)
	require.NoError(t, f.registry.Save(ctx, seed))
	require.NoError(t, f.notes.Write(ctx, "law_A.md", "old"))
	require.NoError(t, f.notes.Write(ctx, "別名_A.md", "older"))
	f.index.Add("A", "別名_A.md")

	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "民法"), nil).Once()

	_, err := f.driver(t, testConfig(0)).Run(ctx, "A", "")
	require.NoError(t, err)

	for name, want := range map[string]bool{"law_A.md": false, "別名_A.md": true, "民法_A.md": true} {
		ok, err := f.notes.Exists(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, ok, name)
	}
	name, ok := f.index.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "民法_A.md", name)
}

// TestRunKeepsResolvedTitleWhenScrapeHasNone guards against regressing a
// known title to a placeholder.
func TestRunKeepsResolvedTitleWhenScrapeHasNone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", ""), nil).Once()

	_, err := f.driver(t, testConfig(0)).Run(ctx, "A", "民法")
	require.NoError(t, err)

	ok, err := f.notes.Exists(ctx, "民法_A.md")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestRunTwiceAddsNoDuplicateRecords checks the log merge is idempotent
// across runs.
func TestRunTwiceAddsNoDuplicateRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "Doc A", "B"), nil)
	d := f.driver(t, testConfig(0))

	first, err := d.Run(context.Background(), "A", "")
	require.NoError(t, err)
	assert.Positive(t, first.Unresolved)

	second, err := d.Run(context.Background(), "A", "")
	require.NoError(t, err)
	assert.Equal(t, first.Recorded, second.Recorded)
	assert.Zero(t, second.Unresolved)
}

func TestRunHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.driver(t, testConfig(1)).Run(ctx, "A", "")
	require.ErrorIs(t, err, context.Canceled)
	f.scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	renderer, err := render.New("")
	require.NoError(t, err)
	_, err = New(testConfig(1), Dependencies{Renderer: renderer})
	require.Error(t, err)

	bad := testConfig(1)
	bad.Retries = 0
	_, err = New(bad, Dependencies{})
	require.EqualError(t, err, "crawl.retries must be >= 1")
}

func TestRunRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := newFixture(t).driver(t, testConfig(1)).Run(context.Background(), "  ", "")
	require.Error(t, err)
}

// TestRunKeepsNotesTheRegistryDidNotName leaves hand-written "*_<id>.md"
// files alone while replacing the placeholder note.
func TestRunKeepsNotesTheRegistryDidNotName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	for _, name := range []string{"summary_A.md", "law_A.md"} {
		require.NoError(t, f.notes.Write(ctx, name, "old"))
	}
	idx, err := notes.BuildIndex(ctx, f.objects)
	require.NoError(t, err)
	f.index = idx

	f.scraper.On("Scrape", mock.Anything, "A").Return(law("A", "民法"), nil).Once()

	_, err = f.driver(t, testConfig(0)).Run(ctx, "A", "民法")
	require.NoError(t, err)

	for name, want := range map[string]bool{"summary_A.md": true, "law_A.md": false, "民法_A.md": true} {
		ok, err := f.notes.Exists(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, ok, name)
	}
	assert.Equal(t, []string{"民法_A.md"}, f.index.Candidates("A"))
}

// TestRunSkipExistingKeepsRealTitle reconciles a titled entry with a note
// found under another name without breaking the naming rule.
func TestRunSkipExistingKeepsRealTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		found string
		safe  string
	}{
		{"renamed note", "旧名_A.md", "旧名"},
		{"placeholder note", "law_A.md", "law_A"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			f := newFixture(t)
			seed := registry.New()
			seed.Set("A", registry.NewEntry("A", "民法", t0))
			require.NoError(t, f.registry.Save(ctx, seed))
			require.NoError(t, f.notes.Write(ctx, tc.found, "body"))
			f.index.Add("A", tc.found)

			cfg := testConfig(0)
			cfg.Existing = ExistingSkip
			summary, err := f.driver(t, cfg).Run(ctx, "A", "")
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Skipped)

			reg, err := f.registry.Load(ctx)
			require.NoError(t, err)
			entry, ok := reg.Get("A")
			require.True(t, ok)
			assert.Equal(t, "民法", entry.Title)
			assert.Equal(t, tc.safe, entry.SafeTitle)
			assert.Equal(t, tc.found, entry.FileName)
			assert.False(t, entry.IsFallbackFor("A"))
			if tc.found != registry.FallbackFileName("A") {
				assert.Equal(t, registry.FileName(entry.SafeTitle, "A"), entry.FileName)
			}
		})
	}
}
