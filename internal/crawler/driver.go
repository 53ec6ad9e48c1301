package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
	"github.com/JakeFAU/law-notes-crawler/internal/document"
	"github.com/JakeFAU/law-notes-crawler/internal/progress"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/render"
)

// Dependencies are the collaborators a Driver needs. Titles and Index are
// optional; every other field is required.
type Dependencies struct {
	Renderer   *render.Renderer
	Scraper    Scraper
	Titles     TitleLookup
	Notes      NoteStore
	Index      ExistingNoteIndex
	Registry   RegistryStore
	Unresolved UnresolvedLog
	Clock      Clock
	IDs        IDGenerator
	Emitter    progress.Emitter
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBackoffOptions passes options to every executor the driver builds.
// Tests use it to replace the real sleep.
func WithBackoffOptions(opts ...backoff.Option) Option {
	return func(d *Driver) {
		d.backoffOpts = append(d.backoffOpts, opts...)
	}
}

// Driver runs sequential BFS crawls. A Driver may run several crawls one
// after another but never two at once.
type Driver struct {
	cfg         Config
	deps        Dependencies
	logger      *zap.Logger
	backoffOpts []backoff.Option
}

// New validates cfg and deps and builds a Driver.
func New(cfg Config, deps Dependencies, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Renderer == nil:
		return nil, errors.New("crawler: renderer is required")
	case deps.Scraper == nil:
		return nil, errors.New("crawler: scraper is required")
	case deps.Notes == nil:
		return nil, errors.New("crawler: note store is required")
	case deps.Registry == nil:
		return nil, errors.New("crawler: registry store is required")
	case deps.Unresolved == nil:
		return nil, errors.New("crawler: unresolved log is required")
	case deps.Clock == nil:
		return nil, errors.New("crawler: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("crawler: id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	d := &Driver{cfg: cfg, deps: deps, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() Config {
	return d.cfg
}

// run is the state owned by a single Run call.
type run struct {
	id      uuid.UUID
	rootID  string
	reg     *registry.Registry
	rc      *render.RunContext
	queue   fifo
	visited map[string]struct{}
	summary Summary
}

// Run crawls from rootID. titleHint seeds the root's registry entry when the
// registry does not know it yet.
//
// A fetch that fails on every attempt aborts the run with a *FetchError.
// Notes and registry flushes written before the failure are kept, but the
// final registry save and log merge are skipped.
func (d *Driver) Run(ctx context.Context, rootID, titleHint string) (Summary, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return Summary{}, errors.New("crawler: root id is required")
	}
	runID, err := d.deps.IDs.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	started := d.deps.Clock.Now()

	reg, err := d.deps.Registry.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load registry: %w", err)
	}

	rootTitle := strings.TrimSpace(titleHint)
	if entry, ok := reg.Get(rootID); ok && !entry.IsFallbackFor(rootID) {
		rootTitle = entry.Title
	}
	r := &run{
		id:      runID,
		rootID:  rootID,
		reg:     reg,
		rc:      render.NewRunContext(rootID, rootTitle),
		visited: make(map[string]struct{}),
		summary: Summary{RunID: runID.String(), RootID: rootID},
	}
	logger := d.logger.With(zap.String("run_id", r.summary.RunID), zap.String("root_id", rootID))
	logger.Info("crawl started",
		zap.Int("max_depth", d.cfg.MaxDepth),
		zap.String("existing", string(d.cfg.Existing)),
		zap.Bool("auto_update", d.cfg.AutoUpdate),
	)
	d.emit(r, progress.Event{Stage: progress.StageRunStart})

	r.queue.push(QueueItem{ID: rootID, TitleHint: titleHint, Depth: 0})
	if err := d.drain(ctx, r, logger); err != nil {
		return d.abort(r, started, logger, err)
	}

	if err := d.deps.Registry.Save(ctx, r.reg); err != nil {
		return d.abort(r, started, logger, fmt.Errorf("save registry: %w", err))
	}
	r.reg.MarkClean()
	added, err := d.deps.Unresolved.Append(ctx, r.rc.Unresolved)
	if err != nil {
		return d.abort(r, started, logger, fmt.Errorf("append unresolved log: %w", err))
	}

	r.summary.Recorded = len(r.rc.Unresolved)
	r.summary.Unresolved = added
	r.summary.Registered = r.reg.Len()
	r.summary.Duration = d.deps.Clock.Now().Sub(started)
	d.emit(r, progress.Event{Stage: progress.StageRunDone, Unresolved: added, Dur: nonNegative(r.summary.Duration)})
	logger.Info("crawl finished",
		zap.Int("fetched", r.summary.Fetched),
		zap.Int("skipped", r.summary.Skipped),
		zap.Int("dropped", r.summary.Dropped),
		zap.Int("unresolved_added", added),
		zap.Duration("duration", r.summary.Duration),
	)
	return r.summary, nil
}

func (d *Driver) abort(r *run, started time.Time, logger *zap.Logger, err error) (Summary, error) {
	r.summary.Recorded = len(r.rc.Unresolved)
	r.summary.Registered = r.reg.Len()
	r.summary.Duration = d.deps.Clock.Now().Sub(started)
	d.emit(r, progress.Event{Stage: progress.StageRunError, Dur: nonNegative(r.summary.Duration), Note: err.Error()})
	logger.Error("crawl aborted", zap.Error(err))
	return r.summary, err
}

func (d *Driver) drain(ctx context.Context, r *run, logger *zap.Logger) error {
	for r.queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl interrupted: %w", err)
		}
		item, _ := r.queue.pop()
		if reason := d.dropReason(r, item); reason != nil {
			r.summary.Dropped++
			logger.Debug("queue item dropped",
				zap.String("law_id", item.ID),
				zap.Int("depth", item.Depth),
				zap.String("reason", reason.Error()),
			)
			d.emit(r, progress.Event{Stage: progress.StageDropped, LawID: item.ID, Depth: item.Depth, Note: reason.Error()})
			continue
		}
		r.visited[item.ID] = struct{}{}
		r.reg.EnsureFromHint(item.ID, item.TitleHint, d.deps.Clock.Now())

		if d.cfg.Existing == ExistingSkip {
			skipped, err := d.skipExisting(ctx, r, item, logger)
			if err != nil {
				return err
			}
			if skipped {
				continue
			}
		}
		if err := d.fetch(ctx, r, item, logger); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) dropReason(r *run, item QueueItem) error {
	if item.Depth > d.cfg.MaxDepth {
		return ErrDepthExceeded
	}
	if _, ok := r.visited[item.ID]; ok {
		return ErrAlreadyVisited
	}
	return nil
}

// skipExisting reuses a note already in storage. It reports false when no
// note exists and the item must be fetched.
func (d *Driver) skipExisting(ctx context.Context, r *run, item QueueItem, logger *zap.Logger) (bool, error) {
	entry, _ := r.reg.Get(item.ID)
	name, found, err := d.findExisting(ctx, item.ID, entry.FileName)
	if err != nil || !found {
		return false, err
	}
	text, err := d.deps.Notes.Read(ctx, name)
	if err != nil {
		return false, fmt.Errorf("read existing note for %s: %w", item.ID, err)
	}
	edges := render.ExtractEdges(text)
	for _, edge := range edges {
		r.queue.push(QueueItem{ID: edge, Depth: item.Depth + 1})
	}

	if name != entry.FileName {
		r.reg.Set(item.ID, reconcileEntry(item.ID, entry, name, d.deps.Clock.Now()))
		if err := d.flushRegistry(ctx, r); err != nil {
			return false, err
		}
	}
	if d.deps.Index != nil {
		d.deps.Index.Add(item.ID, name)
	}

	r.summary.Skipped++
	r.summary.Order = append(r.summary.Order, item.ID)
	logger.Info("existing note reused",
		zap.String("law_id", item.ID),
		zap.String("file_name", name),
		zap.Int("depth", item.Depth),
		zap.Int("edges", len(edges)),
	)
	d.emit(r, progress.Event{
		Stage:    progress.StageSkipped,
		LawID:    item.ID,
		FileName: name,
		Depth:    item.Depth,
		Edges:    len(edges),
	})
	return true, nil
}

// findExisting looks for a note under the registry file name first and then
// through the index.
func (d *Driver) findExisting(ctx context.Context, id, fileName string) (string, bool, error) {
	candidates := []string{fileName}
	if d.deps.Index != nil {
		for _, indexed := range d.deps.Index.Candidates(id) {
			if indexed != fileName {
				candidates = append(candidates, indexed)
			}
		}
	}
	for _, name := range candidates {
		if name == "" {
			continue
		}
		ok, err := d.deps.Notes.Exists(ctx, name)
		if err != nil {
			return "", false, fmt.Errorf("check existing note for %s: %w", id, err)
		}
		if ok {
			return name, true, nil
		}
	}
	return "", false, nil
}

// reconcileEntry points entry at the note actually found in storage. SafeTitle
// follows the found name. A placeholder title takes the name's prefix; a real
// title is kept.
func reconcileEntry(id string, entry registry.Entry, found string, now time.Time) registry.Entry {
	wasFallback := entry.IsFallbackFor(id)
	entry.FileName = found
	entry.UpdatedAt = now
	if found == registry.FallbackFileName(id) {
		entry.SafeTitle = registry.FallbackTitle(id)
		return entry
	}
	safe, ok := strings.CutSuffix(found, "_"+id+".md")
	if !ok || safe == "" {
		return entry
	}
	entry.SafeTitle = safe
	if wasFallback || entry.Title == "" {
		entry.Title = safe
	}
	return entry
}

func (d *Driver) fetch(ctx context.Context, r *run, item QueueItem, logger *zap.Logger) error {
	started := d.deps.Clock.Now()
	prev, _ := r.reg.Get(item.ID)

	exec, err := d.executor(r, item)
	if err != nil {
		return err
	}
	doc, err := backoff.Retry(ctx, exec, func(ctx context.Context) (document.Document, error) {
		return d.deps.Scraper.Scrape(ctx, item.ID)
	})
	if err != nil {
		return &FetchError{ID: item.ID, Attempts: exec.Attempts(), Err: err}
	}
	doc.ID = item.ID

	now := d.deps.Clock.Now()
	fresh := freshEntry(item.ID, doc.Title, prev, now)
	r.reg.Set(item.ID, fresh)
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = fresh.Title
	}
	if item.ID == r.rootID && !fresh.IsFallbackFor(item.ID) {
		r.rc.RootTitle = fresh.Title
	}

	d.registerReferences(ctx, r, doc, now, logger)

	result := d.deps.Renderer.Render(render.Input{
		Document: doc,
		Registry: r.reg,
		Run:      r.rc,
		Depth:    item.Depth,
		MaxDepth: d.cfg.MaxDepth,
		Now:      now,
	})
	if r.reg.Dirty() {
		if err := d.flushRegistry(ctx, r); err != nil {
			return err
		}
	}

	if err := d.deps.Notes.Write(ctx, fresh.FileName, result.Text); err != nil {
		return fmt.Errorf("write note for %s: %w", item.ID, err)
	}
	if err := d.removeStale(ctx, item.ID, fresh.FileName, prev.FileName, logger); err != nil {
		return err
	}

	for _, edge := range result.Edges {
		r.queue.push(QueueItem{ID: edge, Depth: item.Depth + 1})
	}

	r.summary.Fetched++
	r.summary.Order = append(r.summary.Order, item.ID)
	elapsed := d.deps.Clock.Now().Sub(started)
	logger.Info("note written",
		zap.String("law_id", item.ID),
		zap.String("file_name", fresh.FileName),
		zap.Int("depth", item.Depth),
		zap.Int("edges", len(result.Edges)),
		zap.Duration("dur", elapsed),
	)
	d.emit(r, progress.Event{
		Stage:    progress.StageFetched,
		LawID:    item.ID,
		FileName: fresh.FileName,
		Depth:    item.Depth,
		Edges:    len(result.Edges),
		Dur:      nonNegative(elapsed),
	})
	return nil
}

func (d *Driver) executor(r *run, item QueueItem) (*backoff.Executor, error) {
	opts := append([]backoff.Option(nil), d.backoffOpts...)
	opts = append(opts, backoff.WithNotify(func(attempt int, err error, wait time.Duration) {
		d.logger.Warn("scrape failed, retrying",
			zap.String("law_id", item.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		d.emit(r, progress.Event{Stage: progress.StageRetry, LawID: item.ID, Depth: item.Depth, Note: err.Error()})
	}))
	exec, err := backoff.New(d.cfg.Retries, d.cfg.BackoffUnit, opts...)
	if err != nil {
		return nil, fmt.Errorf("build backoff executor: %w", err)
	}
	return exec, nil
}

// freshEntry derives the entry for a scraped law. An empty scraped title
// keeps a previously resolved title rather than regressing to a placeholder.
func freshEntry(id, title string, prev registry.Entry, now time.Time) registry.Entry {
	title = strings.TrimSpace(title)
	switch {
	case title != "":
		return registry.NewEntry(id, title, now)
	case prev.FileName != "" && !prev.IsFallbackFor(id):
		return prev
	default:
		return registry.FallbackEntry(id, now)
	}
}

// titleResult is the outcome of a best-effort title lookup. A non-nil err is
// an explicit branch for the caller, never a reason to stop the run.
type titleResult struct {
	title string
	err   error
}

func (d *Driver) lookupTitle(ctx context.Context, id string) titleResult {
	exec, err := backoff.New(d.cfg.Retries, d.cfg.BackoffUnit, d.backoffOpts...)
	if err != nil {
		return titleResult{err: fmt.Errorf("%w: %s: %w", ErrTitleLookupFailed, id, err)}
	}
	title, err := backoff.Retry(ctx, exec, func(ctx context.Context) (string, error) {
		return d.deps.Titles.LookupTitle(ctx, id)
	})
	if err != nil {
		return titleResult{err: fmt.Errorf("%w: %s: %w", ErrTitleLookupFailed, id, err)}
	}
	return titleResult{title: strings.TrimSpace(title)}
}

// registerReferences gives every law referenced by doc a registry entry
// before rendering, so links point at real titles where they can be found.
func (d *Driver) registerReferences(ctx context.Context, r *run, doc document.Document, now time.Time, logger *zap.Logger) {
	for _, id := range d.deps.Renderer.ReferencedIDs(doc) {
		if _, ok := r.reg.Get(id); ok {
			continue
		}
		if !d.cfg.AutoUpdate || d.deps.Titles == nil {
			r.reg.EnsureFallback(id, now)
			continue
		}
		res := d.lookupTitle(ctx, id)
		switch {
		case res.err != nil:
			logger.Warn("title lookup failed, using placeholder", zap.String("law_id", id), zap.Error(res.err))
			r.reg.EnsureFallback(id, now)
		case res.title == "":
			logger.Debug("title not found, using placeholder", zap.String("law_id", id))
			r.reg.EnsureFallback(id, now)
		default:
			r.reg.Set(id, registry.NewEntry(id, res.title, now))
		}
	}
}

// removeStale deletes notes for id that the registry named before: the
// previous entry's file and an indexed placeholder note. Other files that
// happen to end in "_<id>.md" are left alone.
func (d *Driver) removeStale(ctx context.Context, id, current, previous string, logger *zap.Logger) error {
	stale := make([]string, 0, 2)
	if previous != "" && previous != current {
		stale = append(stale, previous)
	}
	placeholder := registry.FallbackFileName(id)
	if d.deps.Index != nil && placeholder != current && placeholder != previous &&
		slices.Contains(d.deps.Index.Candidates(id), placeholder) {
		stale = append(stale, placeholder)
	}
	for _, name := range stale {
		if err := d.deps.Notes.Remove(ctx, name); err != nil {
			return fmt.Errorf("remove stale note for %s: %w", id, err)
		}
		logger.Info("stale note removed", zap.String("law_id", id), zap.String("file_name", name))
	}
	if d.deps.Index != nil {
		d.deps.Index.Add(id, current)
	}
	return nil
}

func (d *Driver) flushRegistry(ctx context.Context, r *run) error {
	if err := d.deps.Registry.Save(ctx, r.reg); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	r.reg.MarkClean()
	return nil
}

func (d *Driver) emit(r *run, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(r.id)
	evt.RootID = r.rootID
	evt.TS = d.deps.Clock.Now()
	d.deps.Emitter.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
