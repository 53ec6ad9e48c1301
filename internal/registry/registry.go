// Package registry maintains the mapping from law IDs to titles and note file
// names. The registry is the single source of truth for link targets.
package registry

import (
	"sort"
	"time"
)

// Registry is an in-memory, single-writer view of the persisted registry.
// It is not safe for concurrent use; the crawl driver owns it for a run.
type Registry struct {
	entries map[string]Entry
	dirty   bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// FromEntries builds a clean registry from persisted entries.
func FromEntries(entries map[string]Entry) *Registry {
	r := New()
	for id, entry := range entries {
		r.entries[id] = entry
	}
	return r
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	entry, ok := r.entries[id]
	return entry, ok
}

// Set stores entry under id when it differs from the current one in anything
// but UpdatedAt. It reports whether a write happened.
func (r *Registry) Set(id string, entry Entry) bool {
	if current, ok := r.entries[id]; ok && current.sameContent(entry) {
		return false
	}
	r.entries[id] = entry
	r.dirty = true
	return true
}

// EnsureFallback returns the entry for id, creating a fallback entry when none
// exists. created reports whether the registry changed.
func (r *Registry) EnsureFallback(id string, now time.Time) (entry Entry, created bool) {
	if current, ok := r.entries[id]; ok {
		return current, false
	}
	entry = FallbackEntry(id, now)
	r.Set(id, entry)
	return entry, true
}

// EnsureFromHint returns the entry for id, creating one from titleHint when
// none exists. An empty hint yields a fallback entry.
func (r *Registry) EnsureFromHint(id, titleHint string, now time.Time) (entry Entry, created bool) {
	if current, ok := r.entries[id]; ok {
		return current, false
	}
	if titleHint == "" {
		return r.EnsureFallback(id, now)
	}
	entry = NewEntry(id, titleHint, now)
	r.Set(id, entry)
	return entry, true
}

// IsFallback reports whether id is registered only by its placeholder entry.
func (r *Registry) IsFallback(id string) bool {
	entry, ok := r.entries[id]
	return ok && entry.IsFallbackFor(id)
}

// Dirty reports whether the registry changed since it was loaded or last saved.
func (r *Registry) Dirty() bool {
	return r.dirty
}

// MarkClean resets the dirty flag after a successful save.
func (r *Registry) MarkClean() {
	r.dirty = false
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// IDs returns all registered IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns a copy of all entries.
func (r *Registry) Entries() map[string]Entry {
	out := make(map[string]Entry, len(r.entries))
	for id, entry := range r.entries {
		out[id] = entry
	}
	return out
}
