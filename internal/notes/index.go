package notes

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/storage"
)

// Index maps law IDs to the note files already present in the output
// location. An ID can have several candidates when a law was renamed between
// runs. The index is built once and kept current as notes are written.
type Index struct {
	mu    sync.RWMutex
	files map[string][]string
}

// BuildIndex lists every note in objects and indexes it by the ID encoded in
// its file name. Files that do not follow the naming scheme are skipped.
func BuildIndex(ctx context.Context, objects storage.ObjectStore) (*Index, error) {
	keys, err := objects.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	idx := NewIndex()
	for _, key := range keys {
		if strings.Contains(key, "/") || path.Ext(key) != ".md" {
			continue
		}
		if id, ok := registry.IDFromFileName(key); ok {
			idx.files[id] = append(idx.files[id], key)
		}
	}
	for _, names := range idx.files {
		slices.Sort(names)
	}
	return idx, nil
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{files: make(map[string][]string)}
}

// Lookup returns the first candidate note for id in name order.
func (i *Index) Lookup(id string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := i.files[id]
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// Candidates returns every note file indexed for id.
func (i *Index) Candidates(id string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.files[id])
}

// Add records fileName as the only note for id.
func (i *Index) Add(id, fileName string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.files[id] = []string{fileName}
}

// Remove forgets the note for id.
func (i *Index) Remove(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.files, id)
}

// Len returns the number of indexed notes.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.files)
}
