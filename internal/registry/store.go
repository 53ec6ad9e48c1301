package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/law-notes-crawler/internal/storage"
)

// Store loads and persists a Registry.
type Store interface {
	Load(ctx context.Context) (*Registry, error)
	Save(ctx context.Context, reg *Registry) error
}

// JSONStore persists the registry as one JSON object keyed by law ID.
type JSONStore struct {
	objects storage.ObjectStore
	key     string
}

// NewJSONStore stores the registry under key in objects.
func NewJSONStore(objects storage.ObjectStore, key string) (*JSONStore, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("registry key is required")
	}
	return &JSONStore{objects: objects, key: key}, nil
}

// Load reads the registry. A missing object yields an empty registry.
func (s *JSONStore) Load(ctx context.Context) (*Registry, error) {
	data, err := s.objects.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return New(), nil
		}
		return nil, fmt.Errorf("load registry: %w", err)
	}
	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.key, err)
	}
	return FromEntries(entries), nil
}

// Save writes the full registry. Map keys are emitted sorted, so output is stable.
func (s *JSONStore) Save(ctx context.Context, reg *Registry) error {
	data, err := json.MarshalIndent(reg.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := s.objects.Put(ctx, s.key, storage.ContentTypeJSON, append(data, '\n')); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}
