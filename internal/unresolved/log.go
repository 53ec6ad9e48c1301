package unresolved

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/law-notes-crawler/internal/storage"
)

// Merge appends the incoming records whose identity is not already present in
// existing (or earlier in incoming). It returns the combined slice and how
// many records were added. existing is never modified.
func Merge(existing, incoming []Record) ([]Record, int) {
	seen := make(Seen, len(existing)+len(incoming))
	out := make([]Record, 0, len(existing)+len(incoming))
	for _, rec := range existing {
		seen.Add(rec)
		out = append(out, rec)
	}
	added := 0
	for _, rec := range incoming {
		if seen.Add(rec) {
			out = append(out, rec)
			added++
		}
	}
	return out, added
}

// Store persists the log as a JSON array.
type Store struct {
	objects storage.ObjectStore
	key     string
}

// NewStore keeps the log under key in objects.
func NewStore(objects storage.ObjectStore, key string) (*Store, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("unresolved log key is required")
	}
	return &Store{objects: objects, key: key}, nil
}

// Load returns the persisted records; a missing log is empty.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	data, err := s.objects.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load unresolved log: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode unresolved log %s: %w", s.key, err)
	}
	return records, nil
}

// Save overwrites the log with records.
func (s *Store) Save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode unresolved log: %w", err)
	}
	if err := s.objects.Put(ctx, s.key, storage.ContentTypeJSON, append(data, '\n')); err != nil {
		return fmt.Errorf("save unresolved log: %w", err)
	}
	return nil
}

// Append merges records into the persisted log and returns how many were new.
func (s *Store) Append(ctx context.Context, records []Record) (int, error) {
	existing, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	merged, added := Merge(existing, records)
	if err := s.Save(ctx, merged); err != nil {
		return 0, err
	}
	return added, nil
}
