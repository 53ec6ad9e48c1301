// Package notes persists rendered notes and indexes the ones already on disk.
package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/law-notes-crawler/internal/storage"
)

// Store reads and writes notes by file name.
type Store struct {
	objects storage.ObjectStore
}

// NewStore keeps notes in objects.
func NewStore(objects storage.ObjectStore) (*Store, error) {
	if objects == nil {
		return nil, errors.New("notes: object store is required")
	}
	return &Store{objects: objects}, nil
}

// Read returns the text of the note named fileName.
func (s *Store) Read(ctx context.Context, fileName string) (string, error) {
	data, err := s.objects.Get(ctx, fileName)
	if err != nil {
		return "", fmt.Errorf("read note %s: %w", fileName, err)
	}
	return string(data), nil
}

// Write stores text as the note named fileName, replacing any previous one.
func (s *Store) Write(ctx context.Context, fileName, text string) error {
	if err := s.objects.Put(ctx, fileName, storage.ContentTypeMarkdown, []byte(text)); err != nil {
		return fmt.Errorf("write note %s: %w", fileName, err)
	}
	return nil
}

// Remove deletes the note named fileName. Missing notes are ignored.
func (s *Store) Remove(ctx context.Context, fileName string) error {
	if err := s.objects.Delete(ctx, fileName); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove note %s: %w", fileName, err)
	}
	return nil
}

// Exists reports whether a note named fileName is stored.
func (s *Store) Exists(ctx context.Context, fileName string) (bool, error) {
	_, err := s.objects.Get(ctx, fileName)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("stat note %s: %w", fileName, err)
	}
}
