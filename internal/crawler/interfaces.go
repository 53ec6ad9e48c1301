package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/law-notes-crawler/internal/document"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	"github.com/JakeFAU/law-notes-crawler/internal/unresolved"
)

// Scraper fetches and parses one law.
type Scraper interface {
	Scrape(ctx context.Context, id string) (document.Document, error)
}

// TitleLookup resolves the real title of a law. An unknown ID yields an
// empty title and a nil error.
type TitleLookup interface {
	LookupTitle(ctx context.Context, id string) (string, error)
}

// NoteStore persists rendered notes by file name.
type NoteStore interface {
	Read(ctx context.Context, fileName string) (string, error)
	Write(ctx context.Context, fileName, text string) error
	Remove(ctx context.Context, fileName string) error
	Exists(ctx context.Context, fileName string) (bool, error)
}

// ExistingNoteIndex maps law IDs to the note files already present in storage.
type ExistingNoteIndex interface {
	Candidates(id string) []string
	Add(id, fileName string)
	Remove(id string)
}

// RegistryStore loads and saves the registry.
type RegistryStore interface {
	Load(ctx context.Context) (*registry.Registry, error)
	Save(ctx context.Context, reg *registry.Registry) error
}

// UnresolvedLog merge-appends records into the durable log and reports how
// many were new.
type UnresolvedLog interface {
	Append(ctx context.Context, records []unresolved.Record) (int, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
