package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
	// StageFetched marks a note rendered from a fresh scrape.
	StageFetched Stage = "NOTE_FETCHED"
	// StageSkipped marks a note reused from storage in skip-existing mode.
	StageSkipped Stage = "NOTE_SKIPPED"
	// StageDropped marks a queue item discarded as visited or too deep.
	StageDropped Stage = "ITEM_DROPPED"
	// StageRetry marks a failed scrape attempt that will be retried.
	StageRetry Stage = "FETCH_RETRY"
)

// IsNote reports whether the stage describes a single law.
func (s Stage) IsNote() bool {
	switch s {
	case StageFetched, StageSkipped, StageDropped, StageRetry:
		return true
	}
	return false
}

// Event is one crawl milestone.
type Event struct {
	// RunID identifies the crawl run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC time the driver recorded the event.
	TS    time.Time
	Stage Stage
	// RootID is the law the run started from.
	RootID string
	// LawID, FileName and Depth describe the law for note stages.
	LawID    string
	FileName string
	Depth    int
	// Edges counts the cross-document targets enqueued from this note.
	Edges int
	// Unresolved counts the records added to the log; set on RUN_DONE.
	Unresolved int
	Dur        time.Duration
	// Note carries short free text such as an error message.
	Note string
}

// Validate performs coarse checks on an Event.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetched, StageSkipped, StageDropped, StageRetry:
		if e.LawID == "" {
			return fmt.Errorf("%s requires law id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Depth < 0 {
		return errors.New("depth must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns the run ID as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes id into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
