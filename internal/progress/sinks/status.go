package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/law-notes-crawler/internal/progress"
)

// RunStatus is a point-in-time view of the most recent run.
type RunStatus struct {
	RunID      string     `json:"run_id,omitempty"`
	RootID     string     `json:"root_id,omitempty"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Fetched    int        `json:"fetched"`
	Skipped    int        `json:"skipped"`
	Dropped    int        `json:"dropped"`
	Retries    int        `json:"retries"`
	Unresolved int        `json:"unresolved"`
	LastLawID  string     `json:"last_law_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Run states reported by StatusSink.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// StatusSink folds events into a RunStatus snapshot.
type StatusSink struct {
	mu     sync.RWMutex
	status RunStatus
}

// NewStatusSink starts idle.
func NewStatusSink() *StatusSink {
	return &StatusSink{status: RunStatus{State: StateIdle}}
}

// Snapshot returns a copy of the current status.
func (s *StatusSink) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Consume applies batch to the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		runID := evt.RunUUID().String()
		if evt.Stage == progress.StageRunStart {
			ts := evt.TS
			s.status = RunStatus{RunID: runID, RootID: evt.RootID, State: StateRunning, StartedAt: &ts}
			continue
		}
		if runID != s.status.RunID {
			continue
		}
		switch evt.Stage {
		case progress.StageFetched:
			s.status.Fetched++
			s.status.LastLawID = evt.LawID
		case progress.StageSkipped:
			s.status.Skipped++
			s.status.LastLawID = evt.LawID
		case progress.StageDropped:
			s.status.Dropped++
		case progress.StageRetry:
			s.status.Retries++
		case progress.StageRunDone:
			ts := evt.TS
			s.status.State = StateSucceeded
			s.status.FinishedAt = &ts
			s.status.Unresolved = evt.Unresolved
		case progress.StageRunError:
			ts := evt.TS
			s.status.State = StateFailed
			s.status.FinishedAt = &ts
			s.status.Error = evt.Note
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
