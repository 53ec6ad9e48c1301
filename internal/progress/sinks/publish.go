package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/progress"
)

// Publisher pushes a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoteEvent announces a note that was written or reused by a run.
type NoteEvent struct {
	RunID    string    `json:"run_id"`
	RootID   string    `json:"root_id"`
	LawID    string    `json:"law_id"`
	FileName string    `json:"file_name"`
	Depth    int       `json:"depth"`
	State    string    `json:"state"`
	At       time.Time `json:"at"`
}

// PublishSink publishes a NoteEvent for every fetched or skipped note.
type PublishSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink publishes to topic through publisher.
func NewPublishSink(publisher Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes the note events in batch. Every event is attempted; the
// failures are joined into the returned error.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		var state string
		switch evt.Stage {
		case progress.StageFetched:
			state = "fetched"
		case progress.StageSkipped:
			state = "skipped_existing"
		default:
			continue
		}
		payload := NoteEvent{
			RunID:    evt.RunUUID().String(),
			RootID:   evt.RootID,
			LawID:    evt.LawID,
			FileName: evt.FileName,
			Depth:    evt.Depth,
			State:    state,
			At:       evt.TS,
		}
		id, err := s.publisher.Publish(ctx, s.topic, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish note %s: %w", evt.LawID, err))
			continue
		}
		s.logger.Debug("published note event", zap.String("law_id", evt.LawID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements progress.Sink.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
