package store

import (
	"context"

	"github.com/pritzvi/linked-out/internal/models"
)

// Recorder writes the live session into a Store as it progresses.
type Recorder struct {
	store Store
}

// NewRecorder wraps s for use by the job controller.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

func (r *Recorder) StartSession(ctx context.Context, rec *models.SessionRecord) error {
	return r.store.CreateSession(ctx, rec)
}

func (r *Recorder) RecordProfile(ctx context.Context, sessionID string, p models.ProfileRecord) error {
	return r.store.UpsertProfile(ctx, sessionID, p)
}

func (r *Recorder) FinishSession(ctx context.Context, rec *models.SessionRecord) error {
	return r.store.FinishSession(ctx, rec)
}
