package store

import (
	"context"

	"github.com/pritzvi/linked-out/internal/models"
)

// Store defines the persistence interface for session history.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.SessionRecord) error
	FinishSession(ctx context.Context, s *models.SessionRecord) error
	GetSession(ctx context.Context, id string) (*models.SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]*models.SessionRecord, error)

	// Profiles
	UpsertProfile(ctx context.Context, sessionID string, p models.ProfileRecord) error
	ListProfiles(ctx context.Context, sessionID string) ([]models.ProfileRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
