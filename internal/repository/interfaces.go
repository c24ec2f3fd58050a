package repository

import (
	"context"
	"time"

	"github.com/freeeve/markov-rps/internal/model"
)

// SessionStore defines live session operations (Redis).
// GetSession returns nil, nil when the session does not exist or expired.
type SessionStore interface {
	SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ActiveSessionCount(ctx context.Context) (int64, error)
}

// MatchRepository defines completed match operations (Postgres).
type MatchRepository interface {
	SaveMatch(ctx context.Context, m *model.Match) error
	FindByID(ctx context.Context, id string) (*model.Match, error)
	ListRecent(ctx context.Context, limit int) ([]model.Match, error)
}
