package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/markov-rps/internal/model"
)

// MatchRepo handles match database operations.
type MatchRepo struct {
	db *sql.DB
}

// NewMatchRepo creates a MatchRepo.
func NewMatchRepo(db *sql.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// SaveMatch inserts a completed match. An empty ID is filled with a new
// UUID and CreatedAt is set from the database.
func (r *MatchRepo) SaveMatch(ctx context.Context, m *model.Match) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Source == "" {
		m.Source = "session"
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO matches (id, player, opponent, rounds, wins, losses, ties, final_score, peak_score, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		m.ID, m.Player, m.Opponent, m.Rounds, m.Wins, m.Losses, m.Ties, m.FinalScore, m.PeakScore, m.Source,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save match: %w", err)
	}
	return nil
}

// FindByID returns a match by ID, or nil if it does not exist.
func (r *MatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var m model.Match
	err := r.db.QueryRowContext(ctx,
		`SELECT id, player, opponent, rounds, wins, losses, ties, final_score, peak_score, source, created_at
		 FROM matches WHERE id = $1`, id,
	).Scan(&m.ID, &m.Player, &m.Opponent, &m.Rounds, &m.Wins, &m.Losses, &m.Ties, &m.FinalScore, &m.PeakScore, &m.Source, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	return &m, nil
}

// ListRecent returns the most recent matches, newest first.
func (r *MatchRepo) ListRecent(ctx context.Context, limit int) ([]model.Match, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, player, opponent, rounds, wins, losses, ties, final_score, peak_score, source, created_at
		 FROM matches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.ID, &m.Player, &m.Opponent, &m.Rounds, &m.Wins, &m.Losses, &m.Ties, &m.FinalScore, &m.PeakScore, &m.Source, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteOlderThan removes matches created before cutoff and returns how
// many were deleted.
func (r *MatchRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM matches WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old matches: %w", err)
	}
	return res.RowsAffected()
}
