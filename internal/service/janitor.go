package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/repository"
)

// MatchPruner deletes old match history.
type MatchPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically prunes the active-session index and, when a
// retention is set, deletes matches older than it.
type Janitor struct {
	store     repository.SessionStore
	pruner    MatchPruner
	retention time.Duration
	interval  time.Duration
}

// NewJanitor creates a Janitor. A zero retention keeps matches forever.
func NewJanitor(store repository.SessionStore, pruner MatchPruner, retention time.Duration) *Janitor {
	return &Janitor{store: store, pruner: pruner, retention: retention, interval: time.Minute}
}

// Start runs sweeps until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("Janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	active, err := j.store.ActiveSessionCount(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count active sessions")
	} else {
		log.Debug().Int64("active", active).Msg("Active sessions")
	}

	if j.retention <= 0 || j.pruner == nil {
		return
	}
	n, err := j.pruner.DeleteOlderThan(ctx, time.Now().Add(-j.retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune old matches")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Pruned old matches")
	}
}
