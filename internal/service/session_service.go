package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/bot"
	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/internal/repository"
	"github.com/freeeve/markov-rps/pkg/rps"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFinished = errors.New("session is finished")
	ErrInvalidOpponent = errors.New("opponent name must be at most 64 characters")
)

// finishedTTL is how long a finished session stays readable.
const finishedTTL = 10 * time.Minute

// AnonymousOpponent is recorded when a session is created without a name.
const AnonymousOpponent = "anonymous"

// SessionConfig tunes every session the service creates.
type SessionConfig struct {
	TTL       time.Duration // Redis expiry, refreshed on every round
	MaxRounds int           // session finishes automatically at this many rounds; 0 = unlimited
	Markov    bot.MarkovConfig
}

// SessionService runs play sessions between the Markov agent and a remote
// opponent. The agent's state is parked in the session store between
// rounds; finished sessions are persisted as matches.
type SessionService struct {
	store       repository.SessionStore
	matches     repository.MatchRepository
	broadcaster Broadcaster
	cfg         SessionConfig

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionService creates a SessionService.
func NewSessionService(
	store repository.SessionStore,
	matches repository.MatchRepository,
	broadcaster Broadcaster,
	cfg SessionConfig,
) *SessionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if cfg.Markov == (bot.MarkovConfig{}) {
		cfg.Markov = bot.DefaultMarkovConfig()
	}
	return &SessionService{
		store:       store,
		matches:     matches,
		broadcaster: broadcaster,
		cfg:         cfg,
		locks:       make(map[string]*sessionLock),
	}
}

// Create starts a new session with a fresh agent.
func (s *SessionService) Create(ctx context.Context, opponent string) (*model.Session, error) {
	opponent = strings.TrimSpace(opponent)
	if opponent == "" {
		opponent = AnonymousOpponent
	}
	if len(opponent) > 64 {
		return nil, ErrInvalidOpponent
	}

	agent, err := bot.NewMarkovAgent(s.cfg.Markov)
	if err != nil {
		return nil, err
	}
	snap, err := json.Marshal(agent.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal agent: %w", err)
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		Opponent:  opponent,
		Status:    model.SessionActive,
		MaxRounds: s.cfg.MaxRounds,
		Agent:     snap,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSession(ctx, sess, s.cfg.TTL); err != nil {
		return nil, err
	}
	log.Info().Str("sessionId", sess.ID).Str("opponent", opponent).Msg("Session created")
	return sess, nil
}

// Get returns an active or recently finished session.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Play runs one round: the agent commits to its move from the history so
// far, then the opponent's move is revealed and scored. Reaching MaxRounds
// finishes the session.
func (s *SessionService) Play(ctx context.Context, id string, opponentMove rps.Move) (*model.Round, error) {
	if err := opponentMove.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, ErrSessionFinished
	}

	agent, err := restoreAgent(sess.Agent)
	if err != nil {
		return nil, err
	}
	before := *sess
	agentMove, err := agent.NextMove(sess.AgentMoves, sess.OpponentMoves)
	if err != nil {
		return nil, fmt.Errorf("agent move: %w", err)
	}

	outcome := rps.Outcome(agentMove, opponentMove)
	switch outcome {
	case 1:
		sess.Wins++
	case -1:
		sess.Losses++
	default:
		sess.Ties++
	}
	sess.Score += outcome
	sess.PeakScore = max(sess.PeakScore, sess.Score)
	sess.AgentMoves = append(sess.AgentMoves, agentMove)
	sess.OpponentMoves = append(sess.OpponentMoves, opponentMove)
	sess.UpdatedAt = time.Now().UTC()

	snap, err := json.Marshal(agent.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal agent: %w", err)
	}
	sess.Agent = snap

	round := &model.Round{
		SessionID:    sess.ID,
		Number:       sess.RoundsPlayed(),
		AgentMove:    agentMove,
		OpponentMove: opponentMove,
		Outcome:      outcome,
		Score:        sess.Score,
		Reason:       string(agent.LastReason()),
	}

	if s.cfg.MaxRounds > 0 && sess.RoundsPlayed() >= s.cfg.MaxRounds {
		round.Finished = true
		match, err := s.finishLocked(ctx, sess, &before)
		if err != nil {
			return nil, err
		}
		s.broadcaster.BroadcastSessionEvent(sess.ID, EventRoundPlayed, round)
		s.broadcaster.BroadcastSessionEvent(sess.ID, EventSessionFinished, match)
		return round, nil
	}

	if err := s.store.SaveSession(ctx, sess, s.cfg.TTL); err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastSessionEvent(sess.ID, EventRoundPlayed, round)
	return round, nil
}

// Finish ends a session early, persisting its result.
func (s *SessionService) Finish(ctx context.Context, id string) (*model.Match, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, ErrSessionFinished
	}
	before := *sess
	match, err := s.finishLocked(ctx, sess, &before)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastSessionEvent(sess.ID, EventSessionFinished, match)
	return match, nil
}

// ListMatches returns recently completed matches.
func (s *SessionService) ListMatches(ctx context.Context, limit int) ([]model.Match, error) {
	return s.matches.ListRecent(ctx, limit)
}

// ActiveSessions reports how many sessions are live.
func (s *SessionService) ActiveSessions(ctx context.Context) (int64, error) {
	return s.store.ActiveSessionCount(ctx)
}

// finishLocked marks the session finished in the store, then persists the
// match. If the match cannot be saved the session is put back as restore,
// so a retry never writes a second match. The caller holds the session lock.
func (s *SessionService) finishLocked(ctx context.Context, sess, restore *model.Session) (*model.Match, error) {
	sess.Status = model.SessionFinished
	sess.UpdatedAt = time.Now().UTC()
	ttl := finishedTTL
	if s.cfg.TTL > 0 && s.cfg.TTL < ttl {
		ttl = s.cfg.TTL
	}
	if err := s.store.SaveSession(ctx, sess, ttl); err != nil {
		return nil, fmt.Errorf("mark session finished: %w", err)
	}

	match := &model.Match{
		Player:     bot.MarkovAgentName,
		Opponent:   sess.Opponent,
		Rounds:     sess.RoundsPlayed(),
		Wins:       sess.Wins,
		Losses:     sess.Losses,
		Ties:       sess.Ties,
		FinalScore: sess.Score,
		PeakScore:  sess.PeakScore,
		Source:     "session",
	}
	if err := s.matches.SaveMatch(ctx, match); err != nil {
		if rerr := s.store.SaveSession(ctx, restore, s.cfg.TTL); rerr != nil {
			log.Error().Err(rerr).Str("sessionId", sess.ID).Msg("Failed to reopen session after match save error")
		}
		return nil, fmt.Errorf("save match: %w", err)
	}

	log.Info().Str("sessionId", sess.ID).Str("matchId", match.ID).Int("rounds", match.Rounds).
		Int("score", match.FinalScore).Msg("Session finished")
	return match, nil
}

// lock serializes plays on one session and returns the unlock func.
func (s *SessionService) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func restoreAgent(data json.RawMessage) (*bot.MarkovAgent, error) {
	var snap bot.MarkovSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal agent: %w", err)
	}
	return bot.RestoreMarkovAgent(snap)
}
