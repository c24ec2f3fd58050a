package bot

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// MarkovAgentName is the display name the Markov agent registers under in
// tournaments.
const MarkovAgentName = "Rock"

// ErrEmptyHistory is returned when an operation needs at least one observed
// move and none is available.
var ErrEmptyHistory = errors.New("empty move history")

// MarkovConfig holds the tuning knobs of the Markov agent.
type MarkovConfig struct {
	// Decay in [0,1] selects the most recent (1-Decay) fraction of the
	// opponent's history for the frequency histogram.
	Decay float64 `json:"decay"`
	// Influence >= 0 weights the existing matrix against the new histogram.
	Influence float64 `json:"influence"`
	// StreakResetThreshold is negative: the matrix is discarded when the
	// losing streak reaches it.
	StreakResetThreshold int `json:"streak_reset_threshold"`
	// RepeatResetThreshold is how many identical own moves ending in a loss
	// discard the matrix.
	RepeatResetThreshold int `json:"repeat_reset_threshold"`
	WarmupTurns          int `json:"warmup_turns"`
	LeadThreshold        int `json:"lead_threshold"`
}

// DefaultMarkovConfig returns the tuned defaults.
func DefaultMarkovConfig() MarkovConfig {
	return MarkovConfig{
		Decay:                0.8,
		Influence:            2,
		StreakResetThreshold: -3,
		RepeatResetThreshold: 5,
		WarmupTurns:          20,
		LeadThreshold:        30,
	}
}

// Validate checks every knob is inside its documented range.
func (c MarkovConfig) Validate() error {
	switch {
	case math.IsNaN(c.Decay) || c.Decay < 0 || c.Decay > 1:
		return fmt.Errorf("decay %v outside [0,1]", c.Decay)
	case math.IsNaN(c.Influence) || math.IsInf(c.Influence, 0) || c.Influence < 0:
		return fmt.Errorf("influence %v must be finite and >= 0", c.Influence)
	case c.StreakResetThreshold >= 0:
		return fmt.Errorf("streak reset threshold %d must be negative", c.StreakResetThreshold)
	case c.RepeatResetThreshold < 1:
		return fmt.Errorf("repeat reset threshold %d must be >= 1", c.RepeatResetThreshold)
	case c.WarmupTurns < 0:
		return fmt.Errorf("warmup turns %d must be >= 0", c.WarmupTurns)
	case c.LeadThreshold < 1:
		return fmt.Errorf("lead threshold %d must be >= 1", c.LeadThreshold)
	}
	return nil
}

// DecisionReason records why ChooseMove picked its last move.
type DecisionReason string

const (
	ReasonNone   DecisionReason = ""
	ReasonWarmup DecisionReason = "warmup"
	ReasonLead   DecisionReason = "lead"
	ReasonReset  DecisionReason = "reset"
	ReasonModel  DecisionReason = "model"
)

// MarkovAgent predicts the opponent's next move from a transition matrix
// that is learned online, and plays the counter. It falls back to uniform
// random play during warm-up, right after the model is discarded, and when
// it has banked a large lead but just lost a round.
//
// A MarkovAgent is not safe for concurrent use.
type MarkovAgent struct {
	cfg MarkovConfig
	rng *rand.Rand

	matrix   TransitionMatrix
	ownMoves []rps.Move
	oppMoves []rps.Move

	score         int
	losingStreak  int
	lastOutcome   int
	resetPending  bool
	leadAnnounced bool
	lastReason    DecisionReason
}

// NewMarkovAgent creates an agent with a uniform matrix and zeroed counters.
func NewMarkovAgent(cfg MarkovConfig) (*MarkovAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("markov config: %w", err)
	}
	a := &MarkovAgent{cfg: cfg}
	a.Reset()
	return a, nil
}

// UseRand makes the agent draw its random moves from r instead of the
// package-level bot source. Passing nil restores the default.
func (a *MarkovAgent) UseRand(r *rand.Rand) {
	a.rng = r
}

func (a *MarkovAgent) Name() string { return MarkovAgentName }

// Config returns the agent's tuning.
func (a *MarkovAgent) Config() MarkovConfig { return a.cfg }

// Reset recreates all per-game state: uniform matrix, empty histories and
// zeroed counters.
func (a *MarkovAgent) Reset() {
	a.matrix = UniformMatrix()
	a.ownMoves = nil
	a.oppMoves = nil
	a.score = 0
	a.losingStreak = 0
	a.lastOutcome = 0
	a.resetPending = false
	a.leadAnnounced = false
	a.lastReason = ReasonNone
}

// Matrix returns a copy of the current transition matrix.
func (a *MarkovAgent) Matrix() TransitionMatrix { return a.matrix }

func (a *MarkovAgent) Score() int         { return a.score }
func (a *MarkovAgent) LosingStreak() int  { return a.losingStreak }
func (a *MarkovAgent) LastOutcome() int   { return a.lastOutcome }
func (a *MarkovAgent) ResetPending() bool { return a.resetPending }

// LastReason reports why the most recent ChooseMove picked its move.
func (a *MarkovAgent) LastReason() DecisionReason { return a.lastReason }

// RecordOutcome scores the round just played and accumulates it.
func (a *MarkovAgent) RecordOutcome(own, opp rps.Move) error {
	if err := own.Validate(); err != nil {
		return err
	}
	if err := opp.Validate(); err != nil {
		return err
	}
	a.lastOutcome = rps.Outcome(own, opp)
	a.score += a.lastOutcome
	return nil
}

// UpdateModel takes the full move histories, folds a recency-windowed
// histogram of the opponent's moves into the matrix, and applies the reset
// heuristics.
func (a *MarkovAgent) UpdateModel(own, opp []rps.Move) error {
	if len(opp) == 0 {
		return ErrEmptyHistory
	}
	if err := validateHistory(own); err != nil {
		return err
	}
	if err := validateHistory(opp); err != nil {
		return err
	}
	a.ownMoves = own
	a.oppMoves = opp

	if err := a.matrix.Blend(windowedCounts(opp, a.cfg.Decay), a.cfg.Influence); err != nil {
		return err
	}

	if a.lastOutcome == -1 && a.losingStreak <= 0 {
		a.losingStreak--
		if a.losingStreak <= a.cfg.StreakResetThreshold {
			a.losingStreak = 0
			a.discardModel("losing streak")
		}
	} else {
		a.losingStreak = 0
	}

	if a.lastOutcome == -1 && repeatedTail(own, a.cfg.RepeatResetThreshold) {
		a.discardModel("repeated move")
	}
	return nil
}

// ChooseMove picks the agent's next move from the current model and
// counters. It must follow an UpdateModel call.
func (a *MarkovAgent) ChooseMove() (rps.Move, error) {
	if len(a.oppMoves) == 0 {
		return 0, ErrEmptyHistory
	}

	dist, err := a.matrix.Predict(a.oppMoves[len(a.oppMoves)-1])
	if err != nil {
		return 0, err
	}
	predicted := argmax(dist)

	switch {
	// Warm-up includes the round where len(opp) == WarmupTurns.
	case len(a.oppMoves) <= a.cfg.WarmupTurns:
		a.lastReason = ReasonWarmup
	case a.score >= a.cfg.LeadThreshold && a.lastOutcome < 0:
		a.lastReason = ReasonLead
	case a.resetPending:
		a.lastReason = ReasonReset
	default:
		a.lastReason = ReasonModel
		return rps.Counter(predicted), nil
	}

	a.resetPending = false
	return randomMove(a.rng), nil
}

// NextMove is the per-turn driver entry point. own and opp are the full
// histories so far; on the first turn both are empty and a random move is
// returned without touching the model.
func (a *MarkovAgent) NextMove(own, opp []rps.Move) (rps.Move, error) {
	if len(opp) == 0 {
		a.lastReason = ReasonWarmup
		return randomMove(a.rng), nil
	}
	if len(own) == 0 {
		return 0, fmt.Errorf("own history: %w", ErrEmptyHistory)
	}

	if err := a.RecordOutcome(own[len(own)-1], opp[len(opp)-1]); err != nil {
		return 0, err
	}
	if a.score >= a.cfg.LeadThreshold && !a.leadAnnounced {
		a.leadAnnounced = true
		log.Info().Int("score", a.score).Int("round", len(opp)).Msg("Markov agent reached a commanding lead")
	}

	if err := a.UpdateModel(own, opp); err != nil {
		return 0, err
	}
	return a.ChooseMove()
}

func (a *MarkovAgent) discardModel(cause string) {
	a.resetPending = true
	a.matrix = UniformMatrix()
	log.Debug().Str("cause", cause).Int("score", a.score).Int("round", len(a.oppMoves)).Msg("Markov matrix reset")
}

// windowedCounts walks the history from newest to oldest, counting moves
// whose relative position idx/(n-1) is at least decay. The newest move is
// always counted, and the oldest ends the walk once reached.
func windowedCounts(moves []rps.Move, decay float64) [rps.NumMoves]int {
	var counts [rps.NumMoves]int
	n := len(moves)
	for idx := n - 1; idx >= 0; idx-- {
		if idx == 0 {
			counts[moves[idx]]++
			break
		}
		if float64(idx)/float64(n-1) >= decay {
			counts[moves[idx]]++
		} else {
			break
		}
	}
	return counts
}

// repeatedTail reports whether the last n moves exist and are identical.
func repeatedTail(moves []rps.Move, n int) bool {
	if n < 1 || len(moves) < n {
		return false
	}
	last := moves[len(moves)-1]
	for _, m := range moves[len(moves)-n:] {
		if m != last {
			return false
		}
	}
	return true
}

func validateHistory(moves []rps.Move) error {
	for _, m := range moves {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MarkovSnapshot is the serializable state of a MarkovAgent, used to park
// an agent between HTTP turns.
type MarkovSnapshot struct {
	Config        MarkovConfig     `json:"config"`
	Matrix        TransitionMatrix `json:"matrix"`
	OwnMoves      []rps.Move       `json:"own_moves"`
	OppMoves      []rps.Move       `json:"opp_moves"`
	Score         int              `json:"score"`
	LosingStreak  int              `json:"losing_streak"`
	LastOutcome   int              `json:"last_outcome"`
	ResetPending  bool             `json:"reset_pending"`
	LeadAnnounced bool             `json:"lead_announced"`
}

// Snapshot captures the agent's state.
func (a *MarkovAgent) Snapshot() MarkovSnapshot {
	return MarkovSnapshot{
		Config:        a.cfg,
		Matrix:        a.matrix,
		OwnMoves:      append([]rps.Move(nil), a.ownMoves...),
		OppMoves:      append([]rps.Move(nil), a.oppMoves...),
		Score:         a.score,
		LosingStreak:  a.losingStreak,
		LastOutcome:   a.lastOutcome,
		ResetPending:  a.resetPending,
		LeadAnnounced: a.leadAnnounced,
	}
}

// RestoreMarkovAgent rebuilds an agent from a snapshot.
func RestoreMarkovAgent(s MarkovSnapshot) (*MarkovAgent, error) {
	a, err := NewMarkovAgent(s.Config)
	if err != nil {
		return nil, err
	}
	if err := validateHistory(s.OwnMoves); err != nil {
		return nil, fmt.Errorf("restore own moves: %w", err)
	}
	if err := validateHistory(s.OppMoves); err != nil {
		return nil, fmt.Errorf("restore opponent moves: %w", err)
	}
	a.matrix = s.Matrix
	a.ownMoves = s.OwnMoves
	a.oppMoves = s.OppMoves
	a.score = s.Score
	a.losingStreak = s.LosingStreak
	a.lastOutcome = s.LastOutcome
	a.resetPending = s.ResetPending
	a.leadAnnounced = s.LeadAnnounced
	return a, nil
}
