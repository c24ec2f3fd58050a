package bot

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// Strategy picks a move each round. own and opp are the full histories so
// far, from the strategy's own point of view; both are empty on round one.
type Strategy interface {
	Name() string
	NextMove(own, opp []rps.Move) (rps.Move, error)
}

// Resetter is implemented by strategies that carry per-game state.
// Not all strategies are stateful; use a type assertion to check.
type Resetter interface {
	Reset()
}

// RandUser is implemented by strategies that can draw from a caller-owned
// random source, which makes seeded arena runs reproducible.
type RandUser interface {
	UseRand(r *rand.Rand)
}

// ErrUnknownStrategy is returned by StrategyForName for unregistered names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// ExternalEnginePath is the path to the engine binary used by the
// "external" strategy. Set this at startup (e.g. from an environment
// variable) before creating strategies.
var ExternalEnginePath string

// StrategyNames lists the names accepted by StrategyForName.
func StrategyNames() []string {
	return []string{"markov", "random", "rock", "paper", "scissors", "cycle", "biased", "beatlast", "frequency", "external"}
}

// StrategyForName returns a fresh strategy for a registry name. cfg tunes
// the Markov agent and is ignored by the other strategies.
func StrategyForName(name string, cfg MarkovConfig) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markov":
		return NewMarkovAgent(cfg)
	case "random":
		return &RandomStrategy{}, nil
	case "rock":
		return ConstantStrategy{Move: rps.Rock}, nil
	case "paper":
		return ConstantStrategy{Move: rps.Paper}, nil
	case "scissors":
		return ConstantStrategy{Move: rps.Scissors}, nil
	case "cycle":
		return CycleStrategy{}, nil
	case "biased":
		return &BiasedStrategy{Weights: DefaultBias}, nil
	case "beatlast":
		return &BeatLastStrategy{}, nil
	case "frequency":
		return &FrequencyStrategy{}, nil
	case "external":
		return newExternalOrFallback(cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// newExternalOrFallback attempts to start an ExternalStrategy. If the engine
// path is not configured or the engine fails to start, it falls back to the
// in-process Markov agent so the match can proceed.
func newExternalOrFallback(cfg MarkovConfig) (Strategy, error) {
	if ExternalEnginePath == "" {
		log.Warn().Msg("bot: external strategy requested but ExternalEnginePath not set; falling back to markov")
		return NewMarkovAgent(cfg)
	}
	es, err := NewExternalStrategy(ExternalEnginePath)
	if err != nil {
		log.Warn().Err(err).Str("path", ExternalEnginePath).Msg("bot: failed to start external engine; falling back to markov")
		return NewMarkovAgent(cfg)
	}
	return es, nil
}

// --- RandomStrategy ---

// RandomStrategy plays uniformly at random.
type RandomStrategy struct {
	rng *rand.Rand
}

func (*RandomStrategy) Name() string { return "random" }

func (s *RandomStrategy) UseRand(r *rand.Rand) { s.rng = r }

func (s *RandomStrategy) NextMove(_, _ []rps.Move) (rps.Move, error) {
	return randomMove(s.rng), nil
}

// --- ConstantStrategy ---

// ConstantStrategy always plays the same move.
type ConstantStrategy struct {
	Move rps.Move
}

func (s ConstantStrategy) Name() string { return s.Move.String() }

func (s ConstantStrategy) NextMove(_, _ []rps.Move) (rps.Move, error) {
	if err := s.Move.Validate(); err != nil {
		return 0, err
	}
	return s.Move, nil
}

// --- CycleStrategy ---

// CycleStrategy plays Rock, Paper, Scissors in a fixed loop.
type CycleStrategy struct{}

func (CycleStrategy) Name() string { return "cycle" }

func (CycleStrategy) NextMove(own, _ []rps.Move) (rps.Move, error) {
	return rps.Move(len(own) % rps.NumMoves), nil
}

// --- BiasedStrategy ---

// DefaultBias leans toward Rock, the way weak human players do.
var DefaultBias = [rps.NumMoves]float64{0.5, 0.3, 0.2}

// BiasedStrategy samples each move from a fixed weight vector.
type BiasedStrategy struct {
	Weights [rps.NumMoves]float64
	rng     *rand.Rand
}

func (*BiasedStrategy) Name() string { return "biased" }

func (s *BiasedStrategy) UseRand(r *rand.Rand) { s.rng = r }

func (s *BiasedStrategy) NextMove(_, _ []rps.Move) (rps.Move, error) {
	return sampleMove(s.rng, s.Weights), nil
}

// --- BeatLastStrategy ---

// BeatLastStrategy plays whatever beats the opponent's previous move.
type BeatLastStrategy struct {
	rng *rand.Rand
}

func (*BeatLastStrategy) Name() string { return "beatlast" }

func (s *BeatLastStrategy) UseRand(r *rand.Rand) { s.rng = r }

func (s *BeatLastStrategy) NextMove(_, opp []rps.Move) (rps.Move, error) {
	if len(opp) == 0 {
		return randomMove(s.rng), nil
	}
	last := opp[len(opp)-1]
	if err := last.Validate(); err != nil {
		return 0, err
	}
	return rps.Counter(last), nil
}

// --- FrequencyStrategy ---

// FrequencyStrategy counters the opponent's most frequent move so far.
type FrequencyStrategy struct {
	rng *rand.Rand
}

func (*FrequencyStrategy) Name() string { return "frequency" }

func (s *FrequencyStrategy) UseRand(r *rand.Rand) { s.rng = r }

func (s *FrequencyStrategy) NextMove(_, opp []rps.Move) (rps.Move, error) {
	if len(opp) == 0 {
		return randomMove(s.rng), nil
	}
	var counts [rps.NumMoves]float64
	for _, m := range opp {
		if err := m.Validate(); err != nil {
			return 0, err
		}
		counts[m]++
	}
	return rps.Counter(argmax(counts)), nil
}
