package bot

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/internal/repository"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// DefaultArenaRounds is the match length used when ArenaConfig.Rounds is 0.
const DefaultArenaRounds = 1000

// ArenaConfig configures a single bot-vs-bot match.
type ArenaConfig struct {
	Player   string       // strategy name, scored side
	Opponent string       // strategy name
	Rounds   int          // 0 = DefaultArenaRounds
	Seed     int64        // 0 = random
	DryRun   bool         // skip DB writes
	Markov   MarkovConfig // zero value = DefaultMarkovConfig
}

// ArenaResult describes the outcome of a completed match, scored from the
// player's side.
type ArenaResult struct {
	MatchID    string `json:"match_id,omitempty"`
	Player     string `json:"player"`
	Opponent   string `json:"opponent"`
	Rounds     int    `json:"rounds"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Ties       int    `json:"ties"`
	FinalScore int    `json:"final_score"`
	PeakScore  int    `json:"peak_score"`
	// Reasons counts the Markov player's decision paths, when the player
	// is a Markov agent.
	Reasons map[DecisionReason]int `json:"reasons,omitempty"`
}

// ParseMatchup handles "markov-vs-random" style strings. A single name is
// taken as the opponent of the Markov agent.
func ParseMatchup(s string) (player, opponent string, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	parts := strings.SplitN(s, "-vs-", 2)
	if len(parts) == 1 {
		player, opponent = "markov", parts[0]
	} else {
		player, opponent = parts[0], parts[1]
	}
	names := StrategyNames()
	for _, n := range []string{player, opponent} {
		if !slices.Contains(names, n) {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownStrategy, n)
		}
	}
	return player, opponent, nil
}

// RunMatch plays a full match between two strategies, saving the result to
// Postgres. Pass a nil repo for dry-run mode.
func RunMatch(ctx context.Context, cfg ArenaConfig, repo repository.MatchRepository) (*ArenaResult, error) {
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultArenaRounds
	}
	if cfg.Markov == (MarkovConfig{}) {
		cfg.Markov = DefaultMarkovConfig()
	}
	if cfg.Player == "" {
		cfg.Player = "markov"
	}
	if cfg.Opponent == "" {
		cfg.Opponent = "random"
	}

	player, err := StrategyForName(cfg.Player, cfg.Markov)
	if err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}
	defer closeStrategy(player)
	opponent, err := StrategyForName(cfg.Opponent, cfg.Markov)
	if err != nil {
		return nil, fmt.Errorf("opponent: %w", err)
	}
	defer closeStrategy(opponent)

	if cfg.Seed != 0 {
		seedStrategy(player, cfg.Seed)
		seedStrategy(opponent, cfg.Seed^0x5eed)
	}

	result := &ArenaResult{
		Player:   cfg.Player,
		Opponent: cfg.Opponent,
	}
	agent, isMarkov := player.(*MarkovAgent)
	if isMarkov {
		result.Reasons = make(map[DecisionReason]int)
	}

	own := make([]rps.Move, 0, cfg.Rounds)
	opp := make([]rps.Move, 0, cfg.Rounds)
	for round := 1; round <= cfg.Rounds; round++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pm, err := player.NextMove(own, opp)
		if err != nil {
			return nil, fmt.Errorf("round %d: %s: %w", round, cfg.Player, err)
		}
		if isMarkov {
			result.Reasons[agent.LastReason()]++
		}
		om, err := opponent.NextMove(opp, own)
		if err != nil {
			return nil, fmt.Errorf("round %d: %s: %w", round, cfg.Opponent, err)
		}
		if err := pm.Validate(); err != nil {
			return nil, fmt.Errorf("round %d: %s: %w", round, cfg.Player, err)
		}
		if err := om.Validate(); err != nil {
			return nil, fmt.Errorf("round %d: %s: %w", round, cfg.Opponent, err)
		}

		switch rps.Outcome(pm, om) {
		case 1:
			result.Wins++
		case -1:
			result.Losses++
		default:
			result.Ties++
		}
		result.FinalScore = result.Wins - result.Losses
		result.PeakScore = max(result.PeakScore, result.FinalScore)
		result.Rounds = round

		own = append(own, pm)
		opp = append(opp, om)
	}

	if !cfg.DryRun && repo != nil {
		m := &model.Match{
			Player:     result.Player,
			Opponent:   result.Opponent,
			Rounds:     result.Rounds,
			Wins:       result.Wins,
			Losses:     result.Losses,
			Ties:       result.Ties,
			FinalScore: result.FinalScore,
			PeakScore:  result.PeakScore,
			Source:     "arena",
		}
		if err := repo.SaveMatch(ctx, m); err != nil {
			return nil, fmt.Errorf("save match: %w", err)
		}
		result.MatchID = m.ID
	}

	log.Debug().Str("matchId", result.MatchID).Str("player", cfg.Player).Str("opponent", cfg.Opponent).
		Int("score", result.FinalScore).Msg("Arena match finished")
	return result, nil
}

func seedStrategy(s Strategy, seed int64) {
	if ru, ok := s.(RandUser); ok {
		ru.UseRand(rand.New(rand.NewSource(seed)))
	}
}

func closeStrategy(s Strategy) {
	if c, ok := s.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("strategy", s.Name()).Msg("bot: close strategy")
		}
	}
}
