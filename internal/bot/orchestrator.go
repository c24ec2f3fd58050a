package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// Orchestrator drives a local strategy through a full session against a
// running server.
type Orchestrator struct {
	baseURL  string
	strategy Strategy
	rounds   int
	useWS    bool
}

// NewOrchestrator creates a new Orchestrator. When useWS is set, moves are
// played over the WebSocket instead of the REST endpoint.
func NewOrchestrator(baseURL string, strategy Strategy, rounds int, useWS bool) *Orchestrator {
	if rounds <= 0 {
		rounds = DefaultArenaRounds
	}
	return &Orchestrator{baseURL: baseURL, strategy: strategy, rounds: rounds, useWS: useWS}
}

// Run plays the session to completion. The result is scored from the
// server agent's side, matching what the server persists.
func (o *Orchestrator) Run(ctx context.Context) (*ArenaResult, error) {
	client := NewClient(o.strategy.Name(), o.baseURL)
	if err := client.CreateSession(ctx); err != nil {
		return nil, err
	}
	defer closeStrategy(o.strategy)

	play := client.PlayRound
	if o.useWS {
		if err := client.ConnectWS(ctx); err != nil {
			return nil, err
		}
		defer client.CloseWS()
		<-client.Events() // connected
		play = client.PlayRoundWS
	}

	result := &ArenaResult{Player: MarkovAgentName, Opponent: o.strategy.Name()}
	var own, opp []rps.Move
	serverFinished := false

	for i := 0; i < o.rounds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		move, err := o.strategy.NextMove(own, opp)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i+1, err)
		}
		round, err := play(ctx, move)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i+1, err)
		}

		own = append(own, move)
		opp = append(opp, round.AgentMove)
		tally(result, round)

		if round.Finished {
			serverFinished = true
			break
		}
	}

	if !serverFinished {
		match, err := client.Finish(ctx)
		var se *StatusError
		switch {
		case errors.As(err, &se) && se.Code == http.StatusConflict:
			// finished by the server in the meantime
		case err != nil:
			return nil, err
		default:
			result.MatchID = match.ID
		}
	}

	log.Info().Str("sessionId", client.SessionID()).Str("strategy", o.strategy.Name()).
		Int("rounds", result.Rounds).Int("agentScore", result.FinalScore).Msg("Remote session completed")
	return result, nil
}

func tally(r *ArenaResult, round *model.Round) {
	r.Rounds++
	switch round.Outcome {
	case 1:
		r.Wins++
	case -1:
		r.Losses++
	default:
		r.Ties++
	}
	r.FinalScore = round.Score
	r.PeakScore = max(r.PeakScore, round.Score)
	if round.Reason != "" {
		if r.Reasons == nil {
			r.Reasons = make(map[DecisionReason]int)
		}
		r.Reasons[DecisionReason(round.Reason)]++
	}
}
