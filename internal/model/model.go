package model

import (
	"encoding/json"
	"time"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// Session statuses.
const (
	SessionActive   = "active"
	SessionFinished = "finished"
)

// Session is a live game between the Markov agent and one opponent, kept
// in the session store while it is being played.
type Session struct {
	ID            string     `json:"id"`
	Opponent      string     `json:"opponent"`
	Status        string     `json:"status"`
	MaxRounds     int        `json:"max_rounds"`
	AgentMoves    []rps.Move `json:"agent_moves"`
	OpponentMoves []rps.Move `json:"opponent_moves"`
	Wins          int        `json:"wins"`
	Losses        int        `json:"losses"`
	Ties          int        `json:"ties"`
	Score         int        `json:"score"`
	PeakScore     int        `json:"peak_score"`
	// Agent is the serialized Markov agent state between rounds.
	Agent     json.RawMessage `json:"agent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RoundsPlayed returns how many rounds the session has scored.
func (s *Session) RoundsPlayed() int {
	return len(s.OpponentMoves)
}

// Round is the result of a single play, scored from the agent's side.
type Round struct {
	SessionID    string   `json:"session_id"`
	Number       int      `json:"number"`
	AgentMove    rps.Move `json:"agent_move"`
	OpponentMove rps.Move `json:"opponent_move"`
	Outcome      int      `json:"outcome"`
	Score        int      `json:"score"`
	Reason       string   `json:"reason,omitempty"`
	Finished     bool     `json:"finished"`
}

// Match is a completed game persisted for history and leaderboards.
// It is written by finished sessions and by arena runs.
type Match struct {
	ID         string    `json:"id"`
	Player     string    `json:"player"`
	Opponent   string    `json:"opponent"`
	Rounds     int       `json:"rounds"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Ties       int       `json:"ties"`
	FinalScore int       `json:"final_score"`
	PeakScore  int       `json:"peak_score"`
	Source     string    `json:"source"` // session, arena
	CreatedAt  time.Time `json:"created_at"`
}
