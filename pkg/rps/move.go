// Package rps defines the moves of Rock-Paper-Scissors, their text forms,
// and the payoff rule shared by every player in the module.
package rps

import (
	"fmt"
	"strings"
)

// Move is one of the three hand shapes. The numeric value doubles as the
// row/column index into transition matrices, so the order is fixed.
type Move int

const (
	Rock Move = iota
	Paper
	Scissors
)

// NumMoves is the size of the move domain.
const NumMoves = 3

// AllMoves returns the three moves in index order.
func AllMoves() []Move {
	return []Move{Rock, Paper, Scissors}
}

// InvalidMoveError reports a value outside the three-move domain.
type InvalidMoveError struct {
	Value string
}

func (e *InvalidMoveError) Error() string {
	return fmt.Sprintf("invalid move %q", e.Value)
}

// Valid reports whether m is Rock, Paper or Scissors.
func (m Move) Valid() bool {
	return m >= Rock && m <= Scissors
}

// Validate returns an *InvalidMoveError when m is out of range.
func (m Move) Validate() error {
	if !m.Valid() {
		return &InvalidMoveError{Value: fmt.Sprintf("%d", int(m))}
	}
	return nil
}

func (m Move) String() string {
	switch m {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	}
	return fmt.Sprintf("move(%d)", int(m))
}

// Letter returns the single-letter form used on the wire ("R", "P", "S").
func (m Move) Letter() string {
	switch m {
	case Rock:
		return "R"
	case Paper:
		return "P"
	case Scissors:
		return "S"
	}
	return "?"
}

// ParseMove accepts the letter or full name of a move, case-insensitively.
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "rock":
		return Rock, nil
	case "p", "paper":
		return Paper, nil
	case "s", "scissors":
		return Scissors, nil
	}
	return 0, &InvalidMoveError{Value: s}
}

// MarshalText encodes a move as its letter.
func (m Move) MarshalText() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return []byte(m.Letter()), nil
}

// UnmarshalText decodes the letter or full name of a move.
func (m *Move) UnmarshalText(b []byte) error {
	parsed, err := ParseMove(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// beats[m] is the move that m defeats.
var beats = [NumMoves]Move{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// Beats reports whether a defeats b.
func Beats(a, b Move) bool {
	return beats[a] == b
}

// Counter returns the move that defeats m.
func Counter(m Move) Move {
	return (m + 1) % NumMoves
}

// Outcome scores a round from own's perspective: +1 win, -1 loss, 0 tie.
// Both moves must be valid.
func Outcome(own, opp Move) int {
	switch {
	case own == opp:
		return 0
	case Beats(own, opp):
		return 1
	default:
		return -1
	}
}

// ParseHistory parses a comma-separated list of moves. An empty string or a
// single "-" yields an empty history.
func ParseHistory(s string) ([]Move, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	moves := make([]Move, 0, len(parts))
	for _, p := range parts {
		m, err := ParseMove(p)
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// FormatHistory is the inverse of ParseHistory; an empty history is "-".
func FormatHistory(moves []Move) string {
	if len(moves) == 0 {
		return "-"
	}
	letters := make([]string, len(moves))
	for i, m := range moves {
		letters[i] = m.Letter()
	}
	return strings.Join(letters, ",")
}
