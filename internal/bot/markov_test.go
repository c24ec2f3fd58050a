package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/markov-rps/pkg/rps"
)

const eps = 1e-9

func newTestAgent(t *testing.T, cfg MarkovConfig) *MarkovAgent {
	t.Helper()
	a, err := NewMarkovAgent(cfg)
	require.NoError(t, err)
	return a
}

func assertUniform(t *testing.T, tm TransitionMatrix) {
	t.Helper()
	for i := range tm {
		for j := range tm[i] {
			assert.InDelta(t, 1.0/3, tm[i][j], eps, "cell [%d][%d]", i, j)
		}
	}
}

// playRound feeds one round through RecordOutcome and UpdateModel, growing
// the histories the way a driver would.
func playRound(t *testing.T, a *MarkovAgent, own, opp *[]rps.Move, ownMove, oppMove rps.Move) {
	t.Helper()
	*own = append(*own, ownMove)
	*opp = append(*opp, oppMove)
	require.NoError(t, a.RecordOutcome(ownMove, oppMove))
	require.NoError(t, a.UpdateModel(*own, *opp))
}

func TestInitialMatrixUniform(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())
	assertUniform(t, a.Matrix())
	assert.Equal(t, 0, a.Score())
	assert.Equal(t, 0, a.LosingStreak())
	assert.False(t, a.ResetPending())
}

func TestPredictMatchesRow(t *testing.T) {
	tm := UniformMatrix()
	require.NoError(t, tm.Blend([rps.NumMoves]int{3, 1, 0}, 2))
	tm[1] = [rps.NumMoves]float64{0.1, 0.6, 0.3}
	tm[2] = [rps.NumMoves]float64{0.5, 0.25, 0.25}

	for _, m := range rps.AllMoves() {
		dist, err := tm.Predict(m)
		require.NoError(t, err)
		row := tm.Row(m)
		for j := range row {
			assert.InDelta(t, row[j], dist[j], eps, "prev=%s col=%d", m, j)
		}
	}

	_, err := tm.Predict(rps.Move(5))
	var ime *rps.InvalidMoveError
	assert.ErrorAs(t, err, &ime)
}

func TestArgmaxTiesFavorLowestIndex(t *testing.T) {
	assert.Equal(t, rps.Rock, argmax([rps.NumMoves]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}))
	assert.Equal(t, rps.Rock, argmax([rps.NumMoves]float64{0.4, 0.4, 0.2}))
	assert.Equal(t, rps.Paper, argmax([rps.NumMoves]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, rps.Scissors, argmax([rps.NumMoves]float64{0.1, 0.2, 0.7}))
}

func TestWindowedCounts(t *testing.T) {
	moves := func(s string) []rps.Move {
		m, err := rps.ParseHistory(s)
		require.NoError(t, err)
		return m
	}

	tests := []struct {
		name    string
		history []rps.Move
		decay   float64
		want    [rps.NumMoves]int
	}{
		{"single move", moves("S"), 0.8, [rps.NumMoves]int{0, 0, 1}},
		{"decay zero counts all", moves("R,P,S,S"), 0, [rps.NumMoves]int{1, 1, 2}},
		{"decay one counts newest", moves("R,R,R,P"), 1, [rps.NumMoves]int{0, 1, 0}},
		// idx/(n-1) for n=11: 1.0, 0.9, 0.8 pass; 0.7 stops the walk.
		{"boundary inclusive", moves("S,S,S,S,S,S,S,S,R,P,P"), 0.8, [rps.NumMoves]int{1, 2, 0}},
		// n=2: idx 1 passes (1.0), idx 0 is always counted.
		{"oldest always reached", moves("R,P"), 0.8, [rps.NumMoves]int{1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowedCounts(tt.history, tt.decay))
		})
	}
}

func TestBlendEmptyHistogram(t *testing.T) {
	tm := UniformMatrix()
	err := tm.Blend([rps.NumMoves]int{}, 2)
	assert.ErrorIs(t, err, ErrEmptyHistory)
	assertUniform(t, tm)
}

func TestEndToEndRockBias(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())

	var own, opp []rps.Move
	for i := 0; i < 5; i++ {
		// Paper beats Rock every round, so no reset can fire.
		playRound(t, a, &own, &opp, rps.Paper, rps.Rock)
	}

	tm := a.Matrix()
	for i := range tm {
		assert.Greater(t, tm[i][rps.Rock], 1.0/3, "row %d rock", i)
		assert.Less(t, tm[i][rps.Paper], 1.0/3, "row %d paper", i)
		assert.Less(t, tm[i][rps.Scissors], 1.0/3, "row %d scissors", i)

		// Each update maps x -> (2x+1)/3 for Rock and y -> 2y/3 for the rest.
		assert.InDelta(t, 665.0/729, tm[i][rps.Rock], eps)
		assert.InDelta(t, 32.0/729, tm[i][rps.Paper], eps)
		assert.InDelta(t, 32.0/729, tm[i][rps.Scissors], eps)
	}
	assert.Equal(t, 5, a.Score())
}

func TestRowsStayStochastic(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())
	r := rand.New(rand.NewSource(3))

	var own, opp []rps.Move
	for i := 0; i < 500; i++ {
		playRound(t, a, &own, &opp, rps.Move(r.Intn(3)), rps.Move(r.Intn(3)))
		tm := a.Matrix()
		for row, sum := range tm.RowSums() {
			require.InDelta(t, 1.0, sum, eps, "round %d row %d", i, row)
		}
	}
}

func TestLosingStreakReset(t *testing.T) {
	cfg := DefaultMarkovConfig()
	cfg.WarmupTurns = 0
	a := newTestAgent(t, cfg)

	var own, opp []rps.Move
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)
	assert.Equal(t, -1, a.LosingStreak())
	assert.False(t, a.ResetPending())

	playRound(t, a, &own, &opp, rps.Paper, rps.Scissors)
	assert.Equal(t, -2, a.LosingStreak())
	assert.False(t, a.ResetPending())

	playRound(t, a, &own, &opp, rps.Scissors, rps.Rock)
	assert.Equal(t, 0, a.LosingStreak())
	assert.True(t, a.ResetPending())
	assertUniform(t, a.Matrix())
}

func TestNonLossClearsStreak(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())

	var own, opp []rps.Move
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)
	playRound(t, a, &own, &opp, rps.Paper, rps.Scissors)
	assert.Equal(t, -2, a.LosingStreak())

	playRound(t, a, &own, &opp, rps.Rock, rps.Rock)
	assert.Equal(t, 0, a.LosingStreak())
	assert.False(t, a.ResetPending())

	playRound(t, a, &own, &opp, rps.Scissors, rps.Rock)
	assert.Equal(t, -1, a.LosingStreak())
	assert.False(t, a.ResetPending())
}

func TestRepeatStreakReset(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())

	var own, opp []rps.Move
	// Rock five times: win, win, tie, win, then a loss.
	for _, o := range []rps.Move{rps.Scissors, rps.Scissors, rps.Rock, rps.Scissors} {
		playRound(t, a, &own, &opp, rps.Rock, o)
		require.False(t, a.ResetPending())
	}
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)

	assert.True(t, a.ResetPending(), "repeated losing move should discard the model")
	assertUniform(t, a.Matrix())
	assert.Equal(t, -1, a.LosingStreak(), "streak threshold was not reached")
}

func TestRepeatStreakNeedsFullRun(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())

	var own, opp []rps.Move
	playRound(t, a, &own, &opp, rps.Paper, rps.Rock)
	for _, o := range []rps.Move{rps.Scissors, rps.Scissors, rps.Rock} {
		playRound(t, a, &own, &opp, rps.Rock, o)
	}
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)

	assert.False(t, a.ResetPending(), "only four identical moves")
}

func TestResetThenRandomOnce(t *testing.T) {
	cfg := DefaultMarkovConfig()
	cfg.WarmupTurns = 0
	a := newTestAgent(t, cfg)
	a.UseRand(rand.New(rand.NewSource(7)))
	mirror := rand.New(rand.NewSource(7))

	var own, opp []rps.Move
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)
	playRound(t, a, &own, &opp, rps.Paper, rps.Scissors)
	playRound(t, a, &own, &opp, rps.Scissors, rps.Rock)
	require.True(t, a.ResetPending())

	move, err := a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonReset, a.LastReason())
	assert.Equal(t, rps.Move(mirror.Intn(rps.NumMoves)), move, "move should come from the random source")
	assert.False(t, a.ResetPending())

	move, err = a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonModel, a.LastReason())
	// Uniform matrix: argmax ties to Rock, countered by Paper.
	assert.Equal(t, rps.Paper, move)
}

func TestWarmupIsRandom(t *testing.T) {
	cfg := DefaultMarkovConfig()
	r := rand.New(rand.NewSource(11))

	var counts [rps.NumMoves]int
	for trial := 0; trial < 60; trial++ {
		a := newTestAgent(t, cfg)
		a.UseRand(r)

		var own, opp []rps.Move
		for turn := 0; turn < cfg.WarmupTurns; turn++ {
			m, err := a.NextMove(own, opp)
			require.NoError(t, err)
			if turn > 0 {
				assert.Equal(t, ReasonWarmup, a.LastReason())
				counts[m]++
			}
			own = append(own, m)
			opp = append(opp, rps.Rock)
		}
	}

	// The model would answer Paper every time against an all-Rock opponent.
	total := counts[0] + counts[1] + counts[2]
	for m, c := range counts {
		assert.Greater(t, c, total/5, "move %s drawn %d of %d", rps.Move(m), c, total)
	}
}

func TestModelPlaysCounterAfterWarmup(t *testing.T) {
	cfg := DefaultMarkovConfig()
	cfg.WarmupTurns = 3
	a := newTestAgent(t, cfg)

	var own, opp []rps.Move
	for i := 0; i < 4; i++ {
		playRound(t, a, &own, &opp, rps.Rock, rps.Scissors)
	}
	move, err := a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonModel, a.LastReason())
	assert.Equal(t, rps.Rock, move, "Rock beats the predicted Scissors")
}

func TestWarmupIncludesLastWarmupTurn(t *testing.T) {
	cfg := DefaultMarkovConfig()
	cfg.WarmupTurns = 3
	a := newTestAgent(t, cfg)

	var own, opp []rps.Move
	for i := 0; i < 3; i++ {
		playRound(t, a, &own, &opp, rps.Rock, rps.Scissors)
	}
	_, err := a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonWarmup, a.LastReason(), "len(opp) == WarmupTurns is still warm-up")
}

func TestLeadAnnouncedOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	a := newTestAgent(t, DefaultMarkovConfig())
	var own, opp []rps.Move
	for i := 0; i < 45; i++ {
		_, err := a.NextMove(own, opp)
		require.NoError(t, err)
		if i == 29 {
			assert.False(t, a.Snapshot().LeadAnnounced, "score is only 29 after this call")
		}
		// Paper against Rock every round: score climbs by one per round.
		own = append(own, rps.Paper)
		opp = append(opp, rps.Rock)
	}

	assert.Equal(t, 44, a.Score())
	assert.True(t, a.Snapshot().LeadAnnounced)
	assert.Equal(t, 1, strings.Count(buf.String(), "commanding lead"))
}

func TestLeadTriggersRandomOnlyAfterLoss(t *testing.T) {
	opp := make([]rps.Move, 25)
	own := make([]rps.Move, 25)
	for i := range own {
		own[i] = rps.Move(i % 3)
	}

	snap := MarkovSnapshot{
		Config:      DefaultMarkovConfig(),
		Matrix:      UniformMatrix(),
		OwnMoves:    own,
		OppMoves:    opp,
		Score:       30,
		LastOutcome: -1,
	}
	a, err := RestoreMarkovAgent(snap)
	require.NoError(t, err)
	_, err = a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonLead, a.LastReason())

	snap.LastOutcome = 1
	a, err = RestoreMarkovAgent(snap)
	require.NoError(t, err)
	_, err = a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonModel, a.LastReason())

	snap.Score = 29
	snap.LastOutcome = -1
	a, err = RestoreMarkovAgent(snap)
	require.NoError(t, err)
	_, err = a.ChooseMove()
	require.NoError(t, err)
	assert.Equal(t, ReasonModel, a.LastReason())
}

func TestNextMoveFirstTurn(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())
	m, err := a.NextMove(nil, nil)
	require.NoError(t, err)
	assert.True(t, m.Valid())
	assertUniform(t, a.Matrix())
	assert.Equal(t, 0, a.Score())
}

func TestNextMoveErrors(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())

	_, err := a.NextMove(nil, []rps.Move{rps.Rock})
	assert.ErrorIs(t, err, ErrEmptyHistory)

	_, err = a.NextMove([]rps.Move{rps.Rock}, []rps.Move{rps.Move(9)})
	var ime *rps.InvalidMoveError
	assert.ErrorAs(t, err, &ime)

	assert.ErrorIs(t, a.UpdateModel(nil, nil), ErrEmptyHistory)

	_, err = newTestAgent(t, DefaultMarkovConfig()).ChooseMove()
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestResetRestoresFreshState(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())
	var own, opp []rps.Move
	for i := 0; i < 10; i++ {
		playRound(t, a, &own, &opp, rps.Paper, rps.Rock)
	}
	require.Equal(t, 10, a.Score())

	a.Reset()
	assertUniform(t, a.Matrix())
	assert.Equal(t, 0, a.Score())
	assert.Equal(t, 0, a.LastOutcome())
	assert.Equal(t, 0, a.LosingStreak())
	assert.False(t, a.ResetPending())
	assert.Empty(t, a.Snapshot().OppMoves)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	a := newTestAgent(t, DefaultMarkovConfig())
	var own, opp []rps.Move
	playRound(t, a, &own, &opp, rps.Rock, rps.Paper)
	playRound(t, a, &own, &opp, rps.Scissors, rps.Paper)

	data, err := json.Marshal(a.Snapshot())
	require.NoError(t, err)

	var snap MarkovSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	b, err := RestoreMarkovAgent(snap)
	require.NoError(t, err)

	assert.Equal(t, a.Matrix(), b.Matrix())
	assert.Equal(t, a.Score(), b.Score())
	assert.Equal(t, a.LosingStreak(), b.LosingStreak())
	assert.Equal(t, a.LastOutcome(), b.LastOutcome())
	assert.Equal(t, own, b.Snapshot().OwnMoves)
	assert.Equal(t, opp, b.Snapshot().OppMoves)
}

func TestMarkovConfigValidate(t *testing.T) {
	require.NoError(t, DefaultMarkovConfig().Validate())

	mutations := map[string]func(*MarkovConfig){
		"decay high":      func(c *MarkovConfig) { c.Decay = 1.5 },
		"decay negative":  func(c *MarkovConfig) { c.Decay = -0.1 },
		"influence":       func(c *MarkovConfig) { c.Influence = -1 },
		"decay NaN":       func(c *MarkovConfig) { c.Decay = math.NaN() },
		"influence NaN":   func(c *MarkovConfig) { c.Influence = math.NaN() },
		"influence +Inf":  func(c *MarkovConfig) { c.Influence = math.Inf(1) },
		"streak positive": func(c *MarkovConfig) { c.StreakResetThreshold = 3 },
		"repeat zero":     func(c *MarkovConfig) { c.RepeatResetThreshold = 0 },
		"warmup":          func(c *MarkovConfig) { c.WarmupTurns = -1 },
		"lead":            func(c *MarkovConfig) { c.LeadThreshold = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultMarkovConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := NewMarkovAgent(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRestoreRejectsBadMoves(t *testing.T) {
	snap := newTestAgent(t, DefaultMarkovConfig()).Snapshot()
	snap.OppMoves = []rps.Move{rps.Rock, rps.Move(4)}
	_, err := RestoreMarkovAgent(snap)
	var ime *rps.InvalidMoveError
	assert.True(t, errors.As(err, &ime))
}
