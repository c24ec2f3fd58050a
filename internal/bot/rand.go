package bot

import (
	"math/rand"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// botRng is the package-level random source used by all bot strategies.
// When nil, the functions below delegate to the global math/rand default.
// Use SeedBotRng to set a deterministic source for reproducible matches.
var botRng *rand.Rand

// SeedBotRng sets a deterministic random source for reproducible bot behavior.
func SeedBotRng(seed int64) {
	botRng = rand.New(rand.NewSource(seed))
}

// ResetBotRng reverts to the default (non-deterministic) global random source.
func ResetBotRng() {
	botRng = nil
}

func botFloat64() float64 {
	if botRng != nil {
		return botRng.Float64()
	}
	return rand.Float64()
}

func botIntn(n int) int {
	if botRng != nil {
		return botRng.Intn(n)
	}
	return rand.Intn(n)
}

// randomMove draws a move uniformly from the three shapes.
func randomMove(r *rand.Rand) rps.Move {
	if r != nil {
		return rps.Move(r.Intn(rps.NumMoves))
	}
	return rps.Move(botIntn(rps.NumMoves))
}

// sampleMove draws a move from a (not necessarily normalized) weight vector
// by walking the cumulative distribution.
func sampleMove(r *rand.Rand, weights [rps.NumMoves]float64) rps.Move {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return randomMove(r)
	}

	var x float64
	if r != nil {
		x = r.Float64() * total
	} else {
		x = botFloat64() * total
	}

	cumulative := 0.0
	for i := 0; i < rps.NumMoves-1; i++ {
		cumulative += weights[i]
		if x < cumulative {
			return rps.Move(i)
		}
	}
	return rps.Move(rps.NumMoves - 1)
}
