package bot

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// TransitionMatrix holds P(next opponent move | previous opponent move).
// Rows are indexed by the previous move, columns by the next move.
type TransitionMatrix [rps.NumMoves][rps.NumMoves]float64

// UniformMatrix returns a matrix with every cell set to 1/3.
func UniformMatrix() TransitionMatrix {
	var tm TransitionMatrix
	for i := range tm {
		for j := range tm[i] {
			tm[i][j] = 1.0 / rps.NumMoves
		}
	}
	return tm
}

// Row returns the distribution over the opponent's next move given prev.
func (tm *TransitionMatrix) Row(prev rps.Move) [rps.NumMoves]float64 {
	return tm[prev]
}

// RowSums returns the sum of each row. Repeated blending can drift these off
// 1.0 by float rounding; callers compare with an epsilon.
func (tm *TransitionMatrix) RowSums() [rps.NumMoves]float64 {
	var sums [rps.NumMoves]float64
	for i := range tm {
		for _, v := range tm[i] {
			sums[i] += v
		}
	}
	return sums
}

// Blend folds a move-count histogram into every row:
//
//	cell = (influence*cell + count(c)/total) / (influence + 1)
//
// The same distribution is blended into all three rows.
func (tm *TransitionMatrix) Blend(counts [rps.NumMoves]int, influence float64) error {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return ErrEmptyHistory
	}
	for i := range tm {
		for j := range tm[i] {
			frac := float64(counts[j]) / float64(total)
			tm[i][j] = (influence*tm[i][j] + frac) / (influence + 1)
		}
	}
	return nil
}

// Predict multiplies the one-hot state vector for prev by the matrix,
// yielding the predicted distribution over the opponent's next move.
func (tm *TransitionMatrix) Predict(prev rps.Move) ([rps.NumMoves]float64, error) {
	var out [rps.NumMoves]float64
	if err := prev.Validate(); err != nil {
		return out, err
	}

	state := make([]float64, rps.NumMoves)
	state[prev] = 1

	backing := make([]float64, 0, rps.NumMoves*rps.NumMoves)
	for i := range tm {
		backing = append(backing, tm[i][:]...)
	}

	stateT := tensor.New(
		tensor.WithShape(1, rps.NumMoves),
		tensor.Of(tensor.Float64),
		tensor.WithBacking(state),
	)
	matrixT := tensor.New(
		tensor.WithShape(rps.NumMoves, rps.NumMoves),
		tensor.Of(tensor.Float64),
		tensor.WithBacking(backing),
	)

	product, err := stateT.MatMul(matrixT)
	if err != nil {
		return out, fmt.Errorf("predict: %w", err)
	}
	data, ok := product.Data().([]float64)
	if !ok || len(data) != rps.NumMoves {
		return out, fmt.Errorf("predict: unexpected product %T", product.Data())
	}
	copy(out[:], data)
	return out, nil
}

// argmax returns the index of the largest value; ties go to the lowest index
// so Rock wins over Paper wins over Scissors.
func argmax(dist [rps.NumMoves]float64) rps.Move {
	best := 0
	for i := 1; i < len(dist); i++ {
		if dist[i] > dist[best] {
			best = i
		}
	}
	return rps.Move(best)
}
