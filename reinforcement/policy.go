package reinforcement

import (
	"fmt"

	. "gridvi/grid_world"

	"gonum.org/v1/gonum/floats"
)

// GreedyPolicy returns one policy code per cell naming the actions whose Q value is within tol
// of the row maximum. With tol=0 only exact ties are grouped; the codes feed straight back into
// the trajectory sampler.
func (r *Result) GreedyPolicy(tol float64) ([]int, error) {
	policy := make([]int, NumCells)
	for i := range policy {
		row := r.Q.RawRowView(i)
		best := floats.Max(row)
		var tied []Action
		for j, q := range row {
			if best-q <= tol {
				tied = append(tied, Actions[j])
			}
		}
		code, err := EncodePolicyCode(tied)
		if err != nil {
			return nil, fmt.Errorf("greedy policy at cell %d: %w", ToOneBased(i), err)
		}
		policy[i] = code
	}
	return policy, nil
}
