package reinforcement

import (
	"context"
	"fmt"
	"log/slog"

	"gridvi/logging"

	. "gridvi/grid_world"
)

// The solvers below are the historical entry points, kept so each generation of callers sees the
// inputs and outputs it was written against. All of them run on the same Solver. Those taking an
// end cell require it: unlike Options.EndCell, 0 is not "none" here but an invalid cell.

// ValueIterationLegacy solves with the fixed 0.7/0.1 wind, beta 0.95 and no obstacles, and logs
// the converged values.
func ValueIterationLegacy(reward []float64, endCell int) ([]float64, error) {
	if err := requireEndCell(endCell); err != nil {
		return nil, err
	}
	res, err := solve(Options{
		Reward:  reward,
		EndCell: endCell,
		Wind:    LegacyWind,
		Beta:    DefaultBeta,
	})
	if err != nil {
		return nil, err
	}
	logging.New(slog.LevelInfo).Info("value iteration", "values", res.Values)
	return res.Values, nil
}

// ValueIterationObstacles adds obstacles to the legacy solver and returns the values.
func ValueIterationObstacles(reward []float64, obstacles []int, endCell int) ([]float64, error) {
	if err := requireEndCell(endCell); err != nil {
		return nil, err
	}
	res, err := solve(Options{
		Reward:    reward,
		Obstacles: obstacles,
		EndCell:   endCell,
		Wind:      LegacyWind,
		Beta:      DefaultBeta,
	})
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// ValueIterationSoft is ValueIterationObstacles with the soft-max backup.
func ValueIterationSoft(reward []float64, obstacles []int, endCell int) ([]float64, error) {
	if err := requireEndCell(endCell); err != nil {
		return nil, err
	}
	res, err := solve(Options{
		Reward:    reward,
		Obstacles: obstacles,
		EndCell:   endCell,
		Wind:      LegacyWind,
		Beta:      DefaultBeta,
		Backup:    BackupSoft,
	})
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// ValueIterationParametrized takes the wind and discount as inputs and returns the values
// followed by the flattened Q table.
func ValueIterationParametrized(reward []float64, obstacles []int, endCell int, wind, beta float64) ([]float64, error) {
	if err := requireEndCell(endCell); err != nil {
		return nil, err
	}
	return parametrized(reward, obstacles, endCell, wind, beta)
}

// ValueIteration is the current solver: no end cell, parametrized wind and discount, and the
// values followed by the flattened Q table.
func ValueIteration(reward []float64, obstacles []int, wind, beta float64) ([]float64, error) {
	return parametrized(reward, obstacles, 0, wind, beta)
}

// parametrized solves with explicit wind and beta; endCell 0 means none.
func parametrized(reward []float64, obstacles []int, endCell int, wind, beta float64) ([]float64, error) {
	// Options treats a zero beta as "use the default"; here it is an explicit input.
	if !(beta > 0 && beta < 1) {
		return nil, fmt.Errorf("%w: beta %v not in (0,1)", ErrInvalidParameter, beta)
	}
	w, err := NewWind(wind)
	if err != nil {
		return nil, err
	}
	res, err := solve(Options{
		Reward:    reward,
		Obstacles: obstacles,
		EndCell:   endCell,
		Wind:      w,
		Beta:      beta,
	})
	if err != nil {
		return nil, err
	}
	return res.Flatten(), nil
}

func requireEndCell(endCell int) error {
	if _, err := FromOneBased(endCell); err != nil {
		return fmt.Errorf("end cell: %w", err)
	}
	return nil
}

func solve(opts Options) (*Result, error) {
	solver, err := NewSolver(opts)
	if err != nil {
		return nil, err
	}
	return solver.Solve(context.Background())
}
