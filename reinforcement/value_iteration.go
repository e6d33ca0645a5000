package reinforcement

/*
Value iteration for the windy 5x5 grid world. The solver is a plain sequential fixed-point loop:
starting from V=0 and V'=1 (different on purpose, so at least one backup always runs), it sets
V <- V', recomputes the wind-weighted future values and Q, and backs up V' from the rows of Q until
two successive value vectors agree within the tolerance. There is no relative-error test;
the iteration cap turns a non-convergent configuration into ErrNonConvergence.
*/

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gridvi/logging"

	. "gridvi/grid_world"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BackupKind selects how a Q row is aggregated into a state value.
type BackupKind string

const (
	// BackupHard takes the row maximum.
	BackupHard BackupKind = "hard"
	// BackupSoft takes the log-sum-exp of the sharpened row, a smooth upper bound on the max.
	BackupSoft BackupKind = "soft"
)

// Solver defaults, used when the corresponding Options field is zero.
const (
	DefaultBeta          = 0.95
	DefaultTolerance     = 0.01
	DefaultSharpness     = 100.0
	DefaultMaxIterations = 10000
)

var (
	// ErrNonConvergence is returned when the iteration cap is reached before the values settle.
	ErrNonConvergence error = errors.New("value iteration did not converge")
	// ErrUnknownBackup is returned for backup names other than "hard" and "soft".
	ErrUnknownBackup error = errors.New("unknown backup kind")
)

// ParseBackup converts a config or request string into a BackupKind. Empty means hard.
func ParseBackup(name string) (BackupKind, error) {
	switch BackupKind(name) {
	case "", BackupHard:
		return BackupHard, nil
	case BackupSoft:
		return BackupSoft, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackup, name)
}

// Options configures a Solver. Cell indices are 1-based, as callers supply them.
type Options struct {
	// Reward is the immediate reward of each cell; it must have NumCells entries.
	Reward []float64
	// Obstacles are 1-based cells that block movement into them.
	Obstacles []int
	// EndCell is a 1-based absorbing cell whose future value is forced to zero; 0 disables it.
	EndCell int
	// Wind is the outcome model. The zero value selects LegacyWind.
	Wind Wind
	// Beta discounts the expected future value; must be in (0,1).
	Beta float64
	// Backup selects hard or soft aggregation of Q rows.
	Backup BackupKind
	// Sharpness is the soft-max scale; larger values approach the hard max.
	Sharpness float64
	// Tolerance is the max-norm distance at which successive value vectors count as converged.
	Tolerance float64
	// MaxIterations caps the number of backups.
	MaxIterations int
	// Progress, if set, is called synchronously after every backup.
	Progress ProgressFunc
	// Logger receives per-iteration debug logs. Nil discards them.
	Logger *slog.Logger
}

// ProgressFunc is a callback by which the solver reports each iteration. It is synchronous
// and should complete quickly, since the solve loop waits on it.
type ProgressFunc func(context.Context, Snapshot)

// Snapshot describes the solver after one backup.
type Snapshot struct {
	Iteration int       `json:"iteration"`
	Residual  float64   `json:"residual"`
	Values    []float64 `json:"values"`
	Converged bool      `json:"converged"`
}

// State is the value vector and the action-value table produced by one backup. A backup never
// mutates its input State.
type State struct {
	Values []float64
	Q      *mat.Dense
}

// Solver holds a validated MDP configuration; it is immutable after construction and may be
// shared across goroutines, each Solve owning its own State.
type Solver struct {
	reward        []float64
	obstacles     Obstacles
	endCell       int // 0-based, -1 if none
	wind          Wind
	beta          float64
	backup        BackupKind
	sharpness     float64
	tolerance     float64
	maxIterations int
	progress      ProgressFunc
	logger        *slog.Logger
}

// NewSolver validates the options, applies defaults, and returns a solver.
func NewSolver(opts Options) (*Solver, error) {
	if len(opts.Reward) != NumCells {
		return nil, fmt.Errorf("%w: reward has %d entries, want %d", ErrInvalidDimension, len(opts.Reward), NumCells)
	}
	obstacles, err := NewObstacles(opts.Obstacles)
	if err != nil {
		return nil, err
	}

	endCell := -1
	if opts.EndCell != 0 {
		if endCell, err = FromOneBased(opts.EndCell); err != nil {
			return nil, fmt.Errorf("end cell: %w", err)
		}
	}

	wind := opts.Wind
	if wind == (Wind{}) {
		wind = LegacyWind
	}
	if err = validateWind(wind); err != nil {
		return nil, err
	}

	backup, err := ParseBackup(string(opts.Backup))
	if err != nil {
		return nil, err
	}

	beta := orDefault(opts.Beta, DefaultBeta)
	if !(beta > 0 && beta < 1) {
		return nil, fmt.Errorf("%w: beta %v not in (0,1)", ErrInvalidParameter, beta)
	}
	sharpness := orDefault(opts.Sharpness, DefaultSharpness)
	if !(sharpness > 0) || math.IsInf(sharpness, 0) {
		return nil, fmt.Errorf("%w: sharpness %v must be positive and finite", ErrInvalidParameter, sharpness)
	}
	tolerance := orDefault(opts.Tolerance, DefaultTolerance)
	if !(tolerance > 0) {
		return nil, fmt.Errorf("%w: tolerance %v must be positive", ErrInvalidParameter, tolerance)
	}
	maxIterations := opts.MaxIterations
	if maxIterations == 0 {
		maxIterations = DefaultMaxIterations
	}
	if maxIterations < 0 {
		return nil, fmt.Errorf("%w: max iterations %d must be positive", ErrInvalidParameter, maxIterations)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Solver{
		reward:        append([]float64(nil), opts.Reward...),
		obstacles:     obstacles,
		endCell:       endCell,
		wind:          wind,
		beta:          beta,
		backup:        backup,
		sharpness:     sharpness,
		tolerance:     tolerance,
		maxIterations: maxIterations,
		progress:      opts.Progress,
		logger:        logger,
	}, nil
}

func validateWind(w Wind) error {
	if w.Intended < 0 || w.Other < 0 || math.Abs(w.Intended+float64(NumActions-1)*w.Other-1) > 1e-9 {
		return fmt.Errorf("%w: wind weights %+v do not form a distribution", ErrInvalidParameter, w)
	}
	return nil
}

func orDefault(val, def float64) float64 {
	if val == 0 {
		return def
	}
	return val
}

// Backup performs one Bellman update from prev.Values and returns the new values and the Q table
// they were aggregated from.
func (s *Solver) Backup(prev State) State {
	future := s.futureValues(prev.Values)

	q := mat.NewDense(NumCells, NumActions, nil)
	next := make([]float64, NumCells)
	for i := 0; i < NumCells; i++ {
		row := q.RawRowView(i)
		for j := range row {
			row[j] = s.reward[i] + s.beta*future[i][j]
		}
		if s.backup == BackupSoft {
			next[i] = SoftMax(row, s.sharpness)
		} else {
			next[i] = HardMax(row)
		}
	}
	return State{Values: next, Q: q}
}

// futureValues is the wind-weighted expected value of each intended action, per cell.
func (s *Solver) futureValues(values []float64) [][NumActions]float64 {
	future := make([][NumActions]float64, NumCells)
	for i := range future {
		future[i] = s.wind.ExpectedAll(i, values, &s.obstacles)
	}
	// The end cell is absorbing: once there, no further discounted value accrues.
	if s.endCell >= 0 {
		future[s.endCell] = [NumActions]float64{}
	}
	return future
}

// Solve iterates backups until convergence, the iteration cap, or context cancellation.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	var cur State
	next := State{Values: make([]float64, NumCells)}
	for i := range next.Values {
		next.Values[i] = 1
	}

	for iter := 1; iter <= s.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("value iteration interrupted at iteration %d: %w", iter, ctx.Err())
		default:
		}

		cur = next
		next = s.Backup(cur)
		residual := Residual(cur.Values, next.Values)
		converged := residual <= s.tolerance

		s.logger.Debug("backup", "iteration", iter, "residual", residual)
		if s.progress != nil {
			s.progress(ctx, Snapshot{
				Iteration: iter,
				Residual:  residual,
				Values:    append([]float64(nil), next.Values...),
				Converged: converged,
			})
		}

		if converged {
			s.logger.Info("value iteration converged",
				"iterations", iter,
				"residual", residual,
				"backup", string(s.backup))
			return &Result{
				Values:     next.Values,
				Q:          next.Q,
				Iterations: iter,
				Residual:   residual,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: tolerance %v not reached in %d iterations", ErrNonConvergence, s.tolerance, s.maxIterations)
}

// Residual is the max-norm distance between two value vectors, or +Inf if their lengths differ.
func Residual(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, math.Inf(1))
}

// Converged reports whether max_i |prev_i - next_i| <= tol. It is symmetric in its vector arguments.
func Converged(prev, next []float64, tol float64) bool {
	return Residual(prev, next) <= tol
}

// HardMax is the hard backup of a Q row.
func HardMax(row []float64) float64 {
	return floats.Max(row)
}

// SoftMax is the log-sum-exp backup of a Q row at sharpness tau: ln(sum_j exp(tau*q_j)) / tau,
// evaluated as m + ln(sum_j exp(tau*(q_j-m))) / tau with m the row maximum. The log term is
// never negative, so the result is never below HardMax(row), and it exceeds it by at most
// ln(len(row))/tau.
func SoftMax(row []float64, tau float64) float64 {
	m := floats.Max(row)
	shifted := append([]float64(nil), row...)
	floats.AddConst(-m, shifted)
	floats.Scale(tau, shifted)
	return m + floats.LogSumExp(shifted)/tau
}

// Result is a converged solve.
type Result struct {
	// Values is the converged state-value vector, 0-based by cell.
	Values []float64
	// Q is the NumCells x NumActions action-value table of the final backup.
	Q *mat.Dense
	// Iterations is the number of backups performed.
	Iterations int
	// Residual is the max-norm distance of the final backup.
	Residual float64
}

// Flatten returns the values followed by Q in row-major order (cell-major, then action),
// NumCells + NumCells*NumActions floats in total.
func (r *Result) Flatten() []float64 {
	flat := make([]float64, 0, NumCells*(1+NumActions))
	flat = append(flat, r.Values...)
	for i := 0; i < NumCells; i++ {
		flat = append(flat, r.Q.RawRowView(i)...)
	}
	return flat
}

// QRows copies Q into a slice of rows, e.g. for serialization.
func (r *Result) QRows() [][]float64 {
	rows := make([][]float64, NumCells)
	for i := range rows {
		rows[i] = mat.Row(nil, i, r.Q)
	}
	return rows
}
