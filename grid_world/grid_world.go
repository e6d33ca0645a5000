package grid_world

import (
	"fmt"
)

// The grid is a fixed 5x5 world addressed by a row-major linear index, e.g. index = row*Cols + col.
// Externally (configs, http, the policy arrays) cells are 1-based; everything in this package is
// 0-based unless a function says otherwise.
const (
	Rows       = 5
	Cols       = 5
	NumCells   = Rows * Cols
	NumActions = 4
)

// Action is one of the four primitive moves. The numeric codes are part of the external
// interface (policy arrays use them) and must not be renumbered.
type Action int

const (
	Up    Action = 1
	Down  Action = 2
	Left  Action = 3
	Right Action = 4
)

// Actions lists the primitive actions in code order; column j of a Q table is Actions[j].
var Actions = [NumActions]Action{Up, Down, Left, Right}

// Valid reports whether the action is one of the four primitive codes.
func (a Action) Valid() bool {
	return a >= Up && a <= Right
}

// Index returns the 0-based column of the action in a Q table row.
func (a Action) Index() int {
	return int(a) - 1
}

// Offset is the change in linear index caused by the action, ignoring walls.
func (a Action) Offset() int {
	switch a {
	case Up:
		return -Cols
	case Down:
		return Cols
	case Left:
		return -1
	case Right:
		return 1
	}
	return 0
}

func (a Action) String() string {
	switch a {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Obstacles is the set of blocked cells for one solve. The zero value has no obstacles.
type Obstacles struct {
	blocked [NumCells]bool
}

// NewObstacles builds the obstacle set from 1-based cell indices, as supplied by callers.
// Duplicates are harmless.
func NewObstacles(oneBased []int) (Obstacles, error) {
	var obs Obstacles
	for _, c := range oneBased {
		cell, err := FromOneBased(c)
		if err != nil {
			return Obstacles{}, fmt.Errorf("obstacle: %w", err)
		}
		obs.blocked[cell] = true
	}
	return obs, nil
}

// Contains reports whether the 0-based cell is an obstacle.
func (o *Obstacles) Contains(cell int) bool {
	return cell >= 0 && cell < NumCells && o.blocked[cell]
}

// Len returns the number of obstacle cells.
func (o *Obstacles) Len() (n int) {
	for _, b := range o.blocked {
		if b {
			n++
		}
	}
	return
}

// OneBased returns the obstacle cells in ascending 1-based order.
func (o *Obstacles) OneBased() (cells []int) {
	for i, b := range o.blocked {
		if b {
			cells = append(cells, ToOneBased(i))
		}
	}
	return
}

// FromOneBased converts an external 1-based cell index into a 0-based one.
func FromOneBased(cell int) (int, error) {
	if cell < 1 || cell > NumCells {
		return 0, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCellIndex, cell, NumCells)
	}
	return cell - 1, nil
}

// ToOneBased converts a 0-based cell index to the external 1-based form.
func ToOneBased(cell int) int {
	return cell + 1
}

// RowCol splits a 0-based cell index into its grid coordinates.
func RowCol(cell int) (row, col int) {
	return cell / Cols, cell % Cols
}

// HitsBoundary reports whether the action would walk the agent off the grid from the cell.
func HitsBoundary(cell int, action Action) bool {
	switch action {
	case Up:
		return cell < Cols
	case Down:
		return cell >= NumCells-Cols
	case Left:
		return cell%Cols == 0
	case Right:
		return cell%Cols == Cols-1
	}
	return false
}

// Move returns the cell reached by taking the action from the 0-based cell. A move off the grid
// or into an obstacle leaves the agent where it is.
// Note the obstacle rule only blocks entering an obstacle; an agent that starts on an obstacle
// may leave it. This matches the historical dynamics and is left as-is.
func Move(cell int, action Action, obstacles *Obstacles) (int, error) {
	if cell < 0 || cell >= NumCells {
		return cell, fmt.Errorf("%w: cell %d not in 0..%d", ErrInvalidCellIndex, cell, NumCells-1)
	}
	if !action.Valid() {
		return cell, fmt.Errorf("%w: %d", ErrInvalidActionCode, int(action))
	}
	return step(cell, action, obstacles), nil
}

// step is Move without validation, for the hot loops that only iterate Actions.
func step(cell int, action Action, obstacles *Obstacles) int {
	if HitsBoundary(cell, action) {
		return cell
	}
	next := cell + action.Offset()
	if obstacles != nil && obstacles.Contains(next) {
		return cell
	}
	return next
}

// Successors returns the destination of every action from the cell, indexed like Actions.
func Successors(cell int, obstacles *Obstacles) (next [NumActions]int) {
	for j, a := range Actions {
		next[j] = step(cell, a, obstacles)
	}
	return
}
