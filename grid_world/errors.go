package grid_world

import "errors"

// Input validation errors. All of them are caller configuration errors; wrap them with context
// and let the caller decide, nothing here is retried.
var (
	// ErrInvalidDimension is returned when a reward or policy vector is not NumCells long.
	ErrInvalidDimension error = errors.New("invalid dimension")
	// ErrInvalidCellIndex is returned for obstacle, end-cell or cell indices outside the grid.
	ErrInvalidCellIndex error = errors.New("invalid cell index")
	// ErrInvalidActionCode is returned for action or policy codes outside the code table.
	ErrInvalidActionCode error = errors.New("invalid action code")
	// ErrInvalidParameter is returned for out-of-range scalars such as wind or discount.
	ErrInvalidParameter error = errors.New("invalid parameter")
	// ErrNoOpenCell is returned when every cell is an obstacle, so no start cell exists.
	ErrNoOpenCell error = errors.New("no open cell")
)
