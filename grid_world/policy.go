package grid_world

import (
	"fmt"
	"sort"
)

// Policy codes name a set of tied intended actions for a cell. Single digits 1-4 are the
// primitive actions, two-digit codes concatenate a pair, and 6-10 enumerate the larger ties.
var policyCodes = map[int][]Action{
	1:  {Up},
	2:  {Down},
	3:  {Left},
	4:  {Right},
	12: {Up, Down},
	13: {Up, Left},
	14: {Up, Right},
	23: {Down, Left},
	24: {Down, Right},
	34: {Left, Right},
	6:  {Up, Down, Left},
	7:  {Up, Down, Right},
	8:  {Up, Left, Right},
	9:  {Down, Left, Right},
	10: {Up, Down, Left, Right},
}

// DecodePolicyCode returns the intended action set for a policy code.
func DecodePolicyCode(code int) ([]Action, error) {
	actions, ok := policyCodes[code]
	if !ok {
		return nil, fmt.Errorf("%w: policy code %d", ErrInvalidActionCode, code)
	}
	return append([]Action(nil), actions...), nil
}

// EncodePolicyCode is the inverse of DecodePolicyCode. Order and duplicates in the input don't matter.
func EncodePolicyCode(actions []Action) (int, error) {
	mask := actionMask(actions)
	for code, set := range policyCodes {
		if actionMask(set) == mask {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: no code for action set %v", ErrInvalidActionCode, actions)
}

// ValidatePolicy checks a policy vector's length and codes.
func ValidatePolicy(policy []int) error {
	if len(policy) != NumCells {
		return fmt.Errorf("%w: policy has %d entries, want %d", ErrInvalidDimension, len(policy), NumCells)
	}
	for i, code := range policy {
		if _, ok := policyCodes[code]; !ok {
			return fmt.Errorf("%w: policy code %d at cell %d", ErrInvalidActionCode, code, ToOneBased(i))
		}
	}
	return nil
}

// Complement returns the primitive actions not in the set, in code order.
func Complement(set []Action) (rest []Action) {
	mask := actionMask(set)
	for _, a := range Actions {
		if mask&(1<<a.Index()) == 0 {
			rest = append(rest, a)
		}
	}
	return
}

// PolicyCodes returns every recognized code in ascending order.
func PolicyCodes() []int {
	codes := make([]int, 0, len(policyCodes))
	for code := range policyCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

func actionMask(actions []Action) (mask int) {
	for _, a := range actions {
		if a.Valid() {
			mask |= 1 << a.Index()
		} else {
			// Poison the mask so invalid actions never match a code.
			mask |= 1 << NumActions
		}
	}
	return
}
