package grid_world

import "fmt"

// Wind is the stochastic outcome model: the agent's realized action equals its intended action
// with probability Intended, and is each of the other three actions with probability Other.
type Wind struct {
	Intended float64
	Other    float64
}

// LegacyWind is the fixed model of the first solver, which predates the wind parameter.
// Other is 0.1 rather than (1-0.7)/3; the weights still sum to one, and the constant is kept
// as-is so old results reproduce.
var LegacyWind = Wind{Intended: 0.7, Other: 0.1}

// NewWind returns the model for wind w, splitting the remaining 1-w evenly over the other actions.
func NewWind(w float64) (Wind, error) {
	if !(w >= 0 && w <= 1) {
		return Wind{}, fmt.Errorf("%w: wind %v not in [0,1]", ErrInvalidParameter, w)
	}
	return Wind{Intended: w, Other: (1 - w) / float64(NumActions-1)}, nil
}

// Distribution returns the probability of each realized action, indexed like Actions.
func (w Wind) Distribution(intended Action) (dist [NumActions]float64) {
	for j, a := range Actions {
		if a == intended {
			dist[j] = w.Intended
		} else {
			dist[j] = w.Other
		}
	}
	return
}

// Expected is the wind-weighted value of attempting the intended action from the 0-based cell:
// the sum over realized actions of P(realized) * values[cell reached by realized].
func (w Wind) Expected(cell int, intended Action, values []float64, obstacles *Obstacles) float64 {
	dist := w.Distribution(intended)
	next := Successors(cell, obstacles)
	expected := 0.0
	for k := range Actions {
		expected += dist[k] * values[next[k]]
	}
	return expected
}

// ExpectedAll returns Expected for every intended action, indexed like Actions.
func (w Wind) ExpectedAll(cell int, values []float64, obstacles *Obstacles) (expected [NumActions]float64) {
	next := Successors(cell, obstacles)
	for j, intended := range Actions {
		dist := w.Distribution(intended)
		for k := range Actions {
			expected[j] += dist[k] * values[next[k]]
		}
	}
	return
}
