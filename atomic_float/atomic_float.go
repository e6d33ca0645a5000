package atomic_float

import (
	"math"
	"sync/atomic"
)

/*
Float64 stores a float64 as its IEEE-754 bits in an atomic.Uint64, so solver telemetry can be
written by a solve goroutine while the metrics endpoint reads it. Adds are a compare-and-swap
loop over the bits; there is no unsafe pointer conversion.
*/

// Float64 is a float64 that may be loaded, stored and added to concurrently. The zero value is 0.
type Float64 struct {
	bits atomic.Uint64
}

// Load atomically reads the value.
func (f *Float64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Store atomically sets the value.
func (f *Float64) Store(val float64) {
	f.bits.Store(math.Float64bits(val))
}

// TryAdd makes a single attempt to add addend, reporting whether it won the race.
func (f *Float64) TryAdd(addend float64) (newVal float64, succeeded bool) {
	old := f.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = f.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// Add atomically adds addend and returns the new value.
func (f *Float64) Add(addend float64) (newVal float64) {
	for {
		var ok bool
		if newVal, ok = f.TryAdd(addend); ok {
			return
		}
	}
}
