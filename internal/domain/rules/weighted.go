// Package rules contains the pure calculation logic for behavior mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

// Rand is the subset of *rand.Rand the rules draw from.
type Rand interface {
	Float64() float64
}

// Weighted pairs a candidate with its selection weight.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// WeightedChoice draws one candidate with probability proportional to its weight.
// Candidates with zero or negative weight are never drawn.
// Returns false when no candidate has a positive weight.
func WeightedChoice[T any](rng Rand, options []Weighted[T]) (T, bool) {
	var zero T
	total := 0.0
	for _, o := range options {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total <= 0 {
		return zero, false
	}

	r := rng.Float64() * total
	cumulative := 0.0
	var last T
	for _, o := range options {
		if o.Weight <= 0 {
			continue
		}
		cumulative += o.Weight
		last = o.Value
		if r < cumulative {
			return o.Value, true
		}
	}
	// Floating point rounding can leave r == total.
	return last, true
}

// Uniform returns a value in [lo, hi).
func Uniform(rng Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Chance reports whether a draw lands under probability p.
func Chance(rng Rand, p float64) bool {
	return rng.Float64() < p
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
