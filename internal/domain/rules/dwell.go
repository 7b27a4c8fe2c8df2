package rules

import "time"

// DwellRange is the window a state or emotion persists before reconsideration.
type DwellRange struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// Sample draws a dwell duration from the range.
func (d DwellRange) Sample(rng Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rng.Float64()*float64(d.Max-d.Min))
}

// Exceeded reports whether elapsed is past a dwell freshly sampled for this check.
// The threshold is re-drawn on every call, never fixed at entry.
func (d DwellRange) Exceeded(rng Rand, elapsed time.Duration) bool {
	return elapsed > d.Sample(rng)
}
