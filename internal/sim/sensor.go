package sim

import (
	"math"
)

const rayStep = 0.5

// MeasureDistance implements hardware.DistanceSensor: the true range along the heading
// plus slow drift, proportional noise and the occasional spurious echo.
func (w *World) MeasureDistance() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.castRay()

	if w.cfg.JumpChance > 0 && w.rng.Float64() < w.cfg.JumpChance {
		lo := math.Min(w.cfg.JumpMin, w.cfg.MaxRange)
		return w.clampReading(lo + w.rng.Float64()*(w.cfg.MaxRange-lo)), nil
	}

	if w.cfg.DriftAmplitude > 0 {
		w.driftT += 0.05
		d += w.drift.Noise1D(w.driftT) * w.cfg.DriftAmplitude
	}
	if w.cfg.NoiseFactor > 0 {
		d += (w.rng.Float64()*2 - 1) * d * w.cfg.NoiseFactor
	}
	return w.clampReading(d), nil
}

// TrueDistance is the noiseless range along the heading.
func (w *World) TrueDistance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.castRay()
}

func (w *World) castRay() float64 {
	dx, dy := math.Cos(w.heading), math.Sin(w.heading)
	for t := 0.0; t < w.cfg.MaxRange; t += rayStep {
		px, py := w.x+dx*t, w.y+dy*t
		if px <= 0 || py <= 0 || px >= w.cfg.Width || py >= w.cfg.Height {
			return t
		}
		for _, o := range w.cfg.Obstacles {
			if o.contains(px, py, 0) {
				return t
			}
		}
	}
	return w.cfg.MaxRange
}

func (w *World) clampReading(d float64) float64 {
	if d < w.cfg.MinReading {
		return w.cfg.MinReading
	}
	if d > w.cfg.MaxRange {
		return w.cfg.MaxRange
	}
	return d
}
