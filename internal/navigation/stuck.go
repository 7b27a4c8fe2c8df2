package navigation

import (
	"math"
	"time"
)

// StuckConfig tunes the stuck detector.
type StuckConfig struct {
	Window         int           `yaml:"window"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Closeness      float64       `yaml:"closeness"`
	Threshold      int           `yaml:"threshold"`
}

// DefaultStuckConfig returns a 5 position window sampled every second.
func DefaultStuckConfig() StuckConfig {
	return StuckConfig{
		Window:         5,
		SampleInterval: time.Second,
		Closeness:      20,
		Threshold:      3,
	}
}

type point struct{ x, y float64 }

// StuckDetector flags the robot as immobile when its recent positions stay clustered.
type StuckDetector struct {
	cfg        StuckConfig
	positions  []point
	next       int
	filled     int
	lastSample time.Time
	count      int
}

// NewStuckDetector creates a detector. A non-positive window falls back to 5.
func NewStuckDetector(cfg StuckConfig) *StuckDetector {
	if cfg.Window <= 1 {
		cfg.Window = 5
	}
	return &StuckDetector{
		cfg:       cfg,
		positions: make([]point, cfg.Window),
	}
}

// Observe offers a position taken at now. Positions arriving faster than the sample
// interval are ignored. Returns true when this sample pushed the stuck count past the
// threshold.
func (d *StuckDetector) Observe(now time.Time, x, y float64) bool {
	if !d.lastSample.IsZero() && now.Sub(d.lastSample) < d.cfg.SampleInterval {
		return false
	}
	d.lastSample = now

	d.positions[d.next] = point{x, y}
	d.next = (d.next + 1) % len(d.positions)
	if d.filled < len(d.positions) {
		d.filled++
	}
	if d.filled < len(d.positions) {
		return false
	}

	if d.spread() < d.cfg.Closeness {
		d.count++
	} else {
		d.count = 0
	}
	return d.Stuck()
}

// spread is the largest pairwise distance among buffered positions.
func (d *StuckDetector) spread() float64 {
	maxDist := 0.0
	for i := 0; i < d.filled; i++ {
		for j := i + 1; j < d.filled; j++ {
			dx := d.positions[i].x - d.positions[j].x
			dy := d.positions[i].y - d.positions[j].y
			if dist := math.Hypot(dx, dy); dist > maxDist {
				maxDist = dist
			}
		}
	}
	return maxDist
}

// Stuck reports whether the count is over the threshold.
func (d *StuckDetector) Stuck() bool {
	return d.count > d.cfg.Threshold
}

// Count is the number of consecutive clustered samples.
func (d *StuckDetector) Count() int {
	return d.count
}

// Reset clears the window and the count.
func (d *StuckDetector) Reset() {
	d.next = 0
	d.filled = 0
	d.count = 0
	d.lastSample = time.Time{}
}
