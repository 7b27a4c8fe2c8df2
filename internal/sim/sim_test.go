package sim

import (
	"math"
	"testing"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Obstacles = nil
	cfg.NoiseFactor = 0
	cfg.JumpChance = 0
	cfg.DriftAmplitude = 0
	return cfg
}

func TestWorld_ForwardIntegratesPose(t *testing.T) {
	w := NewWorld(quietConfig())

	w.MoveForward(1)
	w.MoveForward(0.5)

	x, y, _ := w.Pose()
	if math.Abs(x-67.5) > 1e-9 || math.Abs(y-150) > 1e-9 {
		t.Errorf("expected (67.5, 150), got (%.2f, %.2f)", x, y)
	}
	w.MoveBackward(1)
	if x, _, _ = w.Pose(); math.Abs(x-62.5) > 1e-9 {
		t.Errorf("expected 62.5 after backing up, got %.2f", x)
	}
}

func TestWorld_TurnsChangeHeading(t *testing.T) {
	w := NewWorld(quietConfig())

	w.TurnRight(1)
	w.TurnRight(1)
	if _, _, h := w.Pose(); math.Abs(h-0.2) > 1e-9 {
		t.Errorf("expected heading 0.2, got %.3f", h)
	}
	w.TurnLeft(1)
	w.TurnLeft(1)
	w.TurnLeft(1)
	if _, _, h := w.Pose(); math.Abs(h-(2*math.Pi-0.1)) > 1e-9 {
		t.Errorf("expected heading to wrap to 2pi-0.1, got %.3f", h)
	}
}

func TestWorld_WallBlocksMotion(t *testing.T) {
	cfg := quietConfig()
	cfg.StartX = cfg.Width - cfg.RobotRadius - 1
	w := NewWorld(cfg)

	w.MoveForward(1)

	x, _, _ := w.Pose()
	if x != cfg.StartX || w.Bumps() != 1 {
		t.Errorf("expected a bump without motion, got x=%.2f bumps=%d", x, w.Bumps())
	}
}

func TestWorld_SensorSeesWallsAndObstacles(t *testing.T) {
	cfg := quietConfig()
	w := NewWorld(cfg)

	// Facing +x from x=60 on a 400 wide arena: the wall is 340 away, beyond range.
	if d, _ := w.MeasureDistance(); d != cfg.MaxRange {
		t.Errorf("expected max range, got %.1f", d)
	}

	cfg.Obstacles = []Rect{{MinX: 100, MinY: 100, MaxX: 120, MaxY: 200}}
	w = NewWorld(cfg)
	if d, _ := w.MeasureDistance(); math.Abs(d-40) > rayStep {
		t.Errorf("expected ~40 to the obstacle, got %.1f", d)
	}
}

func TestWorld_SensorClampsToMinimum(t *testing.T) {
	cfg := quietConfig()
	cfg.Obstacles = []Rect{{MinX: 62, MinY: 100, MaxX: 80, MaxY: 200}}
	w := NewWorld(cfg)

	if d, _ := w.MeasureDistance(); d != cfg.MinReading {
		t.Errorf("expected the minimum reading, got %.1f", d)
	}
}

func TestWorld_NoisyReadingsStayInRange(t *testing.T) {
	w := NewWorld(DefaultConfig())
	for i := 0; i < 500; i++ {
		d, err := w.MeasureDistance()
		if err != nil || d < 5 || d > 200 {
			t.Fatalf("reading %d out of range: %.1f (%v)", i, d, err)
		}
		if i%10 == 0 {
			w.TurnRight(1)
		}
	}
}
