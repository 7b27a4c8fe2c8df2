// Package sim is a headless stand-in for the robot's body: a rectangular arena with
// obstacles, motors that integrate a pose and an ultrasonic sensor that ray-casts
// against the arena.
package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/aquilax/go-perlin"
	"github.com/dewwy/petbot/internal/hardware"
)

// Rect is an axis-aligned obstacle.
type Rect struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

func (r Rect) contains(x, y, margin float64) bool {
	return x >= r.MinX-margin && x <= r.MaxX+margin && y >= r.MinY-margin && y <= r.MaxY+margin
}

// Config describes the arena and the sensor model.
type Config struct {
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Obstacles []Rect  `yaml:"obstacles"`

	StartX       float64 `yaml:"start_x"`
	StartY       float64 `yaml:"start_y"`
	StartHeading float64 `yaml:"start_heading"` // radians, 0 faces +x
	RobotRadius  float64 `yaml:"robot_radius"`

	StepSize float64 `yaml:"step_size"` // units per motor command at full speed
	TurnStep float64 `yaml:"turn_step"` // radians per turn command at full speed

	MaxRange       float64 `yaml:"max_range"`
	MinReading     float64 `yaml:"min_reading"`
	NoiseFactor    float64 `yaml:"noise_factor"`
	JumpChance     float64 `yaml:"jump_chance"`
	JumpMin        float64 `yaml:"jump_min"`
	DriftAmplitude float64 `yaml:"drift_amplitude"`
	Seed           int64   `yaml:"seed"`
}

// DefaultConfig is a 400x300 room with a couch and a box.
func DefaultConfig() Config {
	return Config{
		Width:  400,
		Height: 300,
		Obstacles: []Rect{
			{MinX: 120, MinY: 40, MaxX: 200, MaxY: 80},
			{MinX: 280, MinY: 180, MaxX: 320, MaxY: 220},
		},
		StartX:         60,
		StartY:         150,
		RobotRadius:    8,
		StepSize:       5,
		TurnStep:       0.1,
		MaxRange:       200,
		MinReading:     5,
		NoiseFactor:    0.05,
		JumpChance:     0.1,
		JumpMin:        10,
		DriftAmplitude: 8,
		Seed:           1,
	}
}

// World is the simulated robot and its surroundings. It implements
// hardware.DistanceSensor, hardware.MotorActuator and hardware.PositionSource.
type World struct {
	mu  sync.Mutex
	cfg Config

	x, y, heading float64
	speed         float64 // last commanded signed speed, for status only

	rng      *rand.Rand
	drift    *perlin.Perlin
	driftT   float64
	commands int
	bumps    int
}

// NewWorld places the robot at the configured start pose.
func NewWorld(cfg Config) *World {
	return &World{
		cfg:     cfg,
		x:       cfg.StartX,
		y:       cfg.StartY,
		heading: cfg.StartHeading,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		drift:   perlin.NewPerlin(2, 2, 3, cfg.Seed),
	}
}

// Pose returns the position and heading.
func (w *World) Pose() (x, y, heading float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.x, w.y, w.heading
}

// Position implements hardware.PositionSource.
func (w *World) Position() (float64, float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.x, w.y, true
}

// Bounds implements hardware.BoundsSource.
func (w *World) Bounds() hardware.Bounds {
	return hardware.Bounds{MinX: 0, MinY: 0, MaxX: w.cfg.Width, MaxY: w.cfg.Height}
}

// Bumps counts motor commands that were blocked by a wall or an obstacle.
func (w *World) Bumps() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bumps
}

// Commands counts every motor command received.
func (w *World) Commands() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commands
}

func (w *World) MoveForward(speed float64) {
	w.drive(hardware.ClampSpeed(speed))
}

func (w *World) MoveBackward(speed float64) {
	w.drive(-hardware.ClampSpeed(speed))
}

func (w *World) TurnLeft(speed float64) {
	w.turn(-math.Max(0.1, hardware.ClampSpeed(speed)))
}

func (w *World) TurnRight(speed float64) {
	w.turn(math.Max(0.1, hardware.ClampSpeed(speed)))
}

func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commands++
	w.speed = 0
}

func (w *World) drive(signed float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commands++
	w.speed = signed

	step := signed * w.cfg.StepSize
	nx := w.x + math.Cos(w.heading)*step
	ny := w.y + math.Sin(w.heading)*step
	if w.blocked(nx, ny) {
		w.bumps++
		return
	}
	w.x, w.y = nx, ny
}

func (w *World) turn(factor float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commands++
	w.heading = math.Mod(w.heading+factor*w.cfg.TurnStep+2*math.Pi, 2*math.Pi)
}

// blocked reports whether the robot body would overlap a wall or an obstacle at (x, y).
func (w *World) blocked(x, y float64) bool {
	r := w.cfg.RobotRadius
	if x < r || y < r || x > w.cfg.Width-r || y > w.cfg.Height-r {
		return true
	}
	for _, o := range w.cfg.Obstacles {
		if o.contains(x, y, r) {
			return true
		}
	}
	return false
}
