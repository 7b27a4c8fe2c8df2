package navigation

import (
	"math"
	"time"

	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/hardware"
)

// Step is a phase of an avoidance maneuver.
type Step int

const (
	StepBacking Step = iota
	StepTurning
	StepAdvancing
)

func (s Step) String() string {
	switch s {
	case StepBacking:
		return "backing"
	case StepTurning:
		return "turning"
	case StepAdvancing:
		return "advancing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Direction is the side the robot turns toward.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Outcome reports what a call to Step did.
type Outcome int

const (
	OutcomeInactive Outcome = iota
	OutcomeRunning
	OutcomeRestarted
	OutcomeComplete
)

// AvoidanceConfig tunes the maneuver timing and speeds.
type AvoidanceConfig struct {
	BackupDuration  time.Duration `yaml:"backup_duration"`
	AdvanceDuration time.Duration `yaml:"advance_duration"`
	InnerDistance   float64       `yaml:"inner_distance"`
	BackupSpeed     float64       `yaml:"backup_speed"`
	TurnSpeed       float64       `yaml:"turn_speed"`
	AdvanceSpeed    float64       `yaml:"advance_speed"`
	TurnMin         float64       `yaml:"turn_min"` // seconds of turning before scaling
	TurnMax         float64       `yaml:"turn_max"`
	StuckGain       float64       `yaml:"stuck_gain"`
	MaxTurnScale    float64       `yaml:"max_turn_scale"`
	RoomBias        float64       `yaml:"room_bias"`
}

// DefaultAvoidanceConfig matches an obstacle distance of 20 units.
func DefaultAvoidanceConfig() AvoidanceConfig {
	return AvoidanceConfig{
		BackupDuration:  300 * time.Millisecond,
		AdvanceDuration: 500 * time.Millisecond,
		InnerDistance:   15,
		BackupSpeed:     0.5,
		TurnSpeed:       0.6,
		AdvanceSpeed:    0.5,
		TurnMin:         0.8,
		TurnMax:         1.5,
		StuckGain:       0.3,
		MaxTurnScale:    2.5,
		RoomBias:        0.7,
	}
}

// Situation is what the automaton knows when a maneuver starts.
type Situation struct {
	X, Y        float64
	HasPosition bool
	Bounds      hardware.Bounds
	StuckCount  int
}

// Maneuver is a snapshot of the running maneuver.
type Maneuver struct {
	Step      Step      `json:"step"`
	StartTime time.Time `json:"start_time"`
	StepStart time.Time `json:"step_start"`
	Direction Direction `json:"direction"`
	TurnAngle float64   `json:"turn_angle"`
	Restarts  int       `json:"restarts"`
}

// Avoidance is the backup, turn, advance automaton. At most one maneuver runs at a time.
type Avoidance struct {
	cfg       AvoidanceConfig
	rng       rules.Rand
	active    bool
	maneuver  Maneuver
	situation Situation
}

// NewAvoidance creates an idle automaton.
func NewAvoidance(cfg AvoidanceConfig, rng rules.Rand) *Avoidance {
	return &Avoidance{cfg: cfg, rng: rng}
}

// Start begins a new maneuver, replacing any maneuver already running.
func (a *Avoidance) Start(now time.Time, s Situation) {
	a.situation = s
	a.begin(now)
	a.maneuver.Restarts = 0
}

func (a *Avoidance) begin(now time.Time) {
	scale := math.Min(1+a.cfg.StuckGain*float64(a.situation.StuckCount), a.cfg.MaxTurnScale)
	a.active = true
	a.maneuver = Maneuver{
		Step:      StepBacking,
		StartTime: now,
		StepStart: now,
		Direction: a.pickDirection(),
		TurnAngle: rules.Uniform(a.rng, a.cfg.TurnMin, a.cfg.TurnMax) * scale,
		Restarts:  a.maneuver.Restarts,
	}
}

// pickDirection favors the side with more room, or flips a coin when the pose is unknown.
func (a *Avoidance) pickDirection() Direction {
	s := a.situation
	favored := Right
	bias := 0.5
	if s.HasPosition && s.Bounds.Known() {
		bias = a.cfg.RoomBias
		center := (s.Bounds.MinX + s.Bounds.MaxX) / 2
		if s.X >= center {
			favored = Left
		}
	}
	if rules.Chance(a.rng, bias) {
		return favored
	}
	if favored == Right {
		return Left
	}
	return Right
}

// Step runs one tick of the maneuver. distance is this tick's sensor reading; hasDistance
// is false when no reading was available.
func (a *Avoidance) Step(now time.Time, motors hardware.MotorActuator, distance float64, hasDistance bool) Outcome {
	if !a.active {
		return OutcomeInactive
	}
	motors = hardware.OrNop(motors)
	elapsed := now.Sub(a.maneuver.StepStart)

	switch a.maneuver.Step {
	case StepBacking:
		motors.MoveBackward(a.cfg.BackupSpeed)
		if elapsed >= a.cfg.BackupDuration {
			a.advance(now, StepTurning)
		}
	case StepTurning:
		if a.maneuver.Direction == Left {
			motors.TurnLeft(a.cfg.TurnSpeed)
		} else {
			motors.TurnRight(a.cfg.TurnSpeed)
		}
		if elapsed >= a.turnDuration() {
			a.advance(now, StepAdvancing)
		}
	case StepAdvancing:
		motors.MoveForward(a.cfg.AdvanceSpeed)
		if hasDistance && distance < a.cfg.InnerDistance {
			a.maneuver.Restarts++
			a.begin(now)
			return OutcomeRestarted
		}
		if elapsed >= a.cfg.AdvanceDuration {
			a.active = false
			return OutcomeComplete
		}
	}
	return OutcomeRunning
}

func (a *Avoidance) advance(now time.Time, next Step) {
	a.maneuver.Step = next
	a.maneuver.StepStart = now
}

func (a *Avoidance) turnDuration() time.Duration {
	return time.Duration(a.maneuver.TurnAngle * float64(time.Second))
}

// Reset discards any running maneuver.
func (a *Avoidance) Reset() {
	a.active = false
	a.maneuver = Maneuver{}
}

// Active reports whether a maneuver is running.
func (a *Avoidance) Active() bool {
	return a.active
}

// Current returns the running maneuver.
func (a *Avoidance) Current() (Maneuver, bool) {
	return a.maneuver, a.active
}
