package fsm

import (
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/navigation"
)

// MetricRates are per-second deltas applied to the behavior metrics.
type MetricRates struct {
	Boredom   float64 `yaml:"boredom"`
	Curiosity float64 `yaml:"curiosity"`
	Tiredness float64 `yaml:"tiredness"`
}

// Config tunes the state machine.
type Config struct {
	MinObstacleDistance float64 `yaml:"min_obstacle_distance"`

	// Startle: a sharp drop inside [min, StartleRangeFactor*min).
	StartleDropRatio   float64 `yaml:"startle_drop_ratio"`
	StartleRangeFactor float64 `yaml:"startle_range_factor"`
	StartleChance      float64 `yaml:"startle_chance"`

	Dwell map[behavior.State]rules.DwellRange `yaml:"dwell"`

	Passive MetricRates `yaml:"passive"`
	Active  MetricRates `yaml:"active"`
	Resting MetricRates `yaml:"resting"`
	Engaged MetricRates `yaml:"engaged"`

	BoredomThreshold   float64 `yaml:"boredom_threshold"`
	TirednessThreshold float64 `yaml:"tiredness_threshold"`
	CuriosityThreshold float64 `yaml:"curiosity_threshold"`

	RoamSpeed      float64       `yaml:"roam_speed"`
	SearchSpeed    float64       `yaml:"search_speed"`
	PlaySpeed      float64       `yaml:"play_speed"`
	LookSpeed      float64       `yaml:"look_speed"`
	TurnSpeed      float64       `yaml:"turn_speed"`
	WanderChance   float64       `yaml:"wander_chance"`
	WanderDuration time.Duration `yaml:"wander_duration"`
	FidgetChance   float64       `yaml:"fidget_chance"`
	BreathPeriod   time.Duration `yaml:"breath_period"`
	PlayPhase      time.Duration `yaml:"play_phase"`
	FlinchDuration time.Duration `yaml:"flinch_duration"`
	NudgeDuration  time.Duration `yaml:"nudge_duration"`

	Stuck     navigation.StuckConfig     `yaml:"stuck"`
	Avoidance navigation.AvoidanceConfig `yaml:"avoidance"`
}

func seconds(lo, hi float64) rules.DwellRange {
	return rules.DwellRange{
		Min: time.Duration(lo * float64(time.Second)),
		Max: time.Duration(hi * float64(time.Second)),
	}
}

// DefaultDwell returns the dwell ranges per state. Avoiding has none: the maneuver decides.
func DefaultDwell() map[behavior.State]rules.DwellRange {
	return map[behavior.State]rules.DwellRange{
		behavior.Idle:        seconds(5, 15),
		behavior.Roaming:     seconds(20, 60),
		behavior.Interacting: seconds(10, 30),
		behavior.Searching:   seconds(10, 30),
		behavior.Sleeping:    seconds(10, 30),
		behavior.Playing:     seconds(10, 25),
		behavior.Startled:    seconds(1, 3),
		behavior.Curious:     seconds(5, 15),
	}
}

// DefaultConfig returns the tuning used on the robot.
func DefaultConfig() Config {
	return Config{
		MinObstacleDistance: 20,
		StartleDropRatio:    0.3,
		StartleRangeFactor:  2.0,
		StartleChance:       0.3,
		Dwell:               DefaultDwell(),

		Passive: MetricRates{Boredom: 1.0, Curiosity: 0.8, Tiredness: -0.5},
		Active:  MetricRates{Boredom: -1.5, Tiredness: 0.6},
		Resting: MetricRates{Boredom: 0.2, Tiredness: -2.0},
		Engaged: MetricRates{Boredom: -0.5, Curiosity: -1.0, Tiredness: 0.2},

		BoredomThreshold:   70,
		TirednessThreshold: 80,
		CuriosityThreshold: 90,

		RoamSpeed:      0.7,
		SearchSpeed:    0.4,
		PlaySpeed:      0.8,
		LookSpeed:      0.3,
		TurnSpeed:      0.5,
		WanderChance:   0.05,
		WanderDuration: 500 * time.Millisecond,
		FidgetChance:   0.02,
		BreathPeriod:   4 * time.Second,
		PlayPhase:      600 * time.Millisecond,
		FlinchDuration: 200 * time.Millisecond,
		NudgeDuration:  500 * time.Millisecond,

		Stuck:     navigation.DefaultStuckConfig(),
		Avoidance: navigation.DefaultAvoidanceConfig(),
	}
}

func (c Config) rates(s behavior.State) MetricRates {
	switch s.Category() {
	case behavior.CategoryPassive:
		return c.Passive
	case behavior.CategoryActive:
		return c.Active
	case behavior.CategoryResting:
		return c.Resting
	default:
		return c.Engaged
	}
}
