package scenario

import (
	"fmt"
	"math"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/sim"
)

var (
	idle     = []behavior.State{behavior.Idle}
	avoiding = []behavior.State{behavior.Avoiding}
)

func command(text string) *engine.Override {
	return &engine.Override{Type: engine.OverrideCommand, Text: text}
}

func transition(s behavior.State) *engine.Override {
	return &engine.Override{Type: engine.OverrideTransition, State: string(s)}
}

// ObstacleApproach walks toward an obstacle and away again.
func ObstacleApproach() Scenario {
	return Scenario{
		Name:        "obstacle-approach",
		Description: "readings 100,100,15,15,90,90 from idle with a 20 unit threshold",
		Interval:    2 * time.Second,
		Tune:        func(cfg *engine.Config) { cfg.Behavior.MinObstacleDistance = 20 },
		Steps: []Step{
			{Distance: 100, Expect: idle},
			{Distance: 100, Expect: idle},
			{Distance: 15, Expect: avoiding},
			{Distance: 15, Expect: avoiding},
			{Distance: 90, Expect: []behavior.State{behavior.Avoiding, behavior.Roaming}},
			{Distance: 90, Expect: []behavior.State{behavior.Roaming}},
		},
		Verify: func(r *Run) error {
			if n := r.Count(events.EventTypeObstacleDetected); n != 1 {
				return fmt.Errorf("expected one obstacle event, got %d", n)
			}
			return nil
		},
	}
}

// VoiceCommands drives the robot through spoken commands.
func VoiceCommands() Scenario {
	return Scenario{
		Name:        "voice-commands",
		Description: "sleep, wake, play, praise and explore by voice",
		Interval:    2 * time.Second,
		Steps: []Step{
			{Distance: 150, Override: command("Go to sleep"), Expect: []behavior.State{behavior.Sleeping}, Emotion: emotion.Sleepy},
			{Distance: 150, Override: command("wake up!"), Expect: idle},
			{Distance: 150, Override: command("Let's play"), Expect: []behavior.State{behavior.Playing}, Emotion: emotion.Excited},
			{Distance: 150, Override: command("good boy"), Emotion: emotion.Happy},
			{Distance: 150, Override: command("explore the kitchen"), Expect: []behavior.State{behavior.Searching}},
		},
		Verify: func(r *Run) error {
			if n := r.Count(events.EventTypeCommand); n != 5 {
				return fmt.Errorf("expected 5 commands, got %d", n)
			}
			return nil
		},
	}
}

// TeachAndRecall teaches a trick and asks for it.
func TeachAndRecall() Scenario {
	return Scenario{
		Name:        "teach-and-recall",
		Description: "a taught keyword is answered with its response",
		Interval:    2 * time.Second,
		Steps: []Step{
			{Distance: 150, Override: &engine.Override{Type: engine.OverrideTeach, Keyword: "Roll Over", Response: "*rolls over*"}},
			{Distance: 150, Override: command("roll over"), Response: "*rolls over*"},
			{Distance: 150, Override: command("fetch the ball")},
		},
		Verify: func(r *Run) error {
			cmds := r.Events.ByType(events.EventTypeCommand)
			if len(cmds) != 2 {
				return fmt.Errorf("expected 2 commands, got %d", len(cmds))
			}
			if got := r.Engine.Emotion(); got != emotion.Curious {
				return fmt.Errorf("expected an unknown command to leave the robot curious, got %s", got)
			}
			return nil
		},
	}
}

// StuckInPlace roams while the position never changes.
func StuckInPlace() Scenario {
	steps := []Step{{Distance: 150, Override: transition(behavior.Roaming)}}
	for i := 0; i < 6; i++ {
		steps = append(steps, Step{Distance: 150, Expect: []behavior.State{behavior.Roaming}})
	}
	steps = append(steps, Step{Distance: 150, Expect: avoiding})

	return Scenario{
		Name:        "stuck-in-place",
		Description: "roaming without moving forces an avoidance maneuver",
		Interval:    time.Second,
		Position:    &[2]float64{100, 100},
		Steps:       steps,
		Verify: func(r *Run) error {
			if n := r.Count(events.EventTypeStuckDetected); n != 1 {
				return fmt.Errorf("expected one stuck event, got %d", n)
			}
			return nil
		},
	}
}

// RoomRoam lets the robot roam a small simulated room until it meets a wall.
func RoomRoam() Scenario {
	world := sim.DefaultConfig()
	world.Width, world.Height = 160, 120
	world.StartX, world.StartY = 40, 60
	world.Obstacles = nil
	world.NoiseFactor = 0
	world.JumpChance = 0
	world.DriftAmplitude = 0

	return Scenario{
		Name:        "room-roam",
		Description: "roaming in a simulated room reaches a wall and avoids it",
		Interval:    engine.DefaultTickRate,
		World:       &world,
		Steps:       []Step{{Override: transition(behavior.Roaming), Expect: []behavior.State{behavior.Roaming}}},
		Extra:       190,
		Verify: func(r *Run) error {
			if n := r.Count(events.EventTypeObstacleDetected) + r.Count(events.EventTypeStuckDetected); n == 0 {
				return fmt.Errorf("expected the robot to meet a wall")
			}
			x, y, _ := r.World.Pose()
			if math.IsNaN(x) || x < 0 || y < 0 || x > world.Width || y > world.Height {
				return fmt.Errorf("robot left the room at (%.1f, %.1f)", x, y)
			}
			return nil
		},
	}
}

// Builtin returns every shipped scenario.
func Builtin() []Scenario {
	return []Scenario{
		ObstacleApproach(),
		VoiceCommands(),
		TeachAndRecall(),
		StuckInPlace(),
		RoomRoam(),
	}
}
