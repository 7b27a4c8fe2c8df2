package fsm

import (
	"fmt"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/navigation"
)

// NudgeKind is a short manual motion requested by a command.
type NudgeKind string

const (
	NudgeForward  NudgeKind = "forward"
	NudgeBackward NudgeKind = "backward"
	NudgeLeft     NudgeKind = "left"
	NudgeRight    NudgeKind = "right"
)

// ErrUnknownNudge is returned for a nudge kind the robot cannot perform.
var ErrUnknownNudge = fmt.Errorf("%w: unknown nudge", domain.ErrInvalidArgument)

type nudge struct {
	kind  NudgeKind
	until time.Time
}

// Nudge puts the robot in Interacting and runs a short manual motion over the next ticks.
func (sm *StateMachine) Nudge(kind NudgeKind) error {
	switch kind {
	case NudgeForward, NudgeBackward, NudgeLeft, NudgeRight:
	default:
		return fmt.Errorf("nudge %q: %w", string(kind), ErrUnknownNudge)
	}
	now := sm.clock.Now()
	if sm.State() != behavior.Interacting {
		sm.transition(now, behavior.Interacting)
	}
	sm.nudge = &nudge{kind: kind, until: now.Add(sm.cfg.NudgeDuration)}
	return nil
}

func (sm *StateMachine) turn(dir navigation.Direction, speed float64) {
	if dir == navigation.Left {
		sm.motors.TurnLeft(speed)
	} else {
		sm.motors.TurnRight(speed)
	}
}

func (sm *StateMachine) randomDirection() navigation.Direction {
	if rules.Chance(sm.rng, 0.5) {
		return navigation.Left
	}
	return navigation.Right
}

func (sm *StateMachine) micro(name string) {
	sm.observer.MicroBehavior(sm.State(), name)
}

func (sm *StateMachine) handleIdle(now time.Time, _ reading) {
	if rules.Chance(sm.rng, sm.cfg.FidgetChance) {
		sm.turn(sm.randomDirection(), sm.cfg.LookSpeed)
		sm.micro("fidget")
		return
	}
	sm.motors.Stop()
}

func (sm *StateMachine) handleRoaming(now time.Time, _ reading) {
	if now.Before(sm.wanderUntil) {
		sm.turn(sm.wanderDir, sm.cfg.TurnSpeed)
		return
	}
	if rules.Chance(sm.rng, sm.cfg.WanderChance) {
		sm.wanderDir = sm.randomDirection()
		sm.wanderUntil = now.Add(sm.cfg.WanderDuration)
		sm.turn(sm.wanderDir, sm.cfg.TurnSpeed)
		return
	}
	sm.motors.MoveForward(sm.cfg.RoamSpeed)
}

func (sm *StateMachine) handleAvoiding(now time.Time, r reading) {
	switch sm.avoidance.Step(now, sm.motors, r.distance, r.ok) {
	case navigation.OutcomeComplete:
		sm.transition(now, behavior.Roaming)
	case navigation.OutcomeRestarted:
		m, _ := sm.avoidance.Current()
		sm.observer.ManeuverRestarted(m)
	case navigation.OutcomeInactive:
		// Entered without a maneuver, e.g. restored state. Start one now.
		sm.avoidance.Start(now, sm.situation())
		sm.avoidance.Step(now, sm.motors, r.distance, r.ok)
	}
}

func (sm *StateMachine) handleInteracting(now time.Time, _ reading) {
	if sm.nudge == nil {
		sm.motors.Stop()
		return
	}
	if !now.Before(sm.nudge.until) {
		sm.nudge = nil
		sm.motors.Stop()
		return
	}
	speed := sm.cfg.TurnSpeed
	switch sm.nudge.kind {
	case NudgeForward:
		sm.motors.MoveForward(speed)
	case NudgeBackward:
		sm.motors.MoveBackward(speed)
	case NudgeLeft:
		sm.motors.TurnLeft(speed)
	case NudgeRight:
		sm.motors.TurnRight(speed)
	}
}

func (sm *StateMachine) handleSearching(now time.Time, _ reading) {
	if now.Before(sm.wanderUntil) {
		sm.turn(sm.wanderDir, sm.cfg.LookSpeed)
		return
	}
	if rules.Chance(sm.rng, sm.cfg.WanderChance*2) {
		sm.wanderDir = sm.randomDirection()
		sm.wanderUntil = now.Add(sm.cfg.WanderDuration * 2)
		sm.micro("look_around")
		return
	}
	sm.motors.MoveForward(sm.cfg.SearchSpeed)
}

func (sm *StateMachine) handleSleeping(now time.Time, _ reading) {
	sm.motors.Stop()
	if now.Sub(sm.lastBreath) >= sm.cfg.BreathPeriod {
		sm.lastBreath = now
		sm.micro("breathe")
	}
}

// handlePlaying cycles spin left, spin right, dash, retreat.
func (sm *StateMachine) handlePlaying(now time.Time, _ reading) {
	phase := 0
	if sm.cfg.PlayPhase > 0 {
		phase = int(now.Sub(sm.lastStateChange)/sm.cfg.PlayPhase) % 4
	}
	switch phase {
	case 0:
		sm.motors.TurnLeft(sm.cfg.PlaySpeed)
	case 1:
		sm.motors.TurnRight(sm.cfg.PlaySpeed)
	case 2:
		sm.motors.MoveForward(sm.cfg.PlaySpeed)
	default:
		sm.motors.MoveBackward(sm.cfg.PlaySpeed / 2)
	}
}

func (sm *StateMachine) handleStartled(now time.Time, _ reading) {
	if now.Sub(sm.lastStateChange) < sm.cfg.FlinchDuration {
		sm.motors.MoveBackward(sm.cfg.LookSpeed)
		return
	}
	sm.motors.Stop()
}

// handleCurious looks left and right, one second each way.
func (sm *StateMachine) handleCurious(now time.Time, _ reading) {
	if int(now.Sub(sm.lastStateChange)/time.Second)%2 == 0 {
		sm.motors.TurnLeft(sm.cfg.LookSpeed)
	} else {
		sm.motors.TurnRight(sm.cfg.LookSpeed)
	}
}
