// Package fsm is the behavior state machine of the robot.
//
// Each Update is one control tick: metrics drift, reactive obstacle overrides,
// metric and dwell scheduling, then the handler of the current state emits motor commands.
// The machine is single-threaded: Update, TransitionTo and Nudge must be called from the
// control loop. State may be read from any goroutine.
package fsm

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/hardware"
	"github.com/dewwy/petbot/internal/navigation"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/logger"
	"go.uber.org/zap"
)

// Metrics are the internal drives behind scheduling, each in [0, 100].
type Metrics struct {
	Boredom   float64 `json:"boredom"`
	Curiosity float64 `json:"curiosity"`
	Tiredness float64 `json:"tiredness"`
}

func (m *Metrics) apply(r MetricRates, seconds float64) {
	m.Boredom = rules.Clamp(m.Boredom+r.Boredom*seconds, 0, 100)
	m.Curiosity = rules.Clamp(m.Curiosity+r.Curiosity*seconds, 0, 100)
	m.Tiredness = rules.Clamp(m.Tiredness+r.Tiredness*seconds, 0, 100)
}

// Observer receives notable moments of the control loop. All methods are optional
// in spirit; embed NopObserver to implement a subset.
type Observer interface {
	ObstacleDetected(distance float64)
	Startled(distance, previous float64)
	StuckDetected(count int)
	ManeuverRestarted(m navigation.Maneuver)
	MicroBehavior(state behavior.State, name string)
	HandlerFailed(state behavior.State, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) ObstacleDetected(float64) {}
func (NopObserver) Startled(float64, float64) {}
func (NopObserver) StuckDetected(int) {}
func (NopObserver) ManeuverRestarted(navigation.Maneuver) {}
func (NopObserver) MicroBehavior(behavior.State, string) {}
func (NopObserver) HandlerFailed(behavior.State, error) {}

// Deps are the collaborators of the state machine. Only OnStateChange is expected;
// everything else may be nil.
type Deps struct {
	Sensor        hardware.DistanceSensor
	Motors        hardware.MotorActuator
	Positions     hardware.PositionSource
	OnStateChange func(behavior.State)
	Observer      Observer
	Clock         clock.Clock
	Rand          *rand.Rand
	Logger        *logger.Logger
}

type reading struct {
	distance float64
	ok       bool
}

type handlerFunc func(now time.Time, r reading)

// StateMachine drives the behavior modes.
type StateMachine struct {
	cfg       Config
	sensor    hardware.DistanceSensor
	motors    hardware.MotorActuator
	positions hardware.PositionSource
	notify    func(behavior.State)
	observer  Observer
	clock     clock.Clock
	rng       *rand.Rand
	log       *logger.Logger

	current         atomic.Value // behavior.State
	lastStateChange time.Time
	lastUpdate      time.Time
	metrics         Metrics

	lastDistance  float64
	hasLast       bool
	sensorFailing bool

	avoidance *navigation.Avoidance
	stuck     *navigation.StuckDetector
	handlers  map[behavior.State]handlerFunc

	// handler scratch, cleared on every transition
	wanderUntil time.Time
	wanderDir   navigation.Direction
	lastBreath  time.Time
	nudge       *nudge
}

// New creates a state machine in Idle.
func New(cfg Config, deps Deps) *StateMachine {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if cfg.Dwell == nil {
		cfg.Dwell = DefaultDwell()
	}

	now := deps.Clock.Now()
	sm := &StateMachine{
		cfg:             cfg,
		sensor:          deps.Sensor,
		motors:          hardware.OrNop(deps.Motors),
		positions:       deps.Positions,
		notify:          deps.OnStateChange,
		observer:        deps.Observer,
		clock:           deps.Clock,
		rng:             deps.Rand,
		log:             deps.Logger,
		lastStateChange: now,
		avoidance:       navigation.NewAvoidance(cfg.Avoidance, deps.Rand),
		stuck:           navigation.NewStuckDetector(cfg.Stuck),
	}
	sm.current.Store(behavior.Idle)
	sm.handlers = map[behavior.State]handlerFunc{
		behavior.Idle:        sm.handleIdle,
		behavior.Roaming:     sm.handleRoaming,
		behavior.Avoiding:    sm.handleAvoiding,
		behavior.Interacting: sm.handleInteracting,
		behavior.Searching:   sm.handleSearching,
		behavior.Sleeping:    sm.handleSleeping,
		behavior.Playing:     sm.handlePlaying,
		behavior.Startled:    sm.handleStartled,
		behavior.Curious:     sm.handleCurious,
	}
	return sm
}

// State returns the current behavior state. Safe from any goroutine.
func (sm *StateMachine) State() behavior.State {
	return sm.current.Load().(behavior.State)
}

// LastStateChange is when the current state was entered.
func (sm *StateMachine) LastStateChange() time.Time {
	return sm.lastStateChange
}

// Metrics returns a copy of the behavior metrics.
func (sm *StateMachine) Metrics() Metrics {
	return sm.metrics
}

// Maneuver returns the running avoidance maneuver, if any.
func (sm *StateMachine) Maneuver() (navigation.Maneuver, bool) {
	return sm.avoidance.Current()
}

// StuckCount is the stuck detector's current count.
func (sm *StateMachine) StuckCount() int {
	return sm.stuck.Count()
}

// TransitionTo forces a state. Unknown states are rejected without any change.
func (sm *StateMachine) TransitionTo(s behavior.State) error {
	if !s.Valid() {
		return fmt.Errorf("transition to %q: %w", string(s), behavior.ErrUnknownState)
	}
	sm.transition(sm.clock.Now(), s)
	return nil
}

func (sm *StateMachine) transition(now time.Time, next behavior.State) {
	prev := sm.State()
	if prev == behavior.Avoiding && next != behavior.Avoiding {
		sm.avoidance.Reset()
		sm.motors.Stop()
	}

	sm.current.Store(next)
	sm.lastStateChange = now
	sm.wanderUntil = time.Time{}
	sm.nudge = nil

	switch {
	case next == behavior.Avoiding:
		sm.avoidance.Start(now, sm.situation())
	case !next.Locomotive():
		sm.stuck.Reset()
	}

	sm.log.Debug("state transition", zap.String("from", prev.String()), zap.String("to", next.String()))
	if sm.notify != nil {
		sm.notify(next)
	}
}

func (sm *StateMachine) situation() navigation.Situation {
	s := navigation.Situation{StuckCount: sm.stuck.Count()}
	if sm.positions == nil {
		return s
	}
	s.X, s.Y, s.HasPosition = sm.positions.Position()
	if b, ok := sm.positions.(hardware.BoundsSource); ok {
		s.Bounds = b.Bounds()
	}
	return s
}

// Update runs one control tick.
func (sm *StateMachine) Update() {
	now := sm.clock.Now()
	sm.updateMetrics(now)

	r := sm.readDistance()
	overridden := sm.checkReactive(now, r)
	if !overridden {
		overridden = sm.checkStuck(now)
	}
	if !overridden {
		sm.checkScheduled(now)
	}
	sm.runHandler(now, r)

	if r.ok {
		sm.lastDistance = r.distance
		sm.hasLast = true
	}
}

func (sm *StateMachine) updateMetrics(now time.Time) {
	if !sm.lastUpdate.IsZero() {
		if dt := now.Sub(sm.lastUpdate).Seconds(); dt > 0 {
			sm.metrics.apply(sm.cfg.rates(sm.State()), dt)
		}
	}
	sm.lastUpdate = now
}

func (sm *StateMachine) readDistance() reading {
	if sm.sensor == nil {
		return reading{}
	}
	d, err := sm.sensor.MeasureDistance()
	if err != nil {
		if !sm.sensorFailing {
			sm.log.Warn("distance sensor unavailable", zap.Error(err))
			sm.sensorFailing = true
		}
		return reading{}
	}
	if sm.sensorFailing {
		sm.log.Info("distance sensor recovered")
		sm.sensorFailing = false
	}
	return reading{distance: d, ok: true}
}

// checkReactive applies the startle and proximity overrides.
func (sm *StateMachine) checkReactive(now time.Time, r reading) bool {
	if !r.ok {
		return false
	}
	state := sm.State()
	minDist := sm.cfg.MinObstacleDistance

	if state != behavior.Avoiding && state != behavior.Startled &&
		sm.hasLast && sm.lastDistance > 0 &&
		r.distance >= minDist && r.distance < minDist*sm.cfg.StartleRangeFactor &&
		(sm.lastDistance-r.distance)/sm.lastDistance > sm.cfg.StartleDropRatio &&
		rules.Chance(sm.rng, sm.cfg.StartleChance) {
		sm.observer.Startled(r.distance, sm.lastDistance)
		sm.transition(now, behavior.Startled)
		return true
	}

	if r.distance < minDist && state != behavior.Avoiding {
		sm.observer.ObstacleDetected(r.distance)
		sm.transition(now, behavior.Avoiding)
		return true
	}
	return false
}

func (sm *StateMachine) checkStuck(now time.Time) bool {
	if sm.positions == nil || !sm.State().Locomotive() {
		return false
	}
	x, y, ok := sm.positions.Position()
	if !ok || !sm.stuck.Observe(now, x, y) {
		return false
	}
	sm.observer.StuckDetected(sm.stuck.Count())
	sm.transition(now, behavior.Avoiding)
	return true
}

// checkScheduled applies metric thresholds, then dwell expiry.
func (sm *StateMachine) checkScheduled(now time.Time) {
	state := sm.State()
	if state == behavior.Avoiding || state == behavior.Startled {
		if state == behavior.Startled {
			sm.checkDwell(now, state)
		}
		return
	}

	switch {
	case sm.metrics.Boredom > sm.cfg.BoredomThreshold && state != behavior.Playing:
		sm.metrics.Boredom = 0
		sm.transition(now, behavior.Playing)
	case sm.metrics.Tiredness > sm.cfg.TirednessThreshold && state != behavior.Sleeping:
		sm.metrics.Tiredness = 0
		sm.transition(now, behavior.Sleeping)
	case sm.metrics.Curiosity > sm.cfg.CuriosityThreshold && state == behavior.Idle:
		sm.metrics.Curiosity = 0
		sm.transition(now, behavior.Curious)
	default:
		sm.checkDwell(now, state)
	}
}

func (sm *StateMachine) checkDwell(now time.Time, state behavior.State) {
	dwell, ok := sm.cfg.Dwell[state]
	if !ok || !sm.dwellExceeded(now, dwell) {
		return
	}
	next, ok := rules.WeightedChoice(sm.rng, nextWeights(state, sm.metrics))
	if !ok {
		next = behavior.Idle
	}
	sm.transition(now, next)
}

// dwellExceeded re-samples the dwell threshold on every call.
func (sm *StateMachine) dwellExceeded(now time.Time, dwell rules.DwellRange) bool {
	return dwell.Exceeded(sm.rng, now.Sub(sm.lastStateChange))
}

func (sm *StateMachine) runHandler(now time.Time, r reading) {
	state := sm.State()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("handler %s panicked: %v", state, rec)
			sm.log.Error("state handler failed", zap.String("state", state.String()), zap.Error(err))
			sm.observer.HandlerFailed(state, err)
		}
	}()
	if h := sm.handlers[state]; h != nil {
		h(now, r)
	}
}
