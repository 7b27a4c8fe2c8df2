// Package engine is the control loop of the robot.
//
// The engine owns the behavior state machine and the personality engine and is the
// only goroutine that mutates them. Other goroutines submit overrides, which are
// validated on the caller side and applied at the start of the next tick.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dewwy/petbot/internal/command"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/fsm"
	"github.com/dewwy/petbot/internal/hardware"
	"github.com/dewwy/petbot/internal/navigation"
	"github.com/dewwy/petbot/internal/personality"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/dewwy/petbot/internal/platform/metrics"
	"go.uber.org/zap"
)

// Config tunes the control loop and its two cores.
type Config struct {
	TickRate       time.Duration      `yaml:"tick_rate"`
	OverrideBuffer int                `yaml:"override_buffer"`
	Behavior       fsm.Config         `yaml:"behavior"`
	Personality    personality.Config `yaml:"personality"`
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		TickRate:       DefaultTickRate,
		OverrideBuffer: 32,
		Behavior:       fsm.DefaultConfig(),
		Personality:    personality.DefaultConfig(),
	}
}

// Deps are the collaborators of the engine. Hardware may be nil for a headless run.
type Deps struct {
	Sensor    hardware.DistanceSensor
	Motors    hardware.MotorActuator
	Positions hardware.PositionSource

	Interactions personality.InteractionLog
	Learned      personality.LearnedStore
	Display      personality.Display

	Events  *events.EventLog
	Metrics *metrics.Collector
	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *logger.Logger
}

// Status is a point-in-time view of the robot, published once per tick.
type Status struct {
	Tick       uint64               `json:"tick"`
	Timestamp  time.Time            `json:"timestamp"`
	State      behavior.State       `json:"state"`
	StateSince time.Time            `json:"state_since"`
	Emotion    emotion.Emotion      `json:"emotion"`
	Metrics    fsm.Metrics          `json:"metrics"`
	Traits     personality.Traits   `json:"traits"`
	Reactivity float64              `json:"reactivity"`
	Maneuver   *navigation.Maneuver `json:"maneuver,omitempty"`
	StuckCount int                  `json:"stuck_count"`
}

// Engine is the central orchestrator of the behavior core.
type Engine struct {
	cfg         Config
	sm          *fsm.StateMachine
	pers        *personality.Engine
	interpreter *command.Interpreter
	eventLog    *events.EventLog
	metrics     *metrics.Collector
	display     personality.Display
	clock       clock.Clock
	logger      *logger.Logger
	ticker      *Ticker

	overrides chan request
	stopMu    sync.RWMutex
	stopped   bool

	lastState behavior.State
	tick      uint64
	status    atomic.Pointer[Status]
}

// New wires the state machine, the personality engine and the command interpreter.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Events == nil {
		deps.Events = events.NewEventLog(events.DefaultCapacity, nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.OverrideBuffer <= 0 {
		cfg.OverrideBuffer = 32
	}

	e := &Engine{
		cfg:       cfg,
		eventLog:  deps.Events,
		metrics:   deps.Metrics,
		display:   deps.Display,
		clock:     deps.Clock,
		logger:    deps.Logger,
		overrides: make(chan request, cfg.OverrideBuffer),
		lastState: behavior.Idle,
	}

	pers, err := personality.New(cfg.Personality, personality.Deps{
		Display: emotionSink{e},
		Log:     deps.Interactions,
		Learned: deps.Learned,
		Clock:   deps.Clock,
		Rand:    deps.Rand,
		Logger:  deps.Logger.Named("personality"),
	})
	if err != nil {
		return nil, err
	}
	e.pers = pers

	e.sm = fsm.New(cfg.Behavior, fsm.Deps{
		Sensor:        deps.Sensor,
		Motors:        deps.Motors,
		Positions:     deps.Positions,
		OnStateChange: e.onStateChange,
		Observer:      loopObserver{e},
		Clock:         deps.Clock,
		Rand:          deps.Rand,
		Logger:        deps.Logger.Named("fsm"),
	})

	// The interpreter runs on caller goroutines and gets its own source.
	e.interpreter = command.NewInterpreter(pers, rand.New(rand.NewSource(deps.Rand.Int63())))

	e.publishStatus()
	return e, nil
}

// Start spawns the control loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("starting behavior engine",
		zap.Any("traits", e.pers.Traits()),
		zap.Float64("reactivity", e.pers.Reactivity()))
	e.ticker = NewTicker(e.cfg.TickRate, e.Tick, e.logger)
	go e.ticker.Start(ctx)
}

// Stop ends the control loop and rejects further overrides.
func (e *Engine) Stop() {
	e.stopMu.Lock()
	e.stopped = true
	e.stopMu.Unlock()
	if e.ticker != nil {
		e.ticker.Stop()
	}
}

// Tick runs one control step: queued overrides, the state machine, then the personality.
func (e *Engine) Tick() {
	start := time.Now()
	e.drainOverrides()
	e.sm.Update()
	e.pers.Update()
	e.tick++
	e.publishStatus()
	e.metrics.RecordTick(time.Since(start))
}

// State is the current behavior state. Safe from any goroutine.
func (e *Engine) State() behavior.State {
	return e.sm.State()
}

// Emotion is the current emotion. Safe from any goroutine.
func (e *Engine) Emotion() emotion.Emotion {
	return e.pers.Emotion()
}

// Status returns the snapshot published by the last tick.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// Events exposes the telemetry log.
func (e *Engine) Events() *events.EventLog {
	return e.eventLog
}

// Personality exposes the personality engine for learned-response reads.
func (e *Engine) Personality() *personality.Engine {
	return e.pers
}

func (e *Engine) publishStatus() {
	st := &Status{
		Tick:       e.tick,
		Timestamp:  e.clock.Now(),
		State:      e.sm.State(),
		StateSince: e.sm.LastStateChange(),
		Emotion:    e.pers.Emotion(),
		Metrics:    e.sm.Metrics(),
		Traits:     e.pers.Traits(),
		Reactivity: e.pers.Reactivity(),
		StuckCount: e.sm.StuckCount(),
	}
	if m, ok := e.sm.Maneuver(); ok {
		st.Maneuver = &m
	}
	e.status.Store(st)
}

// emit appends a telemetry event tagged with the current state and emotion.
func (e *Engine) emit(t events.EventType, payload interface{}) {
	ev := events.BehaviorEvent{
		Timestamp: e.clock.Now(),
		Type:      t,
		Payload:   payload,
	}
	if e.sm != nil {
		ev.State = e.sm.State()
	}
	if e.pers != nil {
		ev.Emotion = e.pers.Emotion()
	}
	e.eventLog.Append(ev)
}

func (e *Engine) onStateChange(s behavior.State) {
	prev := e.lastState
	e.lastState = s
	e.metrics.RecordTransition()
	e.emit(events.EventTypeStateChanged, map[string]interface{}{"from": prev, "to": s})
	e.logger.Event("STATE_CHANGED", "petbot", string(prev)+" -> "+string(s))
	e.pers.OnStateChange(s)
}

// emotionSink receives every emotion change from the personality engine.
type emotionSink struct{ e *Engine }

func (d emotionSink) ShowEmotion(em emotion.Emotion) {
	d.e.metrics.RecordEmotionChange()
	d.e.emit(events.EventTypeEmotionChanged, map[string]interface{}{"emotion": em})
	if d.e.display != nil {
		d.e.display.ShowEmotion(em)
	}
}

// loopObserver turns state machine moments into telemetry and counters.
type loopObserver struct{ e *Engine }

func (o loopObserver) ObstacleDetected(distance float64) {
	o.e.metrics.RecordObstacle()
	o.e.emit(events.EventTypeObstacleDetected, map[string]interface{}{"distance": distance})
}

func (o loopObserver) Startled(distance, previous float64) {
	o.e.metrics.RecordStartle()
	o.e.emit(events.EventTypeStartled, map[string]interface{}{"distance": distance, "previous": previous})
}

func (o loopObserver) StuckDetected(count int) {
	o.e.metrics.RecordStuck()
	o.e.logger.Warn("robot appears stuck", zap.Int("count", count))
	o.e.emit(events.EventTypeStuckDetected, map[string]interface{}{"count": count})
}

func (o loopObserver) ManeuverRestarted(m navigation.Maneuver) {
	o.e.emit(events.EventTypeManeuverRestarted, m)
}

func (o loopObserver) MicroBehavior(state behavior.State, name string) {
	o.e.emit(events.EventTypeMicroBehavior, map[string]interface{}{"state": state, "name": name})
}

func (o loopObserver) HandlerFailed(state behavior.State, err error) {
	o.e.metrics.RecordHandlerPanic()
	o.e.emit(events.EventTypeHandlerFailed, map[string]interface{}{"state": state, "error": err.Error()})
}
