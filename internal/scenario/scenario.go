// Package scenario replays scripted sessions against a real engine on a manual clock.
// Each scenario feeds sensor readings and overrides tick by tick and checks the
// resulting behavior state, emotion and telemetry.
package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/dewwy/petbot/internal/command"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/hardware"
	"github.com/dewwy/petbot/internal/personality"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/dewwy/petbot/internal/platform/metrics"
	"github.com/dewwy/petbot/internal/sim"
)

// Epoch is the manual clock's start time for every scenario.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Step is one control tick.
type Step struct {
	Distance float64          // scripted reading; ignored when the scenario runs in a world
	Override *engine.Override // submitted before the tick
	Expect   []behavior.State // acceptable states after the tick, empty accepts any
	Emotion  emotion.Emotion  // expected emotion after the tick, empty accepts any
	Response string           // expected response of the command issued this tick
}

// Scenario is a scripted session.
type Scenario struct {
	Name        string
	Description string
	Interval    time.Duration // clock advance per tick

	Position *[2]float64 // fixed position for the stuck detector
	World    *sim.Config // drive the engine from a simulated arena instead of readings
	Tune     func(cfg *engine.Config)

	Steps    []Step
	Extra    int // ticks to run after the scripted steps
	Verify func(r *Run) error
	Seed   int64
}

// Run is the live state of a scenario, handed to Verify.
type Run struct {
	Engine *engine.Engine
	Events *events.EventLog
	World  *sim.World
	Clock  *clock.Manual
	States []behavior.State
}

// Count returns how many events of type t were recorded.
func (r *Run) Count(t events.EventType) int {
	return len(r.Events.ByType(t))
}

// Result captures the outcome of a scenario.
type Result struct {
	Name   string
	Ticks  int
	States []behavior.State
	Passed bool
	Reason string
}

type scriptedSensor struct{ distance float64 }

func (s *scriptedSensor) MeasureDistance() (float64, error) { return s.distance, nil }

type fixedPosition struct{ x, y float64 }

func (p fixedPosition) Position() (float64, float64, bool) { return p.x, p.y, true }

type memLog struct{ records []memory.InteractionRecord }

type memLearned struct {
	mu      sync.Mutex
	entries map[string]memory.LearnedResponse
}

func newMemLearned() *memLearned {
	return &memLearned{entries: make(map[string]memory.LearnedResponse)}
}

func (m *memLearned) Get(_ context.Context, keyword string) (*memory.LearnedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[keyword]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &r, nil
}

func (m *memLearned) Upsert(_ context.Context, r memory.LearnedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[r.Keyword] = r
	return nil
}

func (l *memLog) Append(_ context.Context, rec memory.InteractionRecord) error {
	l.records = append(l.records, rec)
	return nil
}

// Harness runs scenarios against fresh engines.
type Harness struct {
	logger *logger.Logger
}

// NewHarness creates a harness. log may be nil.
func NewHarness(log *logger.Logger) *Harness {
	return &Harness{logger: log}
}

// DefaultEngineConfig is the engine tuning shared by every scenario: neutral traits,
// full reactivity and no spontaneous emotions.
func DefaultEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Personality.Traits = &personality.Traits{Openness: 5, Friendliness: 5, Activeness: 5, Expressiveness: 5, Patience: 5}
	cfg.Personality.Reactivity = 1
	cfg.Personality.RandomEmotionChance = 0
	return cfg
}

// Run executes sc and reports the outcome. It never returns a nil result.
func (h *Harness) Run(ctx context.Context, sc Scenario) Result {
	res := Result{Name: sc.Name}
	run, sensor, err := h.build(sc)
	if err != nil {
		res.Reason = err.Error()
		return res
	}

	interval := sc.Interval
	if interval <= 0 {
		interval = engine.DefaultTickRate
	}

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			res.Reason = err.Error()
			return res
		}
		sensor.distance = step.Distance
		if step.Override != nil {
			if err := run.Engine.Submit(ctx, *step.Override); err != nil {
				res.Reason = fmt.Sprintf("tick %d: override rejected: %v", i, err)
				return res
			}
		}
		run.Engine.Tick()
		state := run.Engine.State()
		run.States = append(run.States, state)
		res.Ticks++

		if err := h.check(run, i, step); err != nil {
			res.States = run.States
			res.Reason = err.Error()
			return res
		}
		run.Clock.Advance(interval)
	}

	for i := 0; i < sc.Extra; i++ {
		run.Engine.Tick()
		run.States = append(run.States, run.Engine.State())
		res.Ticks++
		run.Clock.Advance(interval)
	}

	res.States = run.States
	if sc.Verify != nil {
		if err := sc.Verify(run); err != nil {
			res.Reason = err.Error()
			return res
		}
	}
	res.Passed = true
	h.logger.Info(fmt.Sprintf("scenario %s passed after %d ticks", sc.Name, res.Ticks))
	return res
}

func (h *Harness) build(sc Scenario) (*Run, *scriptedSensor, error) {
	cfg := DefaultEngineConfig()
	if sc.Tune != nil {
		sc.Tune(&cfg)
	}
	seed := sc.Seed
	if seed == 0 {
		seed = 42
	}

	run := &Run{
		Events: events.NewEventLog(events.DefaultCapacity, nil),
		Clock:  clock.NewManual(Epoch),
	}
	sensor := &scriptedSensor{}
	deps := engine.Deps{
		Sensor:       sensor,
		Interactions: &memLog{},
		Learned:      newMemLearned(),
		Events:       run.Events,
		Metrics:      metrics.New(),
		Clock:        run.Clock,
		Rand:         rand.New(rand.NewSource(seed)),
		Logger:       h.logger.Named(sc.Name),
	}
	if sc.Position != nil {
		deps.Positions = fixedPosition{x: sc.Position[0], y: sc.Position[1]}
	}
	if sc.World != nil {
		run.World = sim.NewWorld(*sc.World)
		deps.Sensor = run.World
		deps.Motors = run.World
		deps.Positions = run.World
	}

	eng, err := engine.New(cfg, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build engine: %w", err)
	}
	run.Engine = eng
	return run, sensor, nil
}

func (h *Harness) check(run *Run, tick int, step Step) error {
	state := run.States[len(run.States)-1]
	if len(step.Expect) > 0 && !containsState(step.Expect, state) {
		return fmt.Errorf("tick %d: expected %s, got %s (history %v)", tick, joinStates(step.Expect), state, run.States)
	}
	if step.Emotion != "" {
		if got := run.Engine.Emotion(); got != step.Emotion {
			return fmt.Errorf("tick %d: expected emotion %s, got %s", tick, step.Emotion, got)
		}
	}
	if step.Response != "" {
		cmds := run.Events.ByType(events.EventTypeCommand)
		if len(cmds) == 0 {
			return fmt.Errorf("tick %d: expected a command response, none recorded", tick)
		}
		a, ok := cmds[len(cmds)-1].Payload.(cmdpkg.Action)
		if !ok || a.Response != step.Response {
			return fmt.Errorf("tick %d: expected response %q, got %+v", tick, step.Response, cmds[len(cmds)-1].Payload)
		}
	}
	return nil
}

func containsState(set []behavior.State, s behavior.State) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func joinStates(set []behavior.State) string {
	names := make([]string, len(set))
	for i, s := range set {
		names[i] = string(s)
	}
	return strings.Join(names, " or ")
}

var _ hardware.DistanceSensor = (*scriptedSensor)(nil)
