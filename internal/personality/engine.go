// Package personality holds the robot's fixed traits and its changing emotion.
//
// The engine reacts to behavior state changes, drifts on its own, decays back to
// neutral, and remembers taught responses through an injected store.
package personality

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/logger"
	"go.uber.org/zap"
)

// Display shows the current emotion (face screen, LED ring, dashboard).
type Display interface {
	ShowEmotion(e emotion.Emotion)
}

// InteractionLog is the append-only interaction history.
type InteractionLog interface {
	Append(ctx context.Context, rec memory.InteractionRecord) error
}

// LearnedStore keeps taught keyword responses.
type LearnedStore interface {
	Get(ctx context.Context, keyword string) (*memory.LearnedResponse, error)
	Upsert(ctx context.Context, r memory.LearnedResponse) error
}

// Config tunes the emotion dynamics.
type Config struct {
	// Traits pins the personality; nil draws a random one.
	Traits *Traits `yaml:"traits"`
	// Reactivity pins the multiplier; 0 samples it from [0.8, 1.2].
	Reactivity          float64                             `yaml:"reactivity"`
	ReactChance         float64                             `yaml:"react_chance"`
	RandomEmotionChance float64                             `yaml:"random_emotion_chance"`
	UpdateInterval      time.Duration                       `yaml:"update_interval"`
	Dwell               map[emotion.Emotion]rules.DwellRange `yaml:"dwell"`
	StoreTimeout        time.Duration                       `yaml:"store_timeout"`
}

func secs(lo, hi int) rules.DwellRange {
	return rules.DwellRange{Min: time.Duration(lo) * time.Second, Max: time.Duration(hi) * time.Second}
}

// DefaultDwell returns how long each emotion lasts before fading. Neutral never fades.
func DefaultDwell() map[emotion.Emotion]rules.DwellRange {
	return map[emotion.Emotion]rules.DwellRange{
		emotion.Happy:   secs(30, 90),
		emotion.Sad:     secs(20, 60),
		emotion.Excited: secs(10, 30),
		emotion.Sleepy:  secs(30, 120),
		emotion.Curious: secs(15, 45),
		emotion.Scared:  secs(5, 15),
		emotion.Playful: secs(15, 45),
		emotion.Grumpy:  secs(10, 40),
	}
}

// DefaultConfig returns the standard emotion tuning.
func DefaultConfig() Config {
	return Config{
		ReactChance:         0.7,
		RandomEmotionChance: 0.01,
		UpdateInterval:      5 * time.Second,
		Dwell:               DefaultDwell(),
		StoreTimeout:        2 * time.Second,
	}
}

// Deps are the collaborators of the engine. All are optional.
type Deps struct {
	Display Display
	Log     InteractionLog
	Learned LearnedStore
	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *logger.Logger
}

// Engine is the personality and emotion engine.
type Engine struct {
	cfg        Config
	traits     Traits
	reactivity float64

	display Display
	log     InteractionLog
	learned LearnedStore
	clock   clock.Clock
	rng     *rand.Rand
	logger  *logger.Logger

	// teachMu serializes the read-modify-write of learned confidence.
	teachMu sync.Mutex

	current    atomic.Value // emotion.Emotion
	lastChange time.Time
	lastState  behavior.State
	lastUpdate time.Time
}

// New creates an engine in Neutral.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Dwell == nil {
		cfg.Dwell = DefaultDwell()
	}

	traits := RandomTraits(deps.Rand)
	if cfg.Traits != nil {
		if err := cfg.Traits.Validate(); err != nil {
			return nil, err
		}
		traits = *cfg.Traits
	}

	reactivity := cfg.Reactivity
	if reactivity == 0 {
		reactivity = rules.Uniform(deps.Rand, 0.8, 1.2)
	}

	e := &Engine{
		cfg:        cfg,
		traits:     traits,
		reactivity: reactivity,
		display:    deps.Display,
		log:        deps.Log,
		learned:    deps.Learned,
		clock:      deps.Clock,
		rng:        deps.Rand,
		logger:     deps.Logger,
		lastChange: deps.Clock.Now(),
		lastState:  behavior.Idle,
	}
	e.current.Store(emotion.Neutral)
	return e, nil
}

// Traits returns a copy of the personality traits.
func (e *Engine) Traits() Traits {
	return e.traits
}

// Reactivity is the multiplier sampled at construction.
func (e *Engine) Reactivity() float64 {
	return e.reactivity
}

// Emotion returns the current emotion. Safe from any goroutine.
func (e *Engine) Emotion() emotion.Emotion {
	return e.current.Load().(emotion.Emotion)
}

// LastEmotionChange is when the current emotion was set.
func (e *Engine) LastEmotionChange() time.Time {
	return e.lastChange
}

func (e *Engine) reactChance() float64 {
	return rules.Clamp(e.cfg.ReactChance*e.reactivity, 0, 1)
}

// OnStateChange reacts to the state machine entering a new state.
func (e *Engine) OnStateChange(s behavior.State) {
	e.lastState = s
	if !rules.Chance(e.rng, e.reactChance()) {
		return
	}
	candidates := e.traits.reaction(s)
	if len(candidates) == 0 {
		return
	}
	_ = e.SetEmotion(candidates[e.rng.Intn(len(candidates))])
}

// SetEmotion overwrites the current emotion. Unknown emotions are rejected without any change.
func (e *Engine) SetEmotion(em emotion.Emotion) error {
	if !em.Valid() {
		return fmt.Errorf("set emotion %q: %w", string(em), emotion.ErrUnknownEmotion)
	}
	prev := e.Emotion()
	now := e.clock.Now()
	e.current.Store(em)
	e.lastChange = now

	if e.display != nil {
		e.display.ShowEmotion(em)
	}
	e.Record(memory.TypeEmotionChange, fmt.Sprintf("changed from %s to %s", prev, em))
	return nil
}

// Update runs the periodic mood dynamics: a rare spontaneous swing, then dwell decay.
// Calls closer together than the update interval are ignored.
func (e *Engine) Update() {
	now := e.clock.Now()
	if e.cfg.UpdateInterval > 0 && !e.lastUpdate.IsZero() && now.Sub(e.lastUpdate) < e.cfg.UpdateInterval {
		return
	}
	e.lastUpdate = now

	if rules.Chance(e.rng, e.cfg.RandomEmotionChance) {
		if next, ok := rules.WeightedChoice(e.rng, e.traits.moodWeights(e.lastState)); ok {
			_ = e.SetEmotion(next)
			return
		}
	}

	current := e.Emotion()
	if current == emotion.Neutral {
		return
	}
	if dwell, ok := e.cfg.Dwell[current]; ok && dwell.Exceeded(e.rng, now.Sub(e.lastChange)) {
		_ = e.SetEmotion(emotion.Neutral)
	}
}

// Record appends an interaction tagged with the current emotion. Failures are logged only.
func (e *Engine) Record(kind, details string) {
	if e.log == nil {
		return
	}
	rec := memory.InteractionRecord{
		Timestamp: e.clock.Now(),
		Type:      kind,
		Details:   details,
		Emotion:   e.Emotion(),
	}
	ctx, cancel := e.storeContext()
	defer cancel()
	if err := e.log.Append(ctx, rec); err != nil {
		e.logger.Warn("failed to record interaction", zap.String("type", kind), zap.Error(err))
	}
}

func (e *Engine) storeContext() (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
}
