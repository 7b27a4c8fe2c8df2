package engine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/fsm"
	"github.com/dewwy/petbot/internal/personality"
	"github.com/dewwy/petbot/internal/platform/clock"
	"github.com/dewwy/petbot/internal/platform/metrics"
)

type fixedSensor struct{ distance float64 }

func (s *fixedSensor) MeasureDistance() (float64, error) { return s.distance, nil }

type memLog struct {
	mu      sync.Mutex
	records []memory.InteractionRecord
}

func (l *memLog) Append(_ context.Context, rec memory.InteractionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memLog) ofType(kind string) []memory.InteractionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []memory.InteractionRecord
	for _, r := range l.records {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out
}

type memLearned struct {
	mu      sync.Mutex
	entries map[string]memory.LearnedResponse
}

func (m *memLearned) Get(_ context.Context, kw string) (*memory.LearnedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[kw]
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

type harness struct {
	eng     *Engine
	clock   *clock.Manual
	sensor  *fixedSensor
	log     *memLog
	metrics *metrics.Collector
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Personality.RandomEmotionChance = 0
	cfg.Personality.Traits = &personality.Traits{Openness: 5, Friendliness: 5, Activeness: 5, Expressiveness: 5, Patience: 5}
	cfg.Personality.Reactivity = 1
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		clock:   clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		sensor:  &fixedSensor{distance: 100},
		log:     &memLog{},
		metrics: metrics.New(),
	}
	eng, err := New(cfg, Deps{
		Sensor:       h.sensor,
		Interactions: h.log,
		Learned:      &memLearned{entries: map[string]memory.LearnedResponse{}},
		Events:       events.NewEventLog(256, nil),
		Metrics:      h.metrics,
		Clock:        h.clock,
		Rand:         rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	h.eng = eng
	return h
}

func TestEngine_TransitionAppliedOnNextTick(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.eng.Submit(context.Background(), Override{Type: OverrideTransition, State: "Sleeping"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.eng.State() != behavior.Idle {
		t.Fatalf("expected no change before the tick, got %s", h.eng.State())
	}

	h.eng.Tick()

	if h.eng.State() != behavior.Sleeping {
		t.Errorf("expected sleeping, got %s", h.eng.State())
	}
	if n := atomic.LoadInt64(&h.metrics.OverridesApplied); n != 1 {
		t.Errorf("expected 1 applied override, got %d", n)
	}
	if len(h.eng.Events().ByType(events.EventTypeStateChanged)) != 1 {
		t.Error("expected a state change event")
	}
	if st := h.eng.Status(); st.State != behavior.Sleeping || st.Tick != 1 {
		t.Errorf("expected published status, got %+v", st)
	}
}

func TestEngine_RejectsUnknownIdentifiers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	err := h.eng.Submit(ctx, Override{Type: OverrideTransition, State: "flying"})
	if !errors.Is(err, behavior.ErrUnknownState) || !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
	err = h.eng.Submit(ctx, Override{Type: OverrideEmotion, Emotion: "bored"})
	if !errors.Is(err, emotion.ErrUnknownEmotion) {
		t.Errorf("expected ErrUnknownEmotion, got %v", err)
	}
	err = h.eng.Submit(ctx, Override{Type: "explode"})
	if !errors.Is(err, ErrUnknownOverride) || !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrUnknownOverride, got %v", err)
	}
	err = h.eng.Submit(ctx, Override{Type: OverrideNudge, Nudge: "up"})
	if !errors.Is(err, fsm.ErrUnknownNudge) {
		t.Errorf("expected ErrUnknownNudge, got %v", err)
	}

	h.eng.Tick()

	if h.eng.State() != behavior.Idle || h.eng.Emotion() != emotion.Neutral {
		t.Errorf("expected no mutation, got %s/%s", h.eng.State(), h.eng.Emotion())
	}
	if n := atomic.LoadInt64(&h.metrics.OverridesRejected); n != 4 {
		t.Errorf("expected 4 rejected overrides, got %d", n)
	}
	if n := len(h.eng.Events().ByType(events.EventTypeOverrideRejected)); n != 4 {
		t.Errorf("expected 4 rejection events, got %d", n)
	}
}

func TestEngine_QueueFull(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.OverrideBuffer = 1 })
	ctx := context.Background()

	if err := h.eng.Submit(ctx, Override{Type: OverrideEmotion, Emotion: "happy"}); err != nil {
		t.Fatal(err)
	}
	err := h.eng.Submit(ctx, Override{Type: OverrideEmotion, Emotion: "sad"})
	if !errors.Is(err, ErrOverrideQueueFull) {
		t.Errorf("expected ErrOverrideQueueFull, got %v", err)
	}

	h.eng.Tick()
	if h.eng.Emotion() != emotion.Happy {
		t.Errorf("expected the queued override to apply, got %s", h.eng.Emotion())
	}
}

func TestEngine_ApplyWaitsForTick(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.eng.Apply(ctx, Override{Type: OverrideEmotion, Emotion: "excited"})
		done <- outcome{res, err}
	}()

	for {
		h.eng.Tick()
		select {
		case o := <-done:
			if o.err != nil {
				t.Fatalf("apply failed: %v", o.err)
			}
			if o.res.Emotion != emotion.Excited || o.res.Type != OverrideEmotion {
				t.Errorf("unexpected result %+v", o.res)
			}
			return
		case <-ctx.Done():
			t.Fatal("apply never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_CommandRecordsInteraction(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.eng.Submit(context.Background(), Override{Type: OverrideCommand, Text: "Go to sleep!"}); err != nil {
		t.Fatal(err)
	}
	h.eng.Tick()

	if h.eng.State() != behavior.Sleeping || h.eng.Emotion() != emotion.Sleepy {
		t.Errorf("expected sleeping/sleepy, got %s/%s", h.eng.State(), h.eng.Emotion())
	}
	recs := h.log.ofType(memory.TypeCommand)
	if len(recs) != 1 || !strings.Contains(recs[0].Details, "sleep") {
		t.Errorf("expected one command record, got %+v", recs)
	}
	if len(h.eng.Events().ByType(events.EventTypeCommand)) != 1 {
		t.Error("expected a command event")
	}
}

func TestEngine_TeachThenRecall(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.eng.Apply(ctx, Override{Type: OverrideTeach, Keyword: "Roll Over", Response: "*rolls*"})
	if err != nil {
		t.Fatalf("teach failed: %v", err)
	}
	if res.Learned == nil || res.Learned.Keyword != "roll over" || res.Learned.Confidence != 0.5 {
		t.Errorf("unexpected learned entry %+v", res.Learned)
	}

	if err := h.eng.Submit(ctx, Override{Type: OverrideCommand, Text: "roll over"}); err != nil {
		t.Fatal(err)
	}
	h.eng.Tick()

	recs := h.log.ofType(memory.TypeCommand)
	if len(recs) != 1 || !strings.Contains(recs[0].Details, "*rolls*") {
		t.Errorf("expected the learned response to be recorded, got %+v", recs)
	}

	_, err = h.eng.Apply(ctx, Override{Type: OverrideTeach, Keyword: " ", Response: "x"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for empty keyword, got %v", err)
	}
}

func TestEngine_TeachThenRecallWithPunctuation(t *testing.T) {
	ctx := context.Background()

	for _, phrase := range []string{"how are you?", "what's up!", "good  night"} {
		h := newHarness(t, nil)

		res, err := h.eng.Apply(ctx, Override{Type: OverrideTeach, Keyword: phrase, Response: "*wags*"})
		if err != nil {
			t.Fatalf("teach %q failed: %v", phrase, err)
		}
		if strings.ContainsAny(res.Learned.Keyword, "?!") || strings.Contains(res.Learned.Keyword, "  ") {
			t.Errorf("expected a folded keyword for %q, got %q", phrase, res.Learned.Keyword)
		}

		if err := h.eng.Submit(ctx, Override{Type: OverrideCommand, Text: phrase}); err != nil {
			t.Fatal(err)
		}
		h.eng.Tick()

		recs := h.log.ofType(memory.TypeCommand)
		if len(recs) != 1 || !strings.Contains(recs[0].Details, "*wags*") {
			t.Errorf("expected %q to recall the taught response, got %+v", phrase, recs)
		}
	}
}

func TestEngine_NudgeEntersInteracting(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.eng.Submit(context.Background(), Override{Type: OverrideNudge, Nudge: "Left"}); err != nil {
		t.Fatal(err)
	}
	h.eng.Tick()
	if h.eng.State() != behavior.Interacting {
		t.Errorf("expected interacting, got %s", h.eng.State())
	}
}

func TestEngine_ObstacleTelemetry(t *testing.T) {
	h := newHarness(t, nil)
	h.sensor.distance = 10

	h.eng.Tick()

	if h.eng.State() != behavior.Avoiding {
		t.Fatalf("expected avoiding, got %s", h.eng.State())
	}
	if n := atomic.LoadInt64(&h.metrics.ObstacleOverrides); n != 1 {
		t.Errorf("expected one obstacle override, got %d", n)
	}
	if len(h.eng.Events().ByType(events.EventTypeObstacleDetected)) != 1 {
		t.Error("expected an obstacle event")
	}
	if st := h.eng.Status(); st.Maneuver == nil {
		t.Error("expected the maneuver in the status snapshot")
	}
}

func TestEngine_StopRejectsOverrides(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.Stop()

	err := h.eng.Submit(context.Background(), Override{Type: OverrideTransition, State: "idle"})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestTicker_CallsTickUntilStopped(t *testing.T) {
	var count int64
	reached := make(chan struct{})
	var once sync.Once
	tk := NewTicker(time.Millisecond, func() {
		if atomic.AddInt64(&count, 1) >= 3 {
			once.Do(func() { close(reached) })
		}
	}, nil)

	go tk.Start(context.Background())
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not tick")
	}
	tk.Stop()
	tk.Stop()
}
