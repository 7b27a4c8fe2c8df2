package personality

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/platform/clock"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type screen struct {
	shown []emotion.Emotion
}

func (s *screen) ShowEmotion(e emotion.Emotion) { s.shown = append(s.shown, e) }

type memLog struct {
	mu      sync.Mutex
	records []memory.InteractionRecord
	err     error
}

func (l *memLog) Append(_ context.Context, rec memory.InteractionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

type memLearned struct {
	mu        sync.Mutex
	byKeyword map[string]memory.LearnedResponse
	err       error
	readDelay time.Duration
}

func newMemLearned() *memLearned {
	return &memLearned{byKeyword: map[string]memory.LearnedResponse{}}
}

func (m *memLearned) Get(_ context.Context, kw string) (*memory.LearnedResponse, error) {
	m.mu.Lock()
	r, ok := m.byKeyword[kw]
	err, delay := m.err, m.readDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &r, nil
}

func (m *memLearned) Upsert(_ context.Context, r memory.LearnedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.byKeyword[r.Keyword] = r
	return nil
}

func newTestEngine(t *testing.T, cfg Config, seed int64) (*Engine, *clock.Manual, *screen, *memLog) {
	t.Helper()
	clk := clock.NewManual(epoch)
	disp := &screen{}
	log := &memLog{}
	e, err := New(cfg, Deps{
		Display: disp,
		Log:     log,
		Learned: newMemLearned(),
		Clock:   clk,
		Rand:    rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return e, clk, disp, log
}

func fixedTraits(friendliness, patience, activeness int) *Traits {
	return &Traits{Openness: 5, Friendliness: friendliness, Activeness: activeness, Expressiveness: 5, Patience: patience}
}

func TestNew_RandomTraitsInRange(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		e, _, _, _ := newTestEngine(t, DefaultConfig(), seed)
		if err := e.Traits().Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if r := e.Reactivity(); r < 0.8 || r > 1.2 {
			t.Fatalf("seed %d: reactivity %.2f outside [0.8, 1.2]", seed, r)
		}
		if e.Emotion() != emotion.Neutral {
			t.Fatalf("expected neutral start, got %s", e.Emotion())
		}
	}
}

func TestNew_RejectsOutOfRangeTraits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Traits = &Traits{Openness: 11, Friendliness: 5, Activeness: 5, Expressiveness: 5, Patience: 5}
	_, err := New(cfg, Deps{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestTraits_ImmutableAcrossReactions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateInterval = 0
	cfg.RandomEmotionChance = 1
	e, clk, _, _ := newTestEngine(t, cfg, 3)
	before := e.Traits()

	for i := 0; i < 200; i++ {
		e.OnStateChange(behavior.All()[i%len(behavior.All())])
		e.Update()
		clk.Advance(time.Second)
	}

	if e.Traits() != before {
		t.Errorf("traits changed: %+v -> %+v", before, e.Traits())
	}
}

func TestOnStateChange_FriendlyInteractionMostlyHappy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Traits = fixedTraits(9, 5, 5)
	cfg.Reactivity = 1.0
	e, _, disp, _ := newTestEngine(t, cfg, 99)

	const calls = 1000
	for i := 0; i < calls; i++ {
		e.OnStateChange(behavior.Interacting)
	}

	happy := 0
	for _, shown := range disp.shown {
		if shown == emotion.Happy {
			happy++
		}
	}
	ratio := float64(happy) / calls
	if ratio < 0.64 || ratio > 0.76 {
		t.Errorf("expected happy in ~70%% of calls, got %.3f", ratio)
	}
	if len(disp.shown) != happy {
		t.Errorf("expected only happy reactions, got %d of %d", happy, len(disp.shown))
	}
}

func TestOnStateChange_TraitDependentMappings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reactivity = 1.2 // 0.84 gate
	cfg.Traits = fixedTraits(3, 2, 9)
	e, _, disp, _ := newTestEngine(t, cfg, 5)

	for i := 0; i < 200; i++ {
		e.OnStateChange(behavior.Avoiding)
	}
	for _, shown := range disp.shown {
		if shown != emotion.Scared {
			t.Fatalf("impatient robot should only get scared while avoiding, got %s", shown)
		}
	}

	disp.shown = nil
	for i := 0; i < 200; i++ {
		e.OnStateChange(behavior.Roaming)
	}
	for _, shown := range disp.shown {
		if shown != emotion.Excited {
			t.Fatalf("active robot should get excited roaming, got %s", shown)
		}
	}

	disp.shown = nil
	for i := 0; i < 300; i++ {
		e.OnStateChange(behavior.Playing)
	}
	seen := map[emotion.Emotion]bool{}
	for _, shown := range disp.shown {
		seen[shown] = true
	}
	if len(seen) != 3 || !seen[emotion.Playful] || !seen[emotion.Excited] || !seen[emotion.Happy] {
		t.Errorf("expected playful, excited and happy while playing, got %v", seen)
	}
}

func TestOnStateChange_GateFailureKeepsEmotion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReactChance = 0
	e, _, disp, _ := newTestEngine(t, cfg, 1)
	_ = e.SetEmotion(emotion.Grumpy)

	e.OnStateChange(behavior.Sleeping)
	if e.Emotion() != emotion.Grumpy {
		t.Errorf("expected grumpy to persist, got %s", e.Emotion())
	}
	if len(disp.shown) != 1 {
		t.Errorf("expected only the explicit set to reach the display, got %v", disp.shown)
	}
}

func TestSetEmotion_RecordsAndDisplays(t *testing.T) {
	e, clk, disp, log := newTestEngine(t, DefaultConfig(), 1)
	clk.Advance(time.Minute)

	if err := e.SetEmotion(emotion.Playful); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Emotion() != emotion.Playful || !e.LastEmotionChange().Equal(clk.Now()) {
		t.Errorf("expected playful at %v, got %s at %v", clk.Now(), e.Emotion(), e.LastEmotionChange())
	}
	if len(disp.shown) != 1 || disp.shown[0] != emotion.Playful {
		t.Errorf("expected display to show playful, got %v", disp.shown)
	}
	if len(log.records) != 1 || log.records[0].Type != memory.TypeEmotionChange || log.records[0].Emotion != emotion.Playful {
		t.Errorf("unexpected interaction log %+v", log.records)
	}
}

func TestSetEmotion_RejectsUnknown(t *testing.T) {
	e, _, disp, log := newTestEngine(t, DefaultConfig(), 1)
	err := e.SetEmotion(emotion.Emotion("smug"))
	if !errors.Is(err, emotion.ErrUnknownEmotion) {
		t.Fatalf("expected ErrUnknownEmotion, got %v", err)
	}
	if e.Emotion() != emotion.Neutral || len(disp.shown) != 0 || len(log.records) != 0 {
		t.Error("expected no mutation on rejected emotion")
	}
}

func TestSetEmotion_StoreFailureDoesNotBlock(t *testing.T) {
	e, _, _, log := newTestEngine(t, DefaultConfig(), 1)
	log.err = errors.New("database is locked")
	if err := e.SetEmotion(emotion.Sad); err != nil {
		t.Fatalf("store failure must not surface: %v", err)
	}
	if e.Emotion() != emotion.Sad {
		t.Errorf("expected sad, got %s", e.Emotion())
	}
}

func TestUpdate_ScaredDecaysToNeutral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RandomEmotionChance = 0
	e, clk, _, _ := newTestEngine(t, cfg, 8)
	_ = e.SetEmotion(emotion.Scared)

	maxDwell := cfg.Dwell[emotion.Scared].Max
	for elapsed := time.Duration(0); elapsed <= maxDwell+10*time.Second; elapsed += 5 * time.Second {
		e.Update()
		clk.Advance(5 * time.Second)
	}
	if e.Emotion() != emotion.Neutral {
		t.Errorf("expected neutral after scared dwell, got %s", e.Emotion())
	}
}

func TestUpdate_RespectsInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RandomEmotionChance = 0
	cfg.Dwell[emotion.Scared] = secs(1, 1)
	e, clk, _, _ := newTestEngine(t, cfg, 8)

	e.Update()
	_ = e.SetEmotion(emotion.Scared)
	clk.Advance(2 * time.Second)
	e.Update()
	if e.Emotion() != emotion.Scared {
		t.Fatalf("expected update inside the interval to be skipped, got %s", e.Emotion())
	}
	clk.Advance(4 * time.Second)
	e.Update()
	if e.Emotion() != emotion.Neutral {
		t.Errorf("expected decay once the interval passed, got %s", e.Emotion())
	}
}

func TestUpdate_SpontaneousMoodExcludesImplausible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateInterval = 0
	cfg.RandomEmotionChance = 1
	e, _, _, _ := newTestEngine(t, cfg, 21)
	e.OnStateChange(behavior.Sleeping)

	for i := 0; i < 500; i++ {
		e.Update()
		switch e.Emotion() {
		case emotion.Excited, emotion.Playful, emotion.Curious:
			t.Fatalf("implausible emotion %s while sleeping", e.Emotion())
		}
	}
}

func TestLearnResponse_ConfidenceGrowsAndCaps(t *testing.T) {
	e, _, _, _ := newTestEngine(t, DefaultConfig(), 1)
	ctx := context.Background()

	prev := 0.0
	var last memory.LearnedResponse
	for i := 0; i < 8; i++ {
		r, err := e.LearnResponse(ctx, "Treat", "yum!")
		if err != nil {
			t.Fatalf("learn %d: %v", i, err)
		}
		if r.Confidence < prev {
			t.Fatalf("confidence decreased %.2f -> %.2f", prev, r.Confidence)
		}
		prev = r.Confidence
		last = r
	}
	if last.Confidence != 1.0 || last.TimesUsed != 8 || last.Keyword != "treat" {
		t.Errorf("unexpected final record %+v", last)
	}

	got, ok := e.LearnedResponse(ctx, "TREAT ")
	if !ok || got != "yum!" {
		t.Errorf("expected yum!, got %q (%v)", got, ok)
	}
}

func TestLearnResponse_ConcurrentTeachingKeepsEveryStep(t *testing.T) {
	store := newMemLearned()
	store.readDelay = 2 * time.Millisecond
	e, err := New(DefaultConfig(), Deps{Learned: store, Clock: clock.NewManual(epoch)})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := e.LearnResponse(ctx, "sit", "*sits*"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.LearnResponse(ctx, "sit", "*sits*"); err != nil {
				t.Errorf("concurrent teach failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "sit")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Confidence-0.9) > 1e-9 || got.TimesUsed != 5 {
		t.Errorf("expected confidence 0.90 after 5 teachings, got %.2f (%d uses)", got.Confidence, got.TimesUsed)
	}
}

func TestLearnedResponse_LowConfidenceIsUnknown(t *testing.T) {
	store := newMemLearned()
	store.byKeyword["fetch"] = memory.LearnedResponse{Keyword: "fetch", Response: "ball!", Confidence: 0.4}
	e, err := New(DefaultConfig(), Deps{Learned: store})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.LearnedResponse(context.Background(), "fetch"); ok {
		t.Error("expected confidence 0.4 to be unknown")
	}
	if _, ok := e.LearnedResponse(context.Background(), "never-taught"); ok {
		t.Error("expected unknown keyword")
	}
}

func TestLearnedResponse_StoreFailureIsUnknown(t *testing.T) {
	store := newMemLearned()
	store.err = errors.New("connection refused")
	e, _ := New(DefaultConfig(), Deps{Learned: store})

	if _, ok := e.LearnedResponse(context.Background(), "sit"); ok {
		t.Error("expected unknown on store failure")
	}
	if _, err := e.LearnResponse(context.Background(), "sit", "sitting"); err == nil {
		t.Error("expected teaching to report the store failure")
	}
}

func TestLearnResponse_RejectsEmpty(t *testing.T) {
	e, _, _, _ := newTestEngine(t, DefaultConfig(), 1)
	if _, err := e.LearnResponse(context.Background(), "  ", "x"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
