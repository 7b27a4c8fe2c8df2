package command

import (
	"context"
	"math/rand"
	"testing"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/fsm"
)

type taught map[string]string

func (t taught) LearnedResponse(_ context.Context, kw string) (string, bool) {
	r, ok := t[kw]
	return r, ok
}

func TestInterpret_StateCommands(t *testing.T) {
	in := NewInterpreter(nil, rand.New(rand.NewSource(1)))
	cases := map[string]behavior.State{
		"Come here!":     behavior.Roaming,
		"follow me":      behavior.Roaming,
		"please STOP":    behavior.Idle,
		"sit.":           behavior.Idle,
		"wake up, buddy": behavior.Idle,
		"go to sleep":    behavior.Sleeping,
		"let's play":     behavior.Playing,
		"dance":          behavior.Playing,
		"go explore":     behavior.Searching,
		"find the ball":  behavior.Searching,
		"hello there":    behavior.Interacting,
	}
	for text, want := range cases {
		a := in.Interpret(context.Background(), text)
		if !a.Known || a.State != want {
			t.Errorf("%q: expected %s, got %+v", text, want, a)
		}
	}
}

func TestInterpret_Nudges(t *testing.T) {
	in := NewInterpreter(nil, nil)
	cases := map[string]fsm.NudgeKind{
		"turn around": fsm.NudgeLeft,
		"turn right":  fsm.NudgeRight,
		"go forward":  fsm.NudgeForward,
		"back up":     fsm.NudgeBackward,
	}
	for text, want := range cases {
		a := in.Interpret(context.Background(), text)
		if a.Nudge != want || a.State != "" {
			t.Errorf("%q: expected nudge %s, got %+v", text, want, a)
		}
	}
}

func TestInterpret_SuccessEmotions(t *testing.T) {
	in := NewInterpreter(nil, rand.New(rand.NewSource(3)))
	ctx := context.Background()

	if a := in.Interpret(ctx, "good boy"); a.Emotion != emotion.Happy || a.Command != Praise {
		t.Errorf("expected praise to be happy, got %+v", a)
	}
	if a := in.Interpret(ctx, "dance"); a.Emotion != emotion.Excited {
		t.Errorf("expected dance to be excited, got %s", a.Emotion)
	}
	if a := in.Interpret(ctx, "sleep"); a.Emotion != emotion.Sleepy {
		t.Errorf("expected sleep to be sleepy, got %s", a.Emotion)
	}
	for i := 0; i < 20; i++ {
		a := in.Interpret(ctx, "sit")
		if a.Emotion != emotion.Happy && a.Emotion != emotion.Neutral {
			t.Fatalf("expected happy or neutral, got %s", a.Emotion)
		}
	}
}

func TestInterpret_WordBoundaries(t *testing.T) {
	in := NewInterpreter(nil, nil)
	// "this" contains "hi", "stopwatch" contains "stop"
	a := in.Interpret(context.Background(), "this stopwatch")
	if a.Known {
		t.Errorf("expected no match inside words, got %+v", a)
	}
}

func TestInterpret_LearnedFallback(t *testing.T) {
	in := NewInterpreter(taught{"roll over": "*rolls*"}, nil)

	a := in.Interpret(context.Background(), "  Roll over ")
	if !a.Known || a.Command != Learned || a.Response != "*rolls*" {
		t.Errorf("expected learned response, got %+v", a)
	}

	a = in.Interpret(context.Background(), "juggle")
	if a.Known || a.Command != Unknown || a.Emotion != emotion.Curious {
		t.Errorf("expected curious unknown, got %+v", a)
	}
}
