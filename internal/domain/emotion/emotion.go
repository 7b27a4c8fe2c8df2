// Package emotion defines the emotions the robot can display.
// This package is PURE and must NOT import any infrastructure packages.
package emotion

import (
	"fmt"
	"strings"

	"github.com/dewwy/petbot/internal/domain"
)

// Emotion is a displayable mood.
type Emotion string

const (
	Happy   Emotion = "happy"
	Sad     Emotion = "sad"
	Excited Emotion = "excited"
	Neutral Emotion = "neutral"
	Sleepy  Emotion = "sleepy"
	Curious Emotion = "curious"
	Scared  Emotion = "scared"
	Playful Emotion = "playful"
	Grumpy  Emotion = "grumpy"
)

// ErrUnknownEmotion is returned when an emotion identifier is not defined.
var ErrUnknownEmotion = fmt.Errorf("%w: unknown emotion", domain.ErrInvalidArgument)

var all = []Emotion{Happy, Sad, Excited, Neutral, Sleepy, Curious, Scared, Playful, Grumpy}

// All returns every defined emotion in declaration order.
func All() []Emotion {
	out := make([]Emotion, len(all))
	copy(out, all)
	return out
}

// Valid reports whether e is a defined emotion.
func (e Emotion) Valid() bool {
	for _, candidate := range all {
		if e == candidate {
			return true
		}
	}
	return false
}

func (e Emotion) String() string {
	return string(e)
}

// Parse resolves an emotion name, ignoring case and surrounding whitespace.
func Parse(name string) (Emotion, error) {
	e := Emotion(strings.ToLower(strings.TrimSpace(name)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEmotion, name)
	}
	return e, nil
}
