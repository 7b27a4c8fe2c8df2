// Package command turns spoken or typed phrases into robot actions.
//
// Matching is plain keyword lookup on word boundaries. Phrases that are not
// recognized fall back to the responses the robot was taught.
package command

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/fsm"
)

// Canonical command names.
const (
	Come     = "come"
	Follow   = "follow"
	Stop     = "stop"
	Sit      = "sit"
	Wake     = "wake"
	Sleep    = "sleep"
	Play     = "play"
	Dance    = "dance"
	Explore  = "explore"
	Greet    = "greet"
	Praise   = "praise"
	TurnL    = "turn_left"
	TurnR    = "turn_right"
	Forward  = "forward"
	Backward = "backward"

	// Learned marks an action answered from taught responses.
	Learned = "learned"
	// Unknown marks a phrase nobody taught the robot.
	Unknown = "unknown"
)

// Action is what a phrase asks the robot to do.
type Action struct {
	Text     string          `json:"text"`
	Command  string          `json:"command"`
	State    behavior.State  `json:"state,omitempty"`
	Nudge    fsm.NudgeKind   `json:"nudge,omitempty"`
	Emotion  emotion.Emotion `json:"emotion,omitempty"`
	Response string          `json:"response,omitempty"`
	Known    bool            `json:"known"`
}

type phrase struct {
	words   string
	command string
}

// Longer phrases first so "go to sleep" wins over "go".
var phrases = []phrase{
	{"good boy", Praise},
	{"good girl", Praise},
	{"good robot", Praise},
	{"turn around", TurnL},
	{"turn left", TurnL},
	{"turn right", TurnR},
	{"go forward", Forward},
	{"go backward", Backward},
	{"back up", Backward},
	{"come here", Come},
	{"follow me", Follow},
	{"go to sleep", Sleep},
	{"wake up", Wake},
	{"come", Come},
	{"follow", Follow},
	{"stop", Stop},
	{"sit", Sit},
	{"sleep", Sleep},
	{"wake", Wake},
	{"play", Play},
	{"dance", Dance},
	{"explore", Explore},
	{"search", Explore},
	{"find", Explore},
	{"hello", Greet},
	{"hi", Greet},
	{"pet", Greet},
	{"forward", Forward},
	{"backward", Backward},
}

type binding struct {
	state behavior.State
	nudge fsm.NudgeKind
}

var bindings = map[string]binding{
	Come:     {state: behavior.Roaming},
	Follow:   {state: behavior.Roaming},
	Stop:     {state: behavior.Idle},
	Sit:      {state: behavior.Idle},
	Wake:     {state: behavior.Idle},
	Sleep:    {state: behavior.Sleeping},
	Play:     {state: behavior.Playing},
	Dance:    {state: behavior.Playing},
	Explore:  {state: behavior.Searching},
	Greet:    {state: behavior.Interacting},
	Praise:   {},
	TurnL:    {nudge: fsm.NudgeLeft},
	TurnR:    {nudge: fsm.NudgeRight},
	Forward:  {nudge: fsm.NudgeForward},
	Backward: {nudge: fsm.NudgeBackward},
}

// LearnedLookup answers phrases the robot was taught.
type LearnedLookup interface {
	LearnedResponse(ctx context.Context, keyword string) (string, bool)
}

// Interpreter maps phrases to actions. Safe for concurrent use.
type Interpreter struct {
	learned LearnedLookup

	mu  sync.Mutex
	rng *rand.Rand
}

// NewInterpreter creates an interpreter. learned may be nil.
func NewInterpreter(learned LearnedLookup, rng *rand.Rand) *Interpreter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Interpreter{learned: learned, rng: rng}
}

// Interpret resolves text into an action. It never fails: unmatched text yields
// an Unknown action with a Curious emotion.
func (i *Interpreter) Interpret(ctx context.Context, text string) Action {
	norm := Normalize(text)
	a := Action{Text: text}

	if cmd, ok := Match(norm); ok {
		b := bindings[cmd]
		a.Command = cmd
		a.State = b.state
		a.Nudge = b.nudge
		a.Emotion = i.successEmotion(cmd)
		a.Known = true
		return a
	}

	if i.learned != nil && norm != "" {
		if resp, ok := i.learned.LearnedResponse(ctx, norm); ok {
			a.Command = Learned
			a.Response = resp
			a.Emotion = i.pick(emotion.Happy, emotion.Neutral)
			a.Known = true
			return a
		}
	}

	a.Command = Unknown
	a.Emotion = emotion.Curious
	return a
}

func (i *Interpreter) successEmotion(cmd string) emotion.Emotion {
	switch cmd {
	case Praise:
		return emotion.Happy
	case Play, Dance:
		return emotion.Excited
	case Sleep:
		return emotion.Sleepy
	default:
		return i.pick(emotion.Happy, emotion.Neutral)
	}
}

func (i *Interpreter) pick(options ...emotion.Emotion) emotion.Emotion {
	i.mu.Lock()
	defer i.mu.Unlock()
	return options[i.rng.Intn(len(options))]
}

// Match finds the first known phrase in normalized text.
func Match(norm string) (string, bool) {
	padded := " " + norm + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p.words+" ") {
			return p.command, true
		}
	}
	return "", false
}

// Normalize lower-cases text, replaces punctuation with spaces and collapses whitespace.
// Taught keywords are stored under the same form.
func Normalize(text string) string {
	return memory.NormalizeKeyword(text)
}
