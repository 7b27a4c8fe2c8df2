package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dewwy/petbot/internal/command"
	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/fsm"
	"go.uber.org/zap"
)

// OverrideKind names what an external client asks the robot to do.
type OverrideKind string

const (
	OverrideTransition OverrideKind = "transition"
	OverrideEmotion    OverrideKind = "emotion"
	OverrideCommand    OverrideKind = "command"
	OverrideNudge      OverrideKind = "nudge"
	OverrideTeach      OverrideKind = "teach"
)

var (
	// ErrUnknownOverride is returned for an override type the engine does not handle.
	ErrUnknownOverride = fmt.Errorf("%w: unknown override type", domain.ErrInvalidArgument)

	// ErrOverrideQueueFull is returned when the control loop is not keeping up.
	ErrOverrideQueueFull = errors.New("engine: override queue full")

	// ErrStopped is returned for overrides submitted after Stop.
	ErrStopped = errors.New("engine: stopped")
)

// Override is the wire form of a request from HTTP, websocket or the bus.
type Override struct {
	Type     OverrideKind `json:"type"`
	State    string       `json:"state,omitempty"`
	Emotion  string       `json:"emotion,omitempty"`
	Text     string       `json:"text,omitempty"`
	Nudge    string       `json:"nudge,omitempty"`
	Keyword  string       `json:"keyword,omitempty"`
	Response string       `json:"response,omitempty"`
}

// Result describes an applied override.
type Result struct {
	Type    OverrideKind            `json:"type"`
	State   behavior.State          `json:"state"`
	Emotion emotion.Emotion         `json:"emotion"`
	Action  *command.Action         `json:"action,omitempty"`
	Learned *memory.LearnedResponse `json:"learned,omitempty"`
}

// request is a validated override waiting for the next tick.
type request struct {
	kind    OverrideKind
	state   behavior.State
	emotion emotion.Emotion
	nudge   fsm.NudgeKind
	action  *command.Action
	reply   chan Result
}

// validate resolves identifiers. Nothing here touches the robot.
func (e *Engine) validate(ctx context.Context, o Override) (request, error) {
	req := request{kind: o.Type}
	switch o.Type {
	case OverrideTransition:
		s, err := behavior.Parse(o.State)
		if err != nil {
			return req, err
		}
		req.state = s
	case OverrideEmotion:
		em, err := emotion.Parse(o.Emotion)
		if err != nil {
			return req, err
		}
		req.emotion = em
	case OverrideNudge:
		kind := fsm.NudgeKind(strings.ToLower(strings.TrimSpace(o.Nudge)))
		switch kind {
		case fsm.NudgeForward, fsm.NudgeBackward, fsm.NudgeLeft, fsm.NudgeRight:
		default:
			return req, fmt.Errorf("nudge %q: %w", o.Nudge, fsm.ErrUnknownNudge)
		}
		req.nudge = kind
	case OverrideCommand:
		if strings.TrimSpace(o.Text) == "" {
			return req, fmt.Errorf("%w: command text is required", domain.ErrInvalidArgument)
		}
		a := e.interpreter.Interpret(ctx, o.Text)
		req.action = &a
	default:
		return req, fmt.Errorf("override %q: %w", string(o.Type), ErrUnknownOverride)
	}
	return req, nil
}

// Apply validates o, hands it to the control loop and waits until the next tick has
// applied it or ctx ends. Teaching does not touch the control loop and completes inline.
func (e *Engine) Apply(ctx context.Context, o Override) (Result, error) {
	if o.Type == OverrideTeach {
		return e.teach(ctx, o)
	}
	req, err := e.validate(ctx, o)
	if err != nil {
		e.reject(o, err)
		return Result{}, err
	}
	req.reply = make(chan Result, 1)
	if err := e.enqueue(req); err != nil {
		e.reject(o, err)
		return Result{}, err
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submit validates o and queues it without waiting for the result.
func (e *Engine) Submit(ctx context.Context, o Override) error {
	if o.Type == OverrideTeach {
		_, err := e.teach(ctx, o)
		return err
	}
	req, err := e.validate(ctx, o)
	if err == nil {
		err = e.enqueue(req)
	}
	if err != nil {
		e.reject(o, err)
	}
	return err
}

func (e *Engine) teach(ctx context.Context, o Override) (Result, error) {
	learned, err := e.pers.LearnResponse(ctx, o.Keyword, o.Response)
	if err != nil {
		e.reject(o, err)
		return Result{}, err
	}
	e.metrics.RecordOverride(true)
	e.emit(events.EventTypeOverrideApplied, map[string]interface{}{"type": OverrideTeach, "keyword": learned.Keyword})
	return Result{Type: OverrideTeach, State: e.sm.State(), Emotion: e.pers.Emotion(), Learned: &learned}, nil
}

func (e *Engine) enqueue(req request) error {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return ErrStopped
	}
	select {
	case e.overrides <- req:
		return nil
	default:
		return ErrOverrideQueueFull
	}
}

func (e *Engine) reject(o Override, err error) {
	e.metrics.RecordOverride(false)
	e.emit(events.EventTypeOverrideRejected, map[string]interface{}{"type": o.Type, "error": err.Error()})
	e.logger.Debug("override rejected", zap.String("type", string(o.Type)), zap.Error(err))
}

// drainOverrides applies every queued request. Runs on the control loop only.
func (e *Engine) drainOverrides() {
	for {
		select {
		case req := <-e.overrides:
			res := e.applyRequest(req)
			e.metrics.RecordOverride(true)
			e.emit(events.EventTypeOverrideApplied, map[string]interface{}{"type": req.kind})
			if req.reply != nil {
				req.reply <- res
			}
		default:
			return
		}
	}
}

func (e *Engine) applyRequest(req request) Result {
	res := Result{Type: req.kind}
	switch req.kind {
	case OverrideTransition:
		_ = e.sm.TransitionTo(req.state)
		e.pers.Record(memory.TypeOverride, "state -> "+string(req.state))
	case OverrideEmotion:
		_ = e.pers.SetEmotion(req.emotion)
	case OverrideNudge:
		_ = e.sm.Nudge(req.nudge)
		e.pers.Record(memory.TypeOverride, "nudge "+string(req.nudge))
	case OverrideCommand:
		e.runAction(*req.action)
		res.Action = req.action
	}
	res.State = e.sm.State()
	res.Emotion = e.pers.Emotion()
	return res
}

// runAction performs a command: the motion first, then the emotional response.
func (e *Engine) runAction(a command.Action) {
	switch {
	case a.State != "":
		_ = e.sm.TransitionTo(a.State)
	case a.Nudge != "":
		_ = e.sm.Nudge(a.Nudge)
	}
	if a.Emotion != "" {
		_ = e.pers.SetEmotion(a.Emotion)
	}

	details := fmt.Sprintf("%q -> %s", a.Text, a.Command)
	if a.Response != "" {
		details += ": " + a.Response
	}
	e.pers.Record(memory.TypeCommand, details)
	e.emit(events.EventTypeCommand, a)
}
