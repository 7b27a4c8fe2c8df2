// Package behavior defines the behavioral modes of the robot.
// This package is PURE and must NOT import any infrastructure packages.
package behavior

import (
	"fmt"
	"strings"

	"github.com/dewwy/petbot/internal/domain"
)

// State is a behavioral mode of the robot.
type State string

const (
	Idle        State = "idle"
	Roaming     State = "roaming"
	Avoiding    State = "avoiding"
	Interacting State = "interacting"
	Searching   State = "searching"
	Sleeping    State = "sleeping"
	Playing     State = "playing"
	Startled    State = "startled" // sudden obstacle appearance
	Curious     State = "curious"
)

// ErrUnknownState is returned when a state identifier is not one of the defined modes.
var ErrUnknownState = fmt.Errorf("%w: unknown behavior state", domain.ErrInvalidArgument)

var all = []State{Idle, Roaming, Avoiding, Interacting, Searching, Sleeping, Playing, Startled, Curious}

// All returns every defined state in declaration order.
func All() []State {
	out := make([]State, len(all))
	copy(out, all)
	return out
}

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	for _, candidate := range all {
		if s == candidate {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// Category groups states by how they affect the behavior metrics.
type Category int

const (
	CategoryPassive Category = iota
	CategoryActive
	CategoryResting
	CategoryEngaged
)

// Category returns the metric category of the state.
func (s State) Category() Category {
	switch s {
	case Idle:
		return CategoryPassive
	case Roaming, Playing, Avoiding:
		return CategoryActive
	case Sleeping:
		return CategoryResting
	default:
		return CategoryEngaged
	}
}

// Locomotive reports whether the robot is expected to be moving in this state.
func (s State) Locomotive() bool {
	return s == Roaming || s == Searching || s == Playing
}

// Parse resolves a state name, ignoring case and surrounding whitespace.
func Parse(name string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return s, nil
}
