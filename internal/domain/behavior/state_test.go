package behavior

import (
	"errors"
	"testing"

	"github.com/dewwy/petbot/internal/domain"
)

func TestParse_AcceptsKnownNames(t *testing.T) {
	for _, s := range All() {
		got, err := Parse(" " + string(s) + " ")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", s, err)
		}
		if got != s {
			t.Errorf("expected %s, got %s", s, got)
		}
	}

	got, err := Parse("ROAMING")
	if err != nil || got != Roaming {
		t.Errorf("expected roaming, got %q (%v)", got, err)
	}
}

func TestParse_RejectsUnknown(t *testing.T) {
	_, err := Parse("hibernating")
	if !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected error to wrap ErrInvalidArgument")
	}
}

func TestCategory(t *testing.T) {
	cases := map[State]Category{
		Idle:        CategoryPassive,
		Roaming:     CategoryActive,
		Playing:     CategoryActive,
		Avoiding:    CategoryActive,
		Sleeping:    CategoryResting,
		Interacting: CategoryEngaged,
		Startled:    CategoryEngaged,
	}
	for s, want := range cases {
		if got := s.Category(); got != want {
			t.Errorf("%s: expected category %d, got %d", s, want, got)
		}
	}
}
