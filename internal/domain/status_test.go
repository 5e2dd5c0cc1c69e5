package domain

import (
	"errors"
	"testing"
	"time"
)

// TestBackfillColor verifies the label rules in their declared order.
func TestBackfillColor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{label: "To-Do", want: ColorToDo},
		{label: "  todo ", want: ColorToDo},
		{label: "TO DO", want: ColorToDo},
		{label: "In Progress", want: ColorInProgress},
		{label: "work in-progress", want: ColorInProgress},
		{label: "Done", want: ColorDone},
		{label: "Almost done", want: ColorDone},
		{label: "Done and Remove", want: ColorDone},
		{label: "Archived", want: ColorRemoved},
		{label: "remove", want: ColorRemoved},
		{label: "Deleted", want: ColorRemoved},
		{label: "Blocked", want: ColorFallback},
		{label: "", want: ColorFallback},
		{label: "todo later", want: ColorFallback},
	}
	for _, tc := range tests {
		if got := BackfillColor(tc.label); got != tc.want {
			t.Fatalf("BackfillColor(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

func TestNormalizeColor(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "#abc", want: "#AABBCC"},
		{raw: "#3b82f6", want: "#3B82F6"},
		{raw: " 22c55e ", want: "#22C55E"},
	}
	for _, tc := range tests {
		got, err := NormalizeColor(tc.raw)
		if err != nil {
			t.Fatalf("NormalizeColor(%q) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeColor(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	for _, raw := range []string{"#12", "#zzzzzz", "#1234567", "blue"} {
		if _, err := NormalizeColor(raw); !errors.Is(err, ErrInvalidColor) {
			t.Fatalf("NormalizeColor(%q) expected ErrInvalidColor, got %v", raw, err)
		}
	}
}

func TestNewTaskStatusBackfillsColor(t *testing.T) {
	now := time.Now()
	s, err := NewTaskStatus(TaskStatusInput{ID: "s1", ProjectID: "p1", Label: "In Progress", Order: 1}, now)
	if err != nil {
		t.Fatalf("NewTaskStatus() error = %v", err)
	}
	if s.Color != ColorInProgress {
		t.Fatalf("unexpected color %q", s.Color)
	}
	if _, err := NewTaskStatus(TaskStatusInput{ID: "s1", ProjectID: "p1", Label: " "}, now); err != ErrInvalidLabel {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
}

func TestTaskStatusApplyClearedColorFollowsNewLabel(t *testing.T) {
	now := time.Now()
	s, err := NewTaskStatus(TaskStatusInput{ID: "s1", ProjectID: "p1", Label: "Review", Color: "#123456"}, now)
	if err != nil {
		t.Fatalf("NewTaskStatus() error = %v", err)
	}
	label, empty, order := "Done", "", 7
	if err := s.Apply(StatusPatch{Label: &label, Color: &empty, Order: &order}, now); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if s.Label != "Done" || s.Color != ColorDone || s.Order != 7 {
		t.Fatalf("unexpected status %#v", s)
	}

	bad := "nope"
	if err := s.Apply(StatusPatch{Color: &bad}, now); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
	if s.Color != ColorDone {
		t.Fatalf("failed patch must not mutate color, got %q", s.Color)
	}
}
