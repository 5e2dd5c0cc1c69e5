package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// Backfilled status colors.
const (
	ColorToDo       = "#3B82F6"
	ColorInProgress = "#EAB308"
	ColorDone       = "#22C55E"
	ColorRemoved    = "#EF4444"
	ColorFallback   = "#9CA3AF"
)

// StatusFlags holds the per-status workflow switches.
type StatusFlags struct {
	ShowStrikeThrough bool
	Hidden            bool
	RequiresComment   bool
	AllowsComment     bool
}

// TaskStatus is one ordered, colored state of a project workflow.
type TaskStatus struct {
	ID        string
	ProjectID string
	Label     string
	Color     string
	Order     int
	Flags     StatusFlags
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskStatusInput holds values for status construction.
type TaskStatusInput struct {
	ID        string
	ProjectID string
	Label     string
	Color     string
	Order     int
	Flags     StatusFlags
}

// StatusPatch describes a partial status update. Nil fields are left alone.
// A non-nil empty Color re-derives the color from the label.
type StatusPatch struct {
	Label *string
	Color *string
	Order *int
	Flags *StatusFlags
}

// NewTaskStatus constructs a status, backfilling the color from the label when none is given.
func NewTaskStatus(in TaskStatusInput, now time.Time) (TaskStatus, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Label = strings.TrimSpace(in.Label)
	if in.ID == "" || in.ProjectID == "" {
		return TaskStatus{}, ErrInvalidID
	}
	if in.Label == "" {
		return TaskStatus{}, ErrInvalidLabel
	}
	color, err := ResolveColor(in.Color, in.Label)
	if err != nil {
		return TaskStatus{}, err
	}

	return TaskStatus{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Label:     in.Label,
		Color:     color,
		Order:     in.Order,
		Flags:     in.Flags,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Apply mutates the status with every set field of the patch.
func (s *TaskStatus) Apply(patch StatusPatch, now time.Time) error {
	label := s.Label
	if patch.Label != nil {
		label = strings.TrimSpace(*patch.Label)
		if label == "" {
			return ErrInvalidLabel
		}
	}
	color := s.Color
	if patch.Color != nil {
		resolved, err := ResolveColor(*patch.Color, label)
		if err != nil {
			return err
		}
		color = resolved
	}

	s.Label = label
	s.Color = color
	if patch.Order != nil {
		s.Order = *patch.Order
	}
	if patch.Flags != nil {
		s.Flags = *patch.Flags
	}
	s.UpdatedAt = now.UTC()
	return nil
}

// ResolveColor normalizes an explicit color or backfills one from label.
func ResolveColor(color, label string) (string, error) {
	if strings.TrimSpace(color) == "" {
		return BackfillColor(label), nil
	}
	return NormalizeColor(color)
}

// NormalizeColor validates a #RGB or #RRGGBB value and returns upper-case #RRGGBB.
func NormalizeColor(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "#") {
		raw = "#" + raw
	}
	if len(raw) != 4 && len(raw) != 7 {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	c, err := colorful.Hex(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	return strings.ToUpper(c.Hex()), nil
}

// BackfillColor derives a display color from a status label. The first matching branch wins.
func BackfillColor(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "to-do" || l == "todo" || l == "to do":
		return ColorToDo
	case strings.Contains(l, "in progress") || strings.Contains(l, "in-progress"):
		return ColorInProgress
	case strings.Contains(l, "done"):
		return ColorDone
	case strings.Contains(l, "remove") || strings.Contains(l, "archiv") || strings.Contains(l, "delete"):
		return ColorRemoved
	default:
		return ColorFallback
	}
}
