package domain

import (
	"strings"
	"time"
)

// Task is one node of a project's task forest.
type Task struct {
	ID          string
	ProjectID   string
	ParentID    string
	StatusID    string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskInput holds values for task construction.
type TaskInput struct {
	ID          string
	ProjectID   string
	ParentID    string
	StatusID    string
	Title       string
	Description string
}

// NewTask constructs a normalized task.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.StatusID = strings.TrimSpace(in.StatusID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	if in.ParentID == in.ID {
		return Task{}, ErrSelfParent
	}

	return Task{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		ParentID:    in.ParentID,
		StatusID:    in.StatusID,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// UpdateDetails replaces title and description.
func (t *Task) UpdateDetails(title, description string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	t.Title = title
	t.Description = strings.TrimSpace(description)
	t.UpdatedAt = now.UTC()
	return nil
}

// SetStatus points the task at another workflow status.
func (t *Task) SetStatus(statusID string, now time.Time) {
	t.StatusID = strings.TrimSpace(statusID)
	t.UpdatedAt = now.UTC()
}

// Reparent moves the task under parentID, or to the root when empty.
func (t *Task) Reparent(parentID string, now time.Time) error {
	parentID = strings.TrimSpace(parentID)
	if parentID == t.ID {
		return ErrSelfParent
	}
	t.ParentID = parentID
	t.UpdatedAt = now.UTC()
	return nil
}
