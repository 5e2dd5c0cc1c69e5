package domain

import (
	"strings"
	"time"
)

// Comment is an author note attached to one task.
type Comment struct {
	ID        string
	ProjectID string
	TaskID    string
	AuthorID  string
	Body      string
	StatusID  string
	CreatedAt time.Time
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID        string
	ProjectID string
	TaskID    string
	AuthorID  string
	Body      string
	StatusID  string
}

// NewComment constructs a normalized comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.TaskID = strings.TrimSpace(in.TaskID)
	if in.ID == "" || in.ProjectID == "" || in.TaskID == "" {
		return Comment{}, ErrInvalidID
	}
	authorID := strings.TrimSpace(in.AuthorID)
	if authorID == "" {
		return Comment{}, ErrInvalidUserID
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return Comment{}, ErrInvalidBody
	}

	return Comment{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		TaskID:    in.TaskID,
		AuthorID:  authorID,
		Body:      body,
		StatusID:  strings.TrimSpace(in.StatusID),
		CreatedAt: now.UTC(),
	}, nil
}
