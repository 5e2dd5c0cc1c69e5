package domain

import (
	"strings"
	"time"
)

// ChangeOperation describes a persisted activity operation.
type ChangeOperation string

// ChangeOperation values used by the activity ledger.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationMove   ChangeOperation = "move"
	ChangeOperationDelete ChangeOperation = "delete"
)

// EntityType names the kind of row a change event describes.
type EntityType string

// EntityType values.
const (
	EntityProject    EntityType = "project"
	EntityMembership EntityType = "membership"
	EntityTask       EntityType = "task"
	EntityStatus     EntityType = "status"
	EntityComment    EntityType = "comment"
)

// IsValid reports whether the entity type is known.
func (e EntityType) IsValid() bool {
	switch EntityType(strings.TrimSpace(string(e))) {
	case EntityProject, EntityMembership, EntityTask, EntityStatus, EntityComment:
		return true
	}
	return false
}

// ChangeEvent represents a single activity-log entry for a project.
type ChangeEvent struct {
	ID         int64
	ProjectID  string
	EntityType EntityType
	EntityID   string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}
