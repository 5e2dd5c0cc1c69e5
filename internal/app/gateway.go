package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/hylla/warden/internal/domain"
)

// Operation names one guarded entry point.
type Operation string

// Operation values. Every guarded service method declares one of these.
const (
	OpViewProject      Operation = "project.view"
	OpUpdateProject    Operation = "project.update"
	OpMoveProject      Operation = "project.move"
	OpDeleteProject    Operation = "project.delete"
	OpCreateSubProject Operation = "project.create_child"
	OpViewMembers      Operation = "member.list"
	OpAddMember        Operation = "member.add"
	OpUpdateMember     Operation = "member.update"
	OpRemoveMember     Operation = "member.remove"
	OpViewTasks        Operation = "task.view"
	OpCreateTask       Operation = "task.create"
	OpUpdateTask       Operation = "task.update"
	OpReparentTask     Operation = "task.reparent"
	OpDeleteTask       Operation = "task.delete"
	OpViewComments     Operation = "comment.list"
	OpAddComment       Operation = "comment.add"
	OpViewStatuses     Operation = "status.view"
	OpCreateStatus     Operation = "status.create"
	OpUpdateStatus     Operation = "status.update"
	OpDeleteStatus     Operation = "status.delete"
	OpViewEvents       Operation = "event.list"
)

// requiredRoles is the static operation table.
var requiredRoles = map[Operation]domain.Role{
	OpViewProject:  domain.RoleViewer,
	OpViewMembers:  domain.RoleViewer,
	OpViewTasks:    domain.RoleViewer,
	OpViewComments: domain.RoleViewer,
	OpViewStatuses: domain.RoleViewer,
	OpViewEvents:   domain.RoleViewer,

	OpCreateSubProject: domain.RoleEditor,
	OpCreateTask:       domain.RoleEditor,
	OpUpdateTask:       domain.RoleEditor,
	OpReparentTask:     domain.RoleEditor,
	OpDeleteTask:       domain.RoleEditor,
	OpAddComment:       domain.RoleEditor,
	OpCreateStatus:     domain.RoleEditor,
	OpUpdateStatus:     domain.RoleEditor,

	OpUpdateProject: domain.RoleOwner,
	OpMoveProject:   domain.RoleOwner,
	OpDeleteProject: domain.RoleOwner,
	OpAddMember:     domain.RoleOwner,
	OpUpdateMember:  domain.RoleOwner,
	OpRemoveMember:  domain.RoleOwner,
	OpDeleteStatus:  domain.RoleOwner,
}

// RequiredRole returns the minimum role for op.
func RequiredRole(op Operation) (domain.Role, bool) {
	role, ok := requiredRoles[op]
	return role, ok
}

// Operations lists every guarded operation in name order.
func Operations() []Operation {
	out := make([]Operation, 0, len(requiredRoles))
	for op := range requiredRoles {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// DenyReason explains a denial for observability. Callers outside the
// service only ever see ErrForbidden.
type DenyReason string

// DenyReason values.
const (
	DenyNotAMember       DenyReason = "not_a_member"
	DenyInsufficientRole DenyReason = "insufficient_role"
	DenyNotFound         DenyReason = "not_found"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Granted bool
	Role    domain.Role
	Reason  DenyReason
}

// DenialError reports a denied operation. It matches ErrForbidden for every reason.
type DenialError struct {
	ActorID   string
	TargetID  string
	Operation Operation
	Required  domain.Role
	Decision  Decision
}

// Error implements error.
func (e *DenialError) Error() string {
	return fmt.Sprintf("forbidden: %s on %q requires %s", e.Operation, e.TargetID, e.Required)
}

// Is makes every denial match ErrForbidden.
func (e *DenialError) Is(target error) bool {
	return target == ErrForbidden
}

// decide compares the caller's fresh role with required. A missing project is
// a denial, not an error.
func decide(ctx context.Context, tx Tx, userID, projectID string, required domain.Role) (Decision, domain.Project, error) {
	project, err := tx.GetProject(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return Decision{Reason: DenyNotFound}, domain.Project{}, nil
	}
	if err != nil {
		return Decision{}, domain.Project{}, err
	}
	role, err := effectiveRole(ctx, tx, userID, project)
	if err != nil {
		return Decision{}, domain.Project{}, err
	}
	switch {
	case role.AtLeast(required):
		return Decision{Granted: true, Role: role}, project, nil
	case role == domain.RoleNone:
		return Decision{Role: role, Reason: DenyNotAMember}, project, nil
	default:
		return Decision{Role: role, Reason: DenyInsufficientRole}, project, nil
	}
}

// Authorize answers whether userID holds at least required on projectID.
// Only store failures are returned as errors.
func (s *Service) Authorize(ctx context.Context, userID, projectID string, required domain.Role) (Decision, error) {
	var decision Decision
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		decision, _, err = decide(ctx, tx, userID, projectID, required)
		return err
	})
	return decision, err
}

// guard authorizes the context actor for op on projectID inside tx and
// returns the loaded project.
func guard(ctx context.Context, tx Tx, op Operation, projectID string) (domain.Project, string, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return domain.Project{}, "", err
	}
	required, ok := requiredRoles[op]
	if !ok {
		return domain.Project{}, "", fmt.Errorf("unknown operation %q", op)
	}
	decision, project, err := decide(ctx, tx, actorID, projectID, required)
	if err != nil {
		return domain.Project{}, "", err
	}
	if !decision.Granted {
		return domain.Project{}, "", deny(actorID, projectID, op, required, decision)
	}
	return project, actorID, nil
}

// deny logs and builds a DenialError.
func deny(actorID, targetID string, op Operation, required domain.Role, decision Decision) error {
	log.Warn(
		"authorization denied",
		"actor_id", actorID,
		"target_id", targetID,
		"operation", string(op),
		"required", required.String(),
		"role", decision.Role.String(),
		"reason", string(decision.Reason),
	)
	return &DenialError{ActorID: actorID, TargetID: targetID, Operation: op, Required: required, Decision: decision}
}

// guardTask resolves the project of taskID and authorizes op on it. An
// unknown task is a denial so that existence never leaks to non-members.
func guardTask(ctx context.Context, tx Tx, op Operation, taskID string) (domain.Task, domain.Project, string, error) {
	task, err := tx.GetTask(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		actorID, aerr := requireActor(ctx)
		if aerr != nil {
			return domain.Task{}, domain.Project{}, "", aerr
		}
		return domain.Task{}, domain.Project{}, "", deny(actorID, taskID, op, requiredRoles[op], Decision{Reason: DenyNotFound})
	}
	if err != nil {
		return domain.Task{}, domain.Project{}, "", err
	}
	project, actorID, err := guard(ctx, tx, op, task.ProjectID)
	if err != nil {
		return domain.Task{}, domain.Project{}, "", err
	}
	return task, project, actorID, nil
}

// guardStatus resolves the project of statusID and authorizes op on it.
func guardStatus(ctx context.Context, tx Tx, op Operation, statusID string) (domain.TaskStatus, string, error) {
	status, err := tx.GetStatus(ctx, statusID)
	if errors.Is(err, ErrNotFound) {
		actorID, aerr := requireActor(ctx)
		if aerr != nil {
			return domain.TaskStatus{}, "", aerr
		}
		return domain.TaskStatus{}, "", deny(actorID, statusID, op, requiredRoles[op], Decision{Reason: DenyNotFound})
	}
	if err != nil {
		return domain.TaskStatus{}, "", err
	}
	_, actorID, err := guard(ctx, tx, op, status.ProjectID)
	if err != nil {
		return domain.TaskStatus{}, "", err
	}
	return status, actorID, nil
}
