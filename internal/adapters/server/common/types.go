// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"time"
)

// ProjectView is the transport shape of one project.
type ProjectView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MemberView is the transport shape of one membership.
type MemberView struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskView is the transport shape of one task.
type TaskView struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	StatusID    string    `json:"status_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TreeNodeView is one row of a flattened task tree.
type TreeNodeView struct {
	Task  TaskView `json:"task"`
	Depth int      `json:"depth"`
}

// StatusFlagsView carries the behavior flags of a status.
type StatusFlagsView struct {
	ShowStrikeThrough bool `json:"show_strike_through"`
	Hidden            bool `json:"hidden"`
	RequiresComment   bool `json:"requires_comment"`
	AllowsComment     bool `json:"allows_comment"`
}

// StatusView is the transport shape of one workflow status.
type StatusView struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Label     string          `json:"label"`
	Color     string          `json:"color"`
	Order     int             `json:"order"`
	Flags     StatusFlagsView `json:"flags"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CommentView is the transport shape of one comment.
type CommentView struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	StatusID  string    `json:"status_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeEventView is the transport shape of one ledger entry.
type ChangeEventView struct {
	ID         int64             `json:"id"`
	ProjectID  string            `json:"project_id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// DecisionView reports one authorization check.
type DecisionView struct {
	ProjectID string `json:"project_id"`
	Required  string `json:"required"`
	Granted   bool   `json:"granted"`
	Role      string `json:"role"`
	Reason    string `json:"reason,omitempty"`
}

// CreateProjectRequest creates a root or sub-project.
type CreateProjectRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// UpdateProjectRequest renames a project.
type UpdateProjectRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// MoveProjectRequest re-parents a project. An empty ParentID makes it a root.
type MoveProjectRequest struct {
	ProjectID string `json:"project_id"`
	ParentID  string `json:"parent_id"`
}

// MemberRequest adds or changes one membership.
type MemberRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// CreateTaskRequest creates one task.
type CreateTaskRequest struct {
	ProjectID   string `json:"project_id"`
	ParentID    string `json:"parent_id,omitempty"`
	StatusID    string `json:"status_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// UpdateTaskRequest edits task details or moves it to another status.
type UpdateTaskRequest struct {
	TaskID      string  `json:"task_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	StatusID    *string `json:"status_id,omitempty"`
	Comment     string  `json:"comment,omitempty"`
}

// ReparentTaskRequest moves a task under another parent in its project.
type ReparentTaskRequest struct {
	TaskID   string `json:"task_id"`
	ParentID string `json:"parent_id"`
}

// DeleteTaskRequest deletes a task with an optional cascade policy.
type DeleteTaskRequest struct {
	TaskID string `json:"task_id"`
	Policy string `json:"policy,omitempty"`
}

// CreateStatusRequest adds one status to a project workflow.
type CreateStatusRequest struct {
	ProjectID string          `json:"project_id"`
	Label     string          `json:"label"`
	Color     string          `json:"color,omitempty"`
	Order     *int            `json:"order,omitempty"`
	Flags     StatusFlagsView `json:"flags"`
}

// UpdateStatusRequest patches one status. Nil fields are left alone.
type UpdateStatusRequest struct {
	StatusID string           `json:"status_id"`
	Label    *string          `json:"label,omitempty"`
	Color    *string          `json:"color,omitempty"`
	Order    *int             `json:"order,omitempty"`
	Flags    *StatusFlagsView `json:"flags,omitempty"`
}

// DeleteStatusRequest removes one status.
type DeleteStatusRequest struct {
	StatusID         string `json:"status_id"`
	OnInUse          string `json:"on_in_use,omitempty"`
	FallbackStatusID string `json:"fallback_status_id,omitempty"`
}

// AddCommentRequest attaches a comment to a task.
type AddCommentRequest struct {
	TaskID string `json:"task_id"`
	Body   string `json:"body"`
}

// AuthorizeRequest asks whether the caller may perform an operation, or hold
// a role, on a project.
type AuthorizeRequest struct {
	ProjectID    string `json:"project_id"`
	Operation    string `json:"operation,omitempty"`
	RequiredRole string `json:"required_role,omitempty"`
}

// Workspace is the set of operations both transports expose.
type Workspace interface {
	Authorize(context.Context, AuthorizeRequest) (DecisionView, error)

	ListProjects(context.Context) ([]ProjectView, error)
	GetProject(context.Context, string) (ProjectView, error)
	CreateProject(context.Context, CreateProjectRequest) (ProjectView, error)
	UpdateProject(context.Context, UpdateProjectRequest) (ProjectView, error)
	MoveProject(context.Context, MoveProjectRequest) (ProjectView, error)
	DeleteProject(context.Context, string) ([]string, error)

	ListMembers(context.Context, string) ([]MemberView, error)
	AddMember(context.Context, MemberRequest) (MemberView, error)
	UpdateMember(context.Context, MemberRequest) (MemberView, error)
	RemoveMember(context.Context, string, string) error

	ListTasks(context.Context, string) ([]TaskView, error)
	TaskTree(context.Context, string) ([]TreeNodeView, error)
	CreateTask(context.Context, CreateTaskRequest) (TaskView, error)
	UpdateTask(context.Context, UpdateTaskRequest) (TaskView, error)
	ReparentTask(context.Context, ReparentTaskRequest) (TaskView, error)
	DeleteTask(context.Context, DeleteTaskRequest) ([]string, error)

	ListStatuses(context.Context, string) ([]StatusView, error)
	CreateStatus(context.Context, CreateStatusRequest) (StatusView, error)
	UpdateStatus(context.Context, UpdateStatusRequest) (StatusView, error)
	DeleteStatus(context.Context, DeleteStatusRequest) (int, error)

	ListComments(context.Context, string) ([]CommentView, error)
	AddComment(context.Context, AddCommentRequest) (CommentView, error)

	ListChangeEvents(context.Context, string, int) ([]ChangeEventView, error)
}

// Authenticator resolves an Authorization header to a user id.
type Authenticator interface {
	VerifyHeader(header string) (string, error)
}
