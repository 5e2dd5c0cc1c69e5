package app

import (
	"context"

	"github.com/hylla/warden/internal/domain"
)

// Repository is the transactable store the service runs every operation against.
type Repository interface {
	// InTx runs fn inside one transaction. A nil return commits; any error,
	// panic, or context cancellation rolls back.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the reads and writes available inside one transaction.
// Lookups of absent rows return ErrNotFound.
type Tx interface {
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context) ([]domain.Project, error)
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	// DeleteProject removes one project row with its tasks, statuses,
	// memberships, and comments. Sub-projects are not touched.
	DeleteProject(context.Context, string) error

	GetMembership(ctx context.Context, projectID, userID string) (domain.Membership, error)
	ListMemberships(ctx context.Context, projectID string) ([]domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]domain.Membership, error)
	CreateMembership(context.Context, domain.Membership) error
	UpdateMembership(context.Context, domain.Membership) error
	DeleteMembership(ctx context.Context, projectID, userID string) error

	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	// DeleteTask removes one task row and its comments.
	DeleteTask(context.Context, string) error

	GetStatus(context.Context, string) (domain.TaskStatus, error)
	ListStatuses(ctx context.Context, projectID string) ([]domain.TaskStatus, error)
	CreateStatus(context.Context, domain.TaskStatus) error
	UpdateStatus(context.Context, domain.TaskStatus) error
	DeleteStatus(context.Context, string) error
	// ReassignStatus repoints every task and comment from one status to another
	// and returns the number of tasks changed.
	ReassignStatus(ctx context.Context, fromID, toID string) (int, error)

	CreateComment(context.Context, domain.Comment) error
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)

	AppendChangeEvent(context.Context, domain.ChangeEvent) error
	ListChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error)
	// ChangeMark summarizes the committed change events of a project.
	ChangeMark(ctx context.Context, projectID string) (ChangeMark, error)
}

// ChangeMark identifies the state of one project's change-event ledger. Any
// committed event moves it, whichever process wrote it.
type ChangeMark struct {
	LastID int64
	Count  int64
}
