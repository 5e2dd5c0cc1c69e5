package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/warden/internal/domain"
)

// Package defaults.
const (
	DefaultMaxTaskDepth     = 16
	DefaultOperationTimeout = 5 * time.Second
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	// MaxTaskDepth bounds task nesting. Roots sit at depth 1. Zero keeps the
	// default and a negative value disables the bound.
	MaxTaskDepth         int
	OperationTimeout     time.Duration
	DefaultCascadePolicy CascadePolicy
	StatusTemplates      []StatusTemplate
	AutoCreateStatuses   bool
}

// StatusTemplate seeds one workflow status into new projects.
type StatusTemplate struct {
	Label string
	Color string
	Flags domain.StatusFlags
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the authorization and graph-consistency core.
type Service struct {
	repo            Repository
	idGen           IDGenerator
	clock           Clock
	maxTaskDepth    int
	opTimeout       time.Duration
	cascadePolicy   CascadePolicy
	statusTemplates []StatusTemplate
	autoStatuses    bool
	trees           *treeCache
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	switch {
	case cfg.MaxTaskDepth == 0:
		cfg.MaxTaskDepth = DefaultMaxTaskDepth
	case cfg.MaxTaskDepth < 0:
		cfg.MaxTaskDepth = 0
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.DefaultCascadePolicy == "" {
		cfg.DefaultCascadePolicy = CascadePolicyRejectIfChildren
	}
	templates := sanitizeStatusTemplates(cfg.StatusTemplates)
	if len(templates) == 0 {
		templates = defaultStatusTemplates()
	}

	return &Service{
		repo:            repo,
		idGen:           idGen,
		clock:           clock,
		maxTaskDepth:    cfg.MaxTaskDepth,
		opTimeout:       cfg.OperationTimeout,
		cascadePolicy:   cfg.DefaultCascadePolicy,
		statusTemplates: templates,
		autoStatuses:    cfg.AutoCreateStatuses,
		trees:           newTreeCache(),
	}
}

// inTx runs fn in one store transaction, bounded by the operation timeout when
// the caller set no deadline. Deadline expiry surfaces as ErrTransient.
func (s *Service) inTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if _, ok := ctx.Deadline(); !ok && s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}
	err := s.repo.InTx(ctx, func(tx Tx) error {
		return fn(ctx, tx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrGraphCorruption):
		log.Error("graph corruption detected", "err", err)
		return err
	case errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}

// record appends one change event inside tx.
func (s *Service) record(ctx context.Context, tx Tx, projectID string, entity domain.EntityType, entityID string, op domain.ChangeOperation, actorID string, metadata map[string]string) error {
	return tx.AppendChangeEvent(ctx, domain.ChangeEvent{
		ProjectID:  projectID,
		EntityType: entity,
		EntityID:   entityID,
		Operation:  op,
		ActorID:    actorID,
		Metadata:   metadata,
		OccurredAt: s.clock().UTC(),
	})
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Name     string
	ParentID string
}

// CreateProject creates a project owned by the caller. A sub-project needs
// editor on its parent; a root project needs only an authenticated caller.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	var project domain.Project
	err = s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		parentID := strings.TrimSpace(in.ParentID)
		if parentID != "" {
			if _, _, err := guard(ctx, tx, OpCreateSubProject, parentID); err != nil {
				return err
			}
		}
		now := s.clock()
		project, err = domain.NewProject(domain.ProjectInput{
			ID:       s.idGen(),
			Name:     in.Name,
			OwnerID:  actorID,
			ParentID: parentID,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		if err := s.record(ctx, tx, project.ID, domain.EntityProject, project.ID, domain.ChangeOperationCreate, actorID, map[string]string{"name": project.Name, "parent_id": parentID}); err != nil {
			return err
		}
		if s.autoStatuses {
			return s.createDefaultStatuses(ctx, tx, project.ID, actorID, now)
		}
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// GetProject returns one project visible to a viewer of it.
func (s *Service) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var project domain.Project
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		project, _, err = guard(ctx, tx, OpViewProject, projectID)
		return err
	})
	return project, err
}

// UpdateProject renames a project.
func (s *Service) UpdateProject(ctx context.Context, projectID, name string) (domain.Project, error) {
	var project domain.Project
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var actorID string
		var err error
		project, actorID, err = guard(ctx, tx, OpUpdateProject, projectID)
		if err != nil {
			return err
		}
		if err := project.Rename(name, s.clock()); err != nil {
			return err
		}
		if err := tx.UpdateProject(ctx, project); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityProject, project.ID, domain.ChangeOperationUpdate, actorID, map[string]string{"name": project.Name})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// MoveProject re-parents a project, or makes it a root when newParentID is empty.
// The caller must own the project and hold editor on the new parent.
func (s *Service) MoveProject(ctx context.Context, projectID, newParentID string) (domain.Project, error) {
	newParentID = strings.TrimSpace(newParentID)
	var project domain.Project
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var actorID string
		var err error
		project, actorID, err = guard(ctx, tx, OpMoveProject, projectID)
		if err != nil {
			return err
		}
		if newParentID != "" {
			if _, _, err := guard(ctx, tx, OpCreateSubProject, newParentID); err != nil {
				return err
			}
		}
		projects, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		arena := projectArena(projects)
		cycle, err := arena.wouldCycle(project.ID, newParentID)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: project %q under %q", ErrCycleDetected, project.ID, newParentID)
		}
		from := project.ParentID
		if err := project.Reparent(newParentID, s.clock()); err != nil {
			return err
		}
		if err := tx.UpdateProject(ctx, project); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityProject, project.ID, domain.ChangeOperationMove, actorID, map[string]string{"from_parent_id": from, "to_parent_id": newParentID})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// DeleteProject removes a project and its whole sub-project subtree with
// their tasks, statuses, memberships, and comments. It returns the removed
// project ids, children before parents.
func (s *Service) DeleteProject(ctx context.Context, projectID string) ([]string, error) {
	var deleted []string
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpDeleteProject, projectID)
		if err != nil {
			return err
		}
		projects, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		arena := projectArena(projects)
		order, err := arena.postOrder(project.ID)
		if err != nil {
			return err
		}
		for _, id := range order {
			if err := tx.DeleteProject(ctx, id); err != nil {
				return err
			}
			if err := s.record(ctx, tx, id, domain.EntityProject, id, domain.ChangeOperationDelete, actorID, map[string]string{"root_id": project.ID}); err != nil {
				return err
			}
		}
		deleted = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range deleted {
		s.trees.invalidate(id)
	}
	log.Info("project deleted", "project_id", projectID, "removed", len(deleted))
	return deleted, nil
}

// AddMember grants userID a viewer or editor role on projectID.
func (s *Service) AddMember(ctx context.Context, projectID, userID string, role domain.Role) (domain.Membership, error) {
	var membership domain.Membership
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpAddMember, projectID)
		if err != nil {
			return err
		}
		if project.IsOwnedBy(userID) {
			return fmt.Errorf("%w: %q already owns the project", ErrInvalidRole, userID)
		}
		membership, err = domain.NewMembership(project.ID, userID, role, s.clock())
		if err != nil {
			return translateRoleErr(err)
		}
		_, err = tx.GetMembership(ctx, project.ID, membership.UserID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q", ErrMemberExists, membership.UserID)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := tx.CreateMembership(ctx, membership); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityMembership, membership.UserID, domain.ChangeOperationCreate, actorID, map[string]string{"role": membership.Role.String()})
	})
	if err != nil {
		return domain.Membership{}, err
	}
	return membership, nil
}

// UpdateMember changes the role of an existing member.
func (s *Service) UpdateMember(ctx context.Context, projectID, userID string, role domain.Role) (domain.Membership, error) {
	var membership domain.Membership
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpUpdateMember, projectID)
		if err != nil {
			return err
		}
		membership, err = tx.GetMembership(ctx, project.ID, strings.TrimSpace(userID))
		if err != nil {
			return err
		}
		if err := membership.SetRole(role, s.clock()); err != nil {
			return translateRoleErr(err)
		}
		if err := tx.UpdateMembership(ctx, membership); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityMembership, membership.UserID, domain.ChangeOperationUpdate, actorID, map[string]string{"role": membership.Role.String()})
	})
	if err != nil {
		return domain.Membership{}, err
	}
	return membership, nil
}

// RemoveMember revokes a membership. Ownership cannot be revoked this way.
func (s *Service) RemoveMember(ctx context.Context, projectID, userID string) error {
	return s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpRemoveMember, projectID)
		if err != nil {
			return err
		}
		userID = strings.TrimSpace(userID)
		if project.IsOwnedBy(userID) {
			return fmt.Errorf("%w: the owner is not a member", ErrInvalidRole)
		}
		if err := tx.DeleteMembership(ctx, project.ID, userID); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityMembership, userID, domain.ChangeOperationDelete, actorID, nil)
	})
}

// ListMembers lists the memberships of a project ordered by user id.
func (s *Service) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, _, err := guard(ctx, tx, OpViewMembers, projectID)
		if err != nil {
			return err
		}
		out, err = tx.ListMemberships(ctx, project.ID)
		if err != nil {
			return err
		}
		for i := range out {
			out[i].Role = memberRole(out[i].Role)
		}
		slices.SortFunc(out, func(a, b domain.Membership) int { return strings.Compare(a.UserID, b.UserID) })
		return nil
	})
	return out, err
}

// ListProjectChangeEvents lists recent activity for a project, newest first.
func (s *Service) ListProjectChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.ChangeEvent
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, _, err := guard(ctx, tx, OpViewEvents, projectID)
		if err != nil {
			return err
		}
		out, err = tx.ListChangeEvents(ctx, project.ID, limit)
		return err
	})
	return out, err
}

// translateRoleErr maps domain role validation onto ErrInvalidRole.
func translateRoleErr(err error) error {
	if errors.Is(err, domain.ErrOwnerRoleReserved) || errors.Is(err, domain.ErrInvalidRole) {
		return fmt.Errorf("%w: %w", ErrInvalidRole, err)
	}
	return err
}

// defaultStatusTemplates returns default status templates.
func defaultStatusTemplates() []StatusTemplate {
	return []StatusTemplate{
		{Label: "To Do", Flags: domain.StatusFlags{AllowsComment: true}},
		{Label: "In Progress", Flags: domain.StatusFlags{AllowsComment: true}},
		{Label: "Done", Flags: domain.StatusFlags{ShowStrikeThrough: true, AllowsComment: true}},
	}
}

// sanitizeStatusTemplates trims labels and drops blanks and case-insensitive duplicates.
func sanitizeStatusTemplates(in []StatusTemplate) []StatusTemplate {
	if len(in) == 0 {
		return nil
	}
	out := make([]StatusTemplate, 0, len(in))
	seen := map[string]struct{}{}
	for _, tpl := range in {
		tpl.Label = strings.TrimSpace(tpl.Label)
		tpl.Color = strings.TrimSpace(tpl.Color)
		if tpl.Label == "" {
			continue
		}
		key := strings.ToLower(tpl.Label)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tpl)
	}
	return out
}

// createDefaultStatuses seeds the configured workflow into a new project.
func (s *Service) createDefaultStatuses(ctx context.Context, tx Tx, projectID, actorID string, now time.Time) error {
	for idx, tpl := range s.statusTemplates {
		status, err := domain.NewTaskStatus(domain.TaskStatusInput{
			ID:        s.idGen(),
			ProjectID: projectID,
			Label:     tpl.Label,
			Color:     tpl.Color,
			Order:     idx,
			Flags:     tpl.Flags,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.CreateStatus(ctx, status); err != nil {
			return err
		}
		if err := s.record(ctx, tx, projectID, domain.EntityStatus, status.ID, domain.ChangeOperationCreate, actorID, map[string]string{"label": status.Label}); err != nil {
			return err
		}
	}
	return nil
}
