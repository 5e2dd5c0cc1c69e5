package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/warden/internal/domain"
)

// Visibility tells how a listed project became visible to a user.
type Visibility string

// Visibility values.
const (
	VisibilityDirect   Visibility = "direct"
	VisibilityAncestor Visibility = "ancestor"
)

// VisibleProject is one row of a user's project listing.
type VisibleProject struct {
	Project    domain.Project
	Role       domain.Role
	Visibility Visibility
}

// effectiveRole resolves the role of userID on project. Ownership wins before
// memberships are read. Parent projects grant nothing.
func effectiveRole(ctx context.Context, tx Tx, userID string, project domain.Project) (domain.Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.RoleNone, nil
	}
	if project.IsOwnedBy(userID) {
		return domain.RoleOwner, nil
	}
	membership, err := tx.GetMembership(ctx, project.ID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.RoleNone, nil
	case err != nil:
		return domain.RoleNone, err
	}
	return memberRole(membership.Role), nil
}

// memberRole clamps a stored membership role into the viewer..editor range.
// Owner rows written before ownership became a separate fact read as editor.
func memberRole(role domain.Role) domain.Role {
	if role >= domain.RoleOwner {
		return domain.RoleEditor
	}
	return role
}

// EffectiveRole returns the role userID holds on projectID.
func (s *Service) EffectiveRole(ctx context.Context, userID, projectID string) (domain.Role, error) {
	var role domain.Role
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		role, err = effectiveRole(ctx, tx, userID, project)
		return err
	})
	return role, err
}

// IsOwner reports whether userID owns projectID.
func (s *Service) IsOwner(ctx context.Context, userID, projectID string) (bool, error) {
	role, err := s.EffectiveRole(ctx, userID, projectID)
	return role == domain.RoleOwner, err
}

// IsEditorOrOwner reports whether userID may edit inside projectID.
func (s *Service) IsEditorOrOwner(ctx context.Context, userID, projectID string) (bool, error) {
	role, err := s.EffectiveRole(ctx, userID, projectID)
	return role.AtLeast(domain.RoleEditor), err
}

// ListVisibleProjects lists the projects the caller owns or belongs to, plus
// every ancestor of those. Ancestors are listed with the caller's own role on
// them, which is usually none.
func (s *Service) ListVisibleProjects(ctx context.Context) ([]VisibleProject, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	var out []VisibleProject
	err = s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		out, err = visibleProjects(ctx, tx, actorID)
		return err
	})
	return out, err
}

func visibleProjects(ctx context.Context, tx Tx, userID string) ([]VisibleProject, error) {
	projects, err := tx.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	memberships, err := tx.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	roles := map[string]domain.Role{}
	for _, p := range projects {
		if p.IsOwnedBy(userID) {
			roles[p.ID] = domain.RoleOwner
		}
	}
	for _, m := range memberships {
		if _, ok := byID[m.ProjectID]; !ok {
			continue
		}
		if _, owned := roles[m.ProjectID]; !owned {
			roles[m.ProjectID] = memberRole(m.Role)
		}
	}

	arena := projectArena(projects)
	visible := make(map[string]Visibility, len(roles))
	for id := range roles {
		visible[id] = VisibilityDirect
	}
	for id := range roles {
		chain, err := arena.ancestors(id)
		if err != nil {
			return nil, fmt.Errorf("list visible projects: %w", err)
		}
		for _, ancestorID := range chain {
			if _, ok := byID[ancestorID]; !ok {
				continue
			}
			if _, ok := visible[ancestorID]; !ok {
				visible[ancestorID] = VisibilityAncestor
			}
		}
	}

	out := make([]VisibleProject, 0, len(visible))
	for id, vis := range visible {
		out = append(out, VisibleProject{Project: byID[id], Role: roles[id], Visibility: vis})
	}
	slices.SortFunc(out, func(a, b VisibleProject) int {
		if c := a.Project.CreatedAt.Compare(b.Project.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Project.ID, b.Project.ID)
	})
	return out, nil
}

// projectArena indexes the project forest. Siblings keep creation order.
func projectArena(projects []domain.Project) *forest {
	sorted := slices.Clone(projects)
	slices.SortStableFunc(sorted, func(a, b domain.Project) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return newForest(sorted, func(p domain.Project) (string, string) { return p.ID, p.ParentID })
}
