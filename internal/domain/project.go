package domain

import (
	"strings"
	"time"
)

// Project is one node of the project forest.
type Project struct {
	ID        string
	Name      string
	OwnerID   string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectInput holds values for project construction.
type ProjectInput struct {
	ID       string
	Name     string
	OwnerID  string
	ParentID string
}

// NewProject constructs a normalized project.
func NewProject(in ProjectInput, now time.Time) (Project, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	if in.ID == "" {
		return Project{}, ErrInvalidID
	}
	if in.Name == "" {
		return Project{}, ErrInvalidName
	}
	if in.OwnerID == "" {
		return Project{}, ErrInvalidUserID
	}
	if in.ParentID == in.ID {
		return Project{}, ErrSelfParent
	}

	return Project{
		ID:        in.ID,
		Name:      in.Name,
		OwnerID:   in.OwnerID,
		ParentID:  in.ParentID,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename renames the project.
func (p *Project) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.UpdatedAt = now.UTC()
	return nil
}

// Reparent moves the project under parentID, or to the root when empty.
func (p *Project) Reparent(parentID string, now time.Time) error {
	parentID = strings.TrimSpace(parentID)
	if parentID == p.ID {
		return ErrSelfParent
	}
	p.ParentID = parentID
	p.UpdatedAt = now.UTC()
	return nil
}

// IsOwnedBy reports whether userID holds the ownership fact for p.
func (p Project) IsOwnedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && userID == p.OwnerID
}

// Membership grants one user a role on one project.
type Membership struct {
	ProjectID string
	UserID    string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMembership validates one membership row. Ownership is not a membership.
func NewMembership(projectID, userID string, role Role, now time.Time) (Membership, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" {
		return Membership{}, ErrInvalidID
	}
	if userID == "" {
		return Membership{}, ErrInvalidUserID
	}
	if role == RoleOwner {
		return Membership{}, ErrOwnerRoleReserved
	}
	if !role.IsMemberRole() {
		return Membership{}, ErrInvalidRole
	}
	return Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// SetRole changes the member role.
func (m *Membership) SetRole(role Role, now time.Time) error {
	if role == RoleOwner {
		return ErrOwnerRoleReserved
	}
	if !role.IsMemberRole() {
		return ErrInvalidRole
	}
	m.Role = role
	m.UpdatedAt = now.UTC()
	return nil
}
