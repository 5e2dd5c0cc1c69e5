package domain

import (
	"fmt"
	"strings"
)

// Role is one rung of the fixed owner > editor > viewer lattice.
type Role int

// Role values in ascending order of privilege.
const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleOwner
)

// String returns the canonical lower-case role name.
func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// IsMemberRole reports whether a membership row may carry this role.
func (r Role) IsMemberRole() bool {
	return r == RoleViewer || r == RoleEditor
}

// ParseRole canonicalizes a role name.
func ParseRole(raw string) (Role, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "viewer":
		return RoleViewer, nil
	case "editor":
		return RoleEditor, nil
	case "owner":
		return RoleOwner, nil
	case "", "none":
		return RoleNone, nil
	default:
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
