package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidLabel       = errors.New("invalid label")
	ErrInvalidColor       = errors.New("invalid color")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidParentID    = errors.New("invalid parent id")
	ErrInvalidBody        = errors.New("invalid comment body")
	ErrInvalidEntityType  = errors.New("invalid entity type")
	ErrOwnerRoleReserved  = errors.New("owner role is reserved for the project owner")
	ErrSelfParent         = errors.New("entity cannot be its own parent")
)
