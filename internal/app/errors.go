package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidReference = errors.New("invalid reference")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrHasChildren      = errors.New("task has children")
	ErrStatusInUse      = errors.New("status in use")
	ErrGraphCorruption  = errors.New("graph corruption")
	ErrTransient        = errors.New("transient store failure")
	ErrMemberExists     = errors.New("member already exists")

	ErrInvalidRole          = errors.New("invalid role")
	ErrDepthExceeded        = errors.New("maximum task depth exceeded")
	ErrCommentRequired      = errors.New("status requires a comment")
	ErrCommentsNotAllowed   = errors.New("status does not allow comments")
	ErrInvalidCascadePolicy = errors.New("invalid cascade policy")
	ErrInvalidOnInUse       = errors.New("invalid on-in-use mode")
)
