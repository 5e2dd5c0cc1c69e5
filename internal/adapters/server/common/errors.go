package common

import (
	"errors"
	"net/http"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorKind is the transport classification of one failure.
type ErrorKind struct {
	Status int
	Code   string
}

// Classify maps service errors onto one HTTP status and stable error code.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKind{Status: http.StatusInternalServerError, Code: "internal_error"}
	case errors.Is(err, app.ErrUnauthenticated):
		return ErrorKind{Status: http.StatusUnauthorized, Code: "unauthenticated"}
	case errors.Is(err, app.ErrForbidden):
		return ErrorKind{Status: http.StatusForbidden, Code: "forbidden"}
	case errors.Is(err, app.ErrTransient):
		return ErrorKind{Status: http.StatusServiceUnavailable, Code: "transient"}
	case errors.Is(err, app.ErrGraphCorruption):
		return ErrorKind{Status: http.StatusInternalServerError, Code: "graph_corruption"}
	case errors.Is(err, app.ErrNotFound):
		return ErrorKind{Status: http.StatusNotFound, Code: "not_found"}
	case errors.Is(err, app.ErrCycleDetected):
		return ErrorKind{Status: http.StatusConflict, Code: "cycle_detected"}
	case errors.Is(err, app.ErrHasChildren):
		return ErrorKind{Status: http.StatusConflict, Code: "has_children"}
	case errors.Is(err, app.ErrStatusInUse):
		return ErrorKind{Status: http.StatusConflict, Code: "status_in_use"}
	case errors.Is(err, app.ErrDepthExceeded):
		return ErrorKind{Status: http.StatusConflict, Code: "depth_exceeded"}
	case errors.Is(err, app.ErrMemberExists):
		return ErrorKind{Status: http.StatusConflict, Code: "member_exists"}
	case errors.Is(err, app.ErrInvalidReference):
		return ErrorKind{Status: http.StatusBadRequest, Code: "invalid_reference"}
	case errors.Is(err, app.ErrCommentRequired):
		return ErrorKind{Status: http.StatusBadRequest, Code: "comment_required"}
	case errors.Is(err, app.ErrCommentsNotAllowed):
		return ErrorKind{Status: http.StatusBadRequest, Code: "comments_not_allowed"}
	case isValidationError(err):
		return ErrorKind{Status: http.StatusBadRequest, Code: "invalid_request"}
	default:
		return ErrorKind{Status: http.StatusInternalServerError, Code: "internal_error"}
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		app.ErrInvalidRole,
		app.ErrInvalidCascadePolicy,
		app.ErrInvalidOnInUse,
		domain.ErrInvalidID,
		domain.ErrInvalidName,
		domain.ErrInvalidTitle,
		domain.ErrInvalidLabel,
		domain.ErrInvalidColor,
		domain.ErrInvalidRole,
		domain.ErrInvalidUserID,
		domain.ErrInvalidParentID,
		domain.ErrInvalidBody,
		domain.ErrOwnerRoleReserved,
		domain.ErrSelfParent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PublicMessage returns the message safe to show a caller. Internal failures
// are not echoed.
func PublicMessage(err error, kind ErrorKind) string {
	switch kind.Code {
	case "internal_error":
		return "internal error"
	case "graph_corruption":
		return "stored hierarchy is inconsistent"
	case "transient":
		return "temporarily unavailable, retry the request"
	}
	return err.Error()
}
