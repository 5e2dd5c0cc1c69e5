package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hylla/warden/internal/domain"
)

// OnInUseMode selects what DeleteStatus does with a status tasks still reference.
type OnInUseMode string

// OnInUseMode values.
const (
	OnInUseModeReject   OnInUseMode = "reject"
	OnInUseModeReassign OnInUseMode = "reassign"
)

// OnInUse is the in-use policy for one status deletion.
type OnInUse struct {
	Mode             OnInUseMode
	FallbackStatusID string
}

// OnInUseReject fails the deletion while any task references the status.
func OnInUseReject() OnInUse {
	return OnInUse{Mode: OnInUseModeReject}
}

// OnInUseReassign repoints references to fallbackID before deleting.
func OnInUseReassign(fallbackID string) OnInUse {
	return OnInUse{Mode: OnInUseModeReassign, FallbackStatusID: fallbackID}
}

// CreateStatusInput holds input values for create status operations.
type CreateStatusInput struct {
	ProjectID string
	Label     string
	// Order appends after the current maximum when nil.
	Order *int
	// Color is backfilled from the label when empty.
	Color string
	Flags domain.StatusFlags
}

// CreateStatus adds a status to a project workflow.
func (s *Service) CreateStatus(ctx context.Context, in CreateStatusInput) (domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpCreateStatus, in.ProjectID)
		if err != nil {
			return err
		}
		order := 0
		if in.Order != nil {
			order = *in.Order
		} else {
			existing, err := tx.ListStatuses(ctx, project.ID)
			if err != nil {
				return err
			}
			order = nextOrder(existing)
		}
		status, err = domain.NewTaskStatus(domain.TaskStatusInput{
			ID:        s.idGen(),
			ProjectID: project.ID,
			Label:     in.Label,
			Color:     in.Color,
			Order:     order,
			Flags:     in.Flags,
		}, s.clock())
		if err != nil {
			return err
		}
		if err := tx.CreateStatus(ctx, status); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityStatus, status.ID, domain.ChangeOperationCreate, actorID, map[string]string{
			"label": status.Label,
			"color": status.Color,
			"order": strconv.Itoa(status.Order),
		})
	})
	if err != nil {
		return domain.TaskStatus{}, err
	}
	return status, nil
}

// UpdateStatus applies a partial update to a status. Its id never changes.
func (s *Service) UpdateStatus(ctx context.Context, statusID string, patch domain.StatusPatch) (domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var actorID string
		var err error
		status, actorID, err = guardStatus(ctx, tx, OpUpdateStatus, statusID)
		if err != nil {
			return err
		}
		if err := status.Apply(patch, s.clock()); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, status); err != nil {
			return err
		}
		return s.record(ctx, tx, status.ProjectID, domain.EntityStatus, status.ID, domain.ChangeOperationUpdate, actorID, map[string]string{
			"label": status.Label,
			"color": status.Color,
			"order": strconv.Itoa(status.Order),
		})
	})
	if err != nil {
		return domain.TaskStatus{}, err
	}
	return status, nil
}

// DeleteStatus removes a status. With reject, a status any task references
// stays put and ErrStatusInUse is returned. With reassign, tasks and comments
// move to the fallback first. It returns the number of tasks repointed.
func (s *Service) DeleteStatus(ctx context.Context, statusID string, onInUse OnInUse) (int, error) {
	switch onInUse.Mode {
	case OnInUseModeReject, OnInUseModeReassign:
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOnInUse, onInUse.Mode)
	}
	var (
		moved     int
		projectID string
	)
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		status, actorID, err := guardStatus(ctx, tx, OpDeleteStatus, statusID)
		if err != nil {
			return err
		}
		projectID = status.ProjectID
		tasks, err := tx.ListTasks(ctx, status.ProjectID)
		if err != nil {
			return err
		}
		inUse := slices.ContainsFunc(tasks, func(t domain.Task) bool { return t.StatusID == status.ID })

		metadata := map[string]string{"label": status.Label, "mode": string(onInUse.Mode)}
		if onInUse.Mode == OnInUseModeReject {
			if inUse {
				return fmt.Errorf("%w: %q", ErrStatusInUse, status.Label)
			}
		} else {
			fallbackID := strings.TrimSpace(onInUse.FallbackStatusID)
			if fallbackID == "" || fallbackID == status.ID {
				return fmt.Errorf("%w: fallback status %q", ErrInvalidReference, fallbackID)
			}
			fallback, err := tx.GetStatus(ctx, fallbackID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if err != nil || fallback.ProjectID != status.ProjectID {
				return fmt.Errorf("%w: fallback status %q is not in project %q", ErrInvalidReference, fallbackID, status.ProjectID)
			}
			moved, err = tx.ReassignStatus(ctx, status.ID, fallback.ID)
			if err != nil {
				return err
			}
			metadata["fallback_status_id"] = fallback.ID
			metadata["reassigned"] = strconv.Itoa(moved)
		}
		if err := tx.DeleteStatus(ctx, status.ID); err != nil {
			return err
		}
		return s.record(ctx, tx, status.ProjectID, domain.EntityStatus, status.ID, domain.ChangeOperationDelete, actorID, metadata)
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.trees.invalidate(projectID)
	}
	return moved, nil
}

// ListStatuses returns a project's workflow in order.
func (s *Service) ListStatuses(ctx context.Context, projectID string) ([]domain.TaskStatus, error) {
	var out []domain.TaskStatus
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, _, err := guard(ctx, tx, OpViewStatuses, projectID)
		if err != nil {
			return err
		}
		out, err = tx.ListStatuses(ctx, project.ID)
		if err != nil {
			return err
		}
		sortStatuses(out)
		return nil
	})
	return out, err
}

// sortStatuses orders by Order, then creation time, then id.
func sortStatuses(statuses []domain.TaskStatus) {
	slices.SortStableFunc(statuses, func(a, b domain.TaskStatus) int {
		if a.Order != b.Order {
			if a.Order < b.Order {
				return -1
			}
			return 1
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// nextOrder returns one past the highest order, or 0 for an empty workflow.
func nextOrder(statuses []domain.TaskStatus) int {
	if len(statuses) == 0 {
		return 0
	}
	highest := statuses[0].Order
	for _, st := range statuses[1:] {
		highest = max(highest, st.Order)
	}
	return highest + 1
}

func findStatus(statuses []domain.TaskStatus, id string) (domain.TaskStatus, bool) {
	idx := slices.IndexFunc(statuses, func(st domain.TaskStatus) bool { return st.ID == id })
	if idx < 0 {
		return domain.TaskStatus{}, false
	}
	return statuses[idx], true
}
