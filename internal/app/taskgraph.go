package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/hylla/warden/internal/domain"
)

// CascadePolicy selects how DeleteTask treats sub-tasks.
type CascadePolicy string

// CascadePolicy values.
const (
	CascadePolicyCascade          CascadePolicy = "cascade"
	CascadePolicyRejectIfChildren CascadePolicy = "reject_if_children"
)

// ParseCascadePolicy canonicalizes a policy name. Hyphens and underscores are interchangeable.
func ParseCascadePolicy(raw string) (CascadePolicy, error) {
	switch CascadePolicy(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), "-", "_")) {
	case CascadePolicyCascade:
		return CascadePolicyCascade, nil
	case CascadePolicyRejectIfChildren:
		return CascadePolicyRejectIfChildren, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCascadePolicy, raw)
	}
}

// TreeNode is one entry of a flattened task tree. Roots have depth 0.
type TreeNode struct {
	Task  domain.Task
	Depth int
}

// taskArena indexes the tasks of one project. Siblings keep creation order.
func taskArena(tasks []domain.Task) *forest {
	sorted := slices.Clone(tasks)
	sortTasks(sorted)
	return newForest(sorted, func(t domain.Task) (string, string) { return t.ID, t.ParentID })
}

// checkDepth enforces the configured nesting bound for a subtree of the given
// height placed under parentID.
func (s *Service) checkDepth(arena *forest, parentID string, height int) error {
	if s.maxTaskDepth <= 0 {
		return nil
	}
	base := 0
	if parentID != "" {
		d, err := arena.depth(parentID)
		if err != nil {
			return err
		}
		base = d
	}
	if base+height > s.maxTaskDepth {
		return fmt.Errorf("%w: depth %d exceeds %d", ErrDepthExceeded, base+height, s.maxTaskDepth)
	}
	return nil
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID   string
	ParentID    string
	StatusID    string
	Title       string
	Description string
}

// CreateTask attaches a new task to a project, optionally under a parent task.
// Without an explicit status the task gets the project's first status.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	var task domain.Task
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, actorID, err := guard(ctx, tx, OpCreateTask, in.ProjectID)
		if err != nil {
			return err
		}
		task, err = domain.NewTask(domain.TaskInput{
			ID:          s.idGen(),
			ProjectID:   project.ID,
			ParentID:    in.ParentID,
			StatusID:    in.StatusID,
			Title:       in.Title,
			Description: in.Description,
		}, s.clock())
		if err != nil {
			return err
		}

		tasks, err := tx.ListTasks(ctx, project.ID)
		if err != nil {
			return err
		}
		arena := taskArena(tasks)
		if task.ParentID != "" && !arena.has(task.ParentID) {
			return fmt.Errorf("%w: parent task %q is not in project %q", ErrInvalidReference, task.ParentID, project.ID)
		}
		if err := s.checkDepth(arena, task.ParentID, 1); err != nil {
			return err
		}

		statuses, err := tx.ListStatuses(ctx, project.ID)
		if err != nil {
			return err
		}
		if task.StatusID == "" {
			if len(statuses) > 0 {
				sortStatuses(statuses)
				task.StatusID = statuses[0].ID
			}
		} else if _, ok := findStatus(statuses, task.StatusID); !ok {
			return fmt.Errorf("%w: status %q is not in project %q", ErrInvalidReference, task.StatusID, project.ID)
		}

		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return s.record(ctx, tx, project.ID, domain.EntityTask, task.ID, domain.ChangeOperationCreate, actorID, map[string]string{"parent_id": task.ParentID, "status_id": task.StatusID})
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.trees.invalidate(task.ProjectID)
	return task, nil
}

// UpdateTaskInput holds input values for update task operations. Nil fields are left alone.
type UpdateTaskInput struct {
	TaskID      string
	Title       *string
	Description *string
	StatusID    *string
	// Comment annotates a status transition.
	Comment string
}

// UpdateTask edits task details and moves it between workflow statuses. A
// transition into a status that requires a comment fails without one, and a
// comment is refused when the target status neither requires nor allows it.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (domain.Task, error) {
	var task domain.Task
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var actorID string
		var err error
		task, _, actorID, err = guardTask(ctx, tx, OpUpdateTask, in.TaskID)
		if err != nil {
			return err
		}
		now := s.clock()
		title, description := task.Title, task.Description
		if in.Title != nil {
			title = *in.Title
		}
		if in.Description != nil {
			description = *in.Description
		}
		if err := task.UpdateDetails(title, description, now); err != nil {
			return err
		}

		comment := strings.TrimSpace(in.Comment)
		metadata := map[string]string{}
		if in.StatusID != nil && strings.TrimSpace(*in.StatusID) != task.StatusID {
			target := strings.TrimSpace(*in.StatusID)
			if target != "" {
				status, err := tx.GetStatus(ctx, target)
				if err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
				if err != nil || status.ProjectID != task.ProjectID {
					return fmt.Errorf("%w: status %q is not in project %q", ErrInvalidReference, target, task.ProjectID)
				}
				if status.Flags.RequiresComment && comment == "" {
					return fmt.Errorf("%w: %q", ErrCommentRequired, status.Label)
				}
				if comment != "" && !status.Flags.RequiresComment && !status.Flags.AllowsComment {
					return fmt.Errorf("%w: %q", ErrCommentsNotAllowed, status.Label)
				}
			}
			metadata["from_status_id"] = task.StatusID
			metadata["to_status_id"] = target
			task.SetStatus(target, now)
		}

		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if comment != "" {
			c, err := domain.NewComment(domain.CommentInput{
				ID:        s.idGen(),
				ProjectID: task.ProjectID,
				TaskID:    task.ID,
				AuthorID:  actorID,
				Body:      comment,
				StatusID:  task.StatusID,
			}, now)
			if err != nil {
				return err
			}
			if err := tx.CreateComment(ctx, c); err != nil {
				return err
			}
			metadata["comment_id"] = c.ID
		}
		return s.record(ctx, tx, task.ProjectID, domain.EntityTask, task.ID, domain.ChangeOperationUpdate, actorID, metadata)
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.trees.invalidate(task.ProjectID)
	return task, nil
}

// ReparentTask moves a task under newParentID, or to the root when empty.
// Cross-project parents, cycles, and depth overruns are rejected before any write.
func (s *Service) ReparentTask(ctx context.Context, taskID, newParentID string) (domain.Task, error) {
	newParentID = strings.TrimSpace(newParentID)
	var task domain.Task
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var actorID string
		var err error
		task, _, actorID, err = guardTask(ctx, tx, OpReparentTask, taskID)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, task.ProjectID)
		if err != nil {
			return err
		}
		arena := taskArena(tasks)
		if newParentID != "" && !arena.has(newParentID) {
			return fmt.Errorf("%w: parent task %q is not in project %q", ErrInvalidReference, newParentID, task.ProjectID)
		}
		cycle, err := arena.wouldCycle(task.ID, newParentID)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: task %q under %q", ErrCycleDetected, task.ID, newParentID)
		}
		height, err := arena.height(task.ID)
		if err != nil {
			return err
		}
		if err := s.checkDepth(arena, newParentID, height); err != nil {
			return err
		}

		from := task.ParentID
		if err := task.Reparent(newParentID, s.clock()); err != nil {
			return err
		}
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		return s.record(ctx, tx, task.ProjectID, domain.EntityTask, task.ID, domain.ChangeOperationMove, actorID, map[string]string{"from_parent_id": from, "to_parent_id": newParentID})
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.trees.invalidate(task.ProjectID)
	return task, nil
}

// DeleteTask deletes a task under policy and returns the removed ids in
// deletion order. An empty policy uses the configured default.
func (s *Service) DeleteTask(ctx context.Context, taskID string, policy CascadePolicy) ([]string, error) {
	if policy == "" {
		policy = s.cascadePolicy
	}
	policy, err := ParseCascadePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	var (
		deleted   []string
		projectID string
	)
	err = s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		task, _, actorID, err := guardTask(ctx, tx, OpDeleteTask, taskID)
		if err != nil {
			return err
		}
		projectID = task.ProjectID
		tasks, err := tx.ListTasks(ctx, task.ProjectID)
		if err != nil {
			return err
		}
		arena := taskArena(tasks)
		if policy == CascadePolicyRejectIfChildren && arena.hasChildren(task.ID) {
			return fmt.Errorf("%w: %q", ErrHasChildren, task.ID)
		}
		order, err := arena.postOrder(task.ID)
		if err != nil {
			return err
		}
		for _, id := range order {
			if err := tx.DeleteTask(ctx, id); err != nil {
				return err
			}
			if err := s.record(ctx, tx, task.ProjectID, domain.EntityTask, id, domain.ChangeOperationDelete, actorID, map[string]string{"root_id": task.ID, "policy": string(policy)}); err != nil {
				return err
			}
		}
		deleted = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.trees.invalidate(projectID)
	if len(deleted) > 1 {
		log.Info("cascade delete", "project_id", projectID, "task_id", taskID, "removed", len(deleted))
	}
	return deleted, nil
}

// ListTasks lists the tasks of a project by creation time.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, _, err := guard(ctx, tx, OpViewTasks, projectID)
		if err != nil {
			return err
		}
		out, err = tx.ListTasks(ctx, project.ID)
		if err != nil {
			return err
		}
		sortTasks(out)
		return nil
	})
	return out, err
}

// TaskTree returns the project's tasks flattened depth-first, siblings by
// creation time. The materialized tree is cached per project until the next
// task mutation; authorization is checked on every call.
func (s *Service) TaskTree(ctx context.Context, projectID string) ([]TreeNode, error) {
	var out []TreeNode
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		project, _, err := guard(ctx, tx, OpViewTasks, projectID)
		if err != nil {
			return err
		}
		mark, err := tx.ChangeMark(ctx, project.ID)
		if err != nil {
			return err
		}
		if nodes, ok := s.trees.get(project.ID, mark); ok {
			out = nodes
			return nil
		}
		tasks, err := tx.ListTasks(ctx, project.ID)
		if err != nil {
			return err
		}
		out, err = flattenTasks(tasks)
		if err != nil {
			return err
		}
		s.trees.put(project.ID, mark, out)
		return nil
	})
	return out, err
}

// flattenTasks orders tasks pre-order with depth. Tasks unreachable from a
// root can only sit on a stored cycle.
func flattenTasks(tasks []domain.Task) ([]TreeNode, error) {
	sortTasks(tasks)
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	arena := taskArena(tasks)
	out := make([]TreeNode, 0, len(tasks))
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		out = append(out, TreeNode{Task: byID[id], Depth: depth})
		for _, child := range arena.children[id] {
			walk(child, depth+1)
		}
	}
	for _, t := range tasks {
		if t.ParentID == "" || !arena.has(t.ParentID) {
			walk(t.ID, 0)
		}
	}
	if len(out) != len(tasks) {
		return nil, fmt.Errorf("%w: %d tasks unreachable from any root", ErrGraphCorruption, len(tasks)-len(out))
	}
	return out, nil
}

// AddComment attaches a comment to a task, stamped with the task's current status.
func (s *Service) AddComment(ctx context.Context, taskID, body string) (domain.Comment, error) {
	var comment domain.Comment
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		task, _, actorID, err := guardTask(ctx, tx, OpAddComment, taskID)
		if err != nil {
			return err
		}
		comment, err = domain.NewComment(domain.CommentInput{
			ID:        s.idGen(),
			ProjectID: task.ProjectID,
			TaskID:    task.ID,
			AuthorID:  actorID,
			Body:      body,
			StatusID:  task.StatusID,
		}, s.clock())
		if err != nil {
			return err
		}
		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}
		return s.record(ctx, tx, task.ProjectID, domain.EntityComment, comment.ID, domain.ChangeOperationCreate, actorID, map[string]string{"task_id": task.ID})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	return comment, nil
}

// ListComments lists the comments of a task, oldest first.
func (s *Service) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		task, _, _, err := guardTask(ctx, tx, OpViewComments, taskID)
		if err != nil {
			return err
		}
		out, err = tx.ListComments(ctx, task.ID)
		if err != nil {
			return err
		}
		slices.SortStableFunc(out, func(a, b domain.Comment) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		return nil
	})
	return out, err
}

// sortTasks orders tasks by creation time then id.
func sortTasks(tasks []domain.Task) {
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// treeCache holds flattened task trees per project, each stamped with the
// ledger mark read in the same transaction. A tree is served only while the
// stored mark is unchanged, so writes from other processes sharing the store
// are seen on the next read.
type treeCache struct {
	mu    sync.Mutex
	trees map[string]cachedTree
}

type cachedTree struct {
	mark  ChangeMark
	nodes []TreeNode
}

func newTreeCache() *treeCache {
	return &treeCache{trees: map[string]cachedTree{}}
}

func (c *treeCache) get(projectID string, mark ChangeMark) ([]TreeNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.trees[projectID]
	if !ok || entry.mark != mark {
		return nil, false
	}
	return slices.Clone(entry.nodes), true
}

func (c *treeCache) put(projectID string, mark ChangeMark, nodes []TreeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[projectID] = cachedTree{mark: mark, nodes: slices.Clone(nodes)}
}

// invalidate drops a project's tree after a local write.
func (c *treeCache) invalidate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trees, projectID)
}
