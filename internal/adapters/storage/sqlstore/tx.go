package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// txStore implements app.Tx over one open transaction.
type txStore struct {
	tx *sqlx.Tx
}

var _ app.Tx = (*txStore)(nil)

// get loads one row, mapping sql.ErrNoRows to app.ErrNotFound.
func (s *txStore) get(ctx context.Context, dest any, query string, args ...any) error {
	err := s.tx.GetContext(ctx, dest, s.tx.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}

func (s *txStore) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	return s.tx.SelectContext(ctx, dest, s.tx.Rebind(query), args...)
}

func (s *txStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, s.tx.Rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (s *txStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

func (s *txStore) namedExec(ctx context.Context, query string, arg any) error {
	_, err := s.tx.NamedExecContext(ctx, query, arg)
	return err
}

// GetProject returns project.
func (s *txStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var row projectRow
	if err := s.get(ctx, &row, `SELECT id, name, owner_id, parent_id, created_at, updated_at FROM projects WHERE id = ?`, id); err != nil {
		return domain.Project{}, err
	}
	return row.toDomain(), nil
}

// ListProjects lists projects.
func (s *txStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var rows []projectRow
	if err := s.selectRows(ctx, &rows, `SELECT id, name, owner_id, parent_id, created_at, updated_at FROM projects ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CreateProject creates project.
func (s *txStore) CreateProject(ctx context.Context, p domain.Project) error {
	return s.namedExec(ctx, `
		INSERT INTO projects(id, name, owner_id, parent_id, created_at, updated_at)
		VALUES (:id, :name, :owner_id, :parent_id, :created_at, :updated_at)
	`, projectRowFrom(p))
}

// UpdateProject updates state for the requested operation.
func (s *txStore) UpdateProject(ctx context.Context, p domain.Project) error {
	row := projectRowFrom(p)
	return s.execOne(ctx, `UPDATE projects SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`, row.Name, row.ParentID, row.UpdatedAt, row.ID)
}

// DeleteProject deletes one project row and everything it holds except sub-projects.
func (s *txStore) DeleteProject(ctx context.Context, id string) error {
	for _, stmt := range []string{
		`DELETE FROM comments WHERE project_id = ?`,
		`DELETE FROM tasks WHERE project_id = ?`,
		`DELETE FROM task_statuses WHERE project_id = ?`,
		`DELETE FROM memberships WHERE project_id = ?`,
	} {
		if _, err := s.exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete project %q: %w", id, err)
		}
	}
	return s.execOne(ctx, `DELETE FROM projects WHERE id = ?`, id)
}

// GetMembership returns one membership.
func (s *txStore) GetMembership(ctx context.Context, projectID, userID string) (domain.Membership, error) {
	var row membershipRow
	if err := s.get(ctx, &row, `SELECT project_id, user_id, role, created_at, updated_at FROM memberships WHERE project_id = ? AND user_id = ?`, projectID, userID); err != nil {
		return domain.Membership{}, err
	}
	return row.toDomain()
}

// ListMemberships lists the members of a project.
func (s *txStore) ListMemberships(ctx context.Context, projectID string) ([]domain.Membership, error) {
	return s.listMemberships(ctx, `SELECT project_id, user_id, role, created_at, updated_at FROM memberships WHERE project_id = ? ORDER BY user_id ASC`, projectID)
}

// ListMembershipsByUser lists every membership one user holds.
func (s *txStore) ListMembershipsByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	return s.listMemberships(ctx, `SELECT project_id, user_id, role, created_at, updated_at FROM memberships WHERE user_id = ? ORDER BY project_id ASC`, userID)
}

func (s *txStore) listMemberships(ctx context.Context, query string, arg string) ([]domain.Membership, error) {
	var rows []membershipRow
	if err := s.selectRows(ctx, &rows, query, arg); err != nil {
		return nil, err
	}
	out := make([]domain.Membership, 0, len(rows))
	for _, row := range rows {
		m, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateMembership creates membership.
func (s *txStore) CreateMembership(ctx context.Context, m domain.Membership) error {
	return s.namedExec(ctx, `
		INSERT INTO memberships(project_id, user_id, role, created_at, updated_at)
		VALUES (:project_id, :user_id, :role, :created_at, :updated_at)
	`, membershipRowFrom(m))
}

// UpdateMembership updates a member role.
func (s *txStore) UpdateMembership(ctx context.Context, m domain.Membership) error {
	row := membershipRowFrom(m)
	return s.execOne(ctx, `UPDATE memberships SET role = ?, updated_at = ? WHERE project_id = ? AND user_id = ?`, row.Role, row.UpdatedAt, row.ProjectID, row.UserID)
}

// DeleteMembership deletes membership.
func (s *txStore) DeleteMembership(ctx context.Context, projectID, userID string) error {
	return s.execOne(ctx, `DELETE FROM memberships WHERE project_id = ? AND user_id = ?`, projectID, userID)
}

const taskColumns = `id, project_id, parent_id, status_id, title, description, created_at, updated_at`

// GetTask returns task.
func (s *txStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var row taskRow
	if err := s.get(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id); err != nil {
		return domain.Task{}, err
	}
	return row.toDomain(), nil
}

// ListTasks lists the tasks of one project.
func (s *txStore) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.selectRows(ctx, &rows, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CreateTask creates task.
func (s *txStore) CreateTask(ctx context.Context, t domain.Task) error {
	return s.namedExec(ctx, `
		INSERT INTO tasks(`+taskColumns+`)
		VALUES (:id, :project_id, :parent_id, :status_id, :title, :description, :created_at, :updated_at)
	`, taskRowFrom(t))
}

// UpdateTask updates the mutable task columns. project_id never changes.
func (s *txStore) UpdateTask(ctx context.Context, t domain.Task) error {
	row := taskRowFrom(t)
	return s.execOne(ctx, `
		UPDATE tasks SET parent_id = ?, status_id = ?, title = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, row.ParentID, row.StatusID, row.Title, row.Description, row.UpdatedAt, row.ID)
}

// DeleteTask deletes one task row and its comments.
func (s *txStore) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM comments WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete comments of task %q: %w", id, err)
	}
	return s.execOne(ctx, `DELETE FROM tasks WHERE id = ?`, id)
}

const statusColumns = `id, project_id, label, color, sort_order, show_strike_through, hidden, requires_comment, allows_comment, created_at, updated_at`

// GetStatus returns one status.
func (s *txStore) GetStatus(ctx context.Context, id string) (domain.TaskStatus, error) {
	var row statusRow
	if err := s.get(ctx, &row, `SELECT `+statusColumns+` FROM task_statuses WHERE id = ?`, id); err != nil {
		return domain.TaskStatus{}, err
	}
	return row.toDomain(), nil
}

// ListStatuses lists a project workflow in order.
func (s *txStore) ListStatuses(ctx context.Context, projectID string) ([]domain.TaskStatus, error) {
	var rows []statusRow
	if err := s.selectRows(ctx, &rows, `SELECT `+statusColumns+` FROM task_statuses WHERE project_id = ? ORDER BY sort_order ASC, created_at ASC, id ASC`, projectID); err != nil {
		return nil, err
	}
	out := make([]domain.TaskStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CreateStatus creates status.
func (s *txStore) CreateStatus(ctx context.Context, st domain.TaskStatus) error {
	return s.namedExec(ctx, `
		INSERT INTO task_statuses(`+statusColumns+`)
		VALUES (:id, :project_id, :label, :color, :sort_order, :show_strike_through, :hidden, :requires_comment, :allows_comment, :created_at, :updated_at)
	`, statusRowFrom(st))
}

// UpdateStatus updates every mutable status column. The id is never rewritten.
func (s *txStore) UpdateStatus(ctx context.Context, st domain.TaskStatus) error {
	res, err := s.tx.NamedExecContext(ctx, `
		UPDATE task_statuses SET
			label = :label,
			color = :color,
			sort_order = :sort_order,
			show_strike_through = :show_strike_through,
			hidden = :hidden,
			requires_comment = :requires_comment,
			allows_comment = :allows_comment,
			updated_at = :updated_at
		WHERE id = :id
	`, statusRowFrom(st))
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// DeleteStatus deletes status.
func (s *txStore) DeleteStatus(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM task_statuses WHERE id = ?`, id)
}

// ReassignStatus repoints tasks and comments from one status to another.
func (s *txStore) ReassignStatus(ctx context.Context, fromID, toID string) (int, error) {
	res, err := s.exec(ctx, `UPDATE tasks SET status_id = ? WHERE status_id = ?`, toID, fromID)
	if err != nil {
		return 0, fmt.Errorf("reassign task statuses: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.exec(ctx, `UPDATE comments SET status_id = ? WHERE status_id = ?`, toID, fromID); err != nil {
		return 0, fmt.Errorf("reassign comment statuses: %w", err)
	}
	return int(moved), nil
}

// CreateComment creates comment.
func (s *txStore) CreateComment(ctx context.Context, c domain.Comment) error {
	return s.namedExec(ctx, `
		INSERT INTO comments(id, project_id, task_id, author_id, body, status_id, created_at)
		VALUES (:id, :project_id, :task_id, :author_id, :body, :status_id, :created_at)
	`, commentRowFrom(c))
}

// ListComments lists task comments oldest first.
func (s *txStore) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	var rows []commentRow
	if err := s.selectRows(ctx, &rows, `
		SELECT id, project_id, task_id, author_id, body, status_id, created_at
		FROM comments WHERE task_id = ? ORDER BY created_at ASC, id ASC
	`, taskID); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AppendChangeEvent inserts a change-event ledger record.
func (s *txStore) AppendChangeEvent(ctx context.Context, event domain.ChangeEvent) error {
	row, err := changeEventRowFrom(event)
	if err != nil {
		return err
	}
	if err := s.namedExec(ctx, `
		INSERT INTO change_events(project_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at)
		VALUES (:project_id, :entity_type, :entity_id, :operation, :actor_id, :metadata_json, :created_at)
	`, row); err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// ListChangeEvents lists recent project events, newest first.
func (s *txStore) ListChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []changeEventRow
	if err := s.selectRows(ctx, &rows, `
		SELECT id, project_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at
		FROM change_events WHERE project_id = ? ORDER BY id DESC LIMIT ?
	`, projectID, limit); err != nil {
		return nil, err
	}
	out := make([]domain.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

// ChangeMark returns the newest event id and the event count of a project.
func (s *txStore) ChangeMark(ctx context.Context, projectID string) (app.ChangeMark, error) {
	var row struct {
		LastID int64 `db:"last_id"`
		Count  int64 `db:"event_count"`
	}
	if err := s.get(ctx, &row, `
		SELECT COALESCE(MAX(id), 0) AS last_id, COUNT(*) AS event_count
		FROM change_events WHERE project_id = ?
	`, projectID); err != nil {
		return app.ChangeMark{}, err
	}
	return app.ChangeMark{LastID: row.LastID, Count: row.Count}, nil
}

// translateNoRows maps a zero-row write to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}
