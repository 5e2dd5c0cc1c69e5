package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

var _ Workspace = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// Authorize checks the calling user against one operation or role.
func (a *AppServiceAdapter) Authorize(ctx context.Context, in AuthorizeRequest) (DecisionView, error) {
	actorID, ok := app.ActorFromContext(ctx)
	if !ok {
		return DecisionView{}, app.ErrUnauthenticated
	}
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return DecisionView{}, fmt.Errorf("%w: project_id is required", ErrInvalidRequest)
	}
	required, err := requiredRoleFor(in)
	if err != nil {
		return DecisionView{}, err
	}
	decision, err := a.service.Authorize(ctx, actorID, projectID, required)
	if err != nil {
		return DecisionView{}, err
	}
	out := DecisionView{
		ProjectID: projectID,
		Required:  required.String(),
		Granted:   decision.Granted,
		Role:      decision.Role.String(),
	}
	if !decision.Granted {
		// A missing project reads the same as one the caller is not in.
		out.Reason = string(decision.Reason)
		if decision.Reason == app.DenyNotFound {
			out.Reason = string(app.DenyNotAMember)
		}
	}
	return out, nil
}

func requiredRoleFor(in AuthorizeRequest) (domain.Role, error) {
	op := strings.TrimSpace(in.Operation)
	roleName := strings.TrimSpace(in.RequiredRole)
	switch {
	case op != "" && roleName != "":
		return domain.RoleNone, fmt.Errorf("%w: set operation or required_role, not both", ErrInvalidRequest)
	case op != "":
		role, ok := app.RequiredRole(app.Operation(op))
		if !ok {
			return domain.RoleNone, fmt.Errorf("%w: unknown operation %q, want one of %s", ErrInvalidRequest, op, knownOperations())
		}
		return role, nil
	case roleName != "":
		role, err := domain.ParseRole(roleName)
		if err != nil || role == domain.RoleNone {
			return domain.RoleNone, fmt.Errorf("%w: required_role %q", ErrInvalidRequest, roleName)
		}
		return role, nil
	default:
		return domain.RoleNone, fmt.Errorf("%w: operation or required_role is required", ErrInvalidRequest)
	}
}

func knownOperations() string {
	ops := app.Operations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}
	return strings.Join(names, ", ")
}

// ListProjects lists the projects visible to the caller.
func (a *AppServiceAdapter) ListProjects(ctx context.Context) ([]ProjectView, error) {
	rows, err := a.service.ListVisibleProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectView, 0, len(rows))
	for _, row := range rows {
		view := projectView(row.Project)
		view.Role = row.Role.String()
		view.Visibility = string(row.Visibility)
		out = append(out, view)
	}
	return out, nil
}

// GetProject loads one project.
func (a *AppServiceAdapter) GetProject(ctx context.Context, projectID string) (ProjectView, error) {
	p, err := a.service.GetProject(ctx, projectID)
	if err != nil {
		return ProjectView{}, err
	}
	return projectView(p), nil
}

// CreateProject creates a project owned by the caller.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest) (ProjectView, error) {
	p, err := a.service.CreateProject(ctx, app.CreateProjectInput{Name: in.Name, ParentID: in.ParentID})
	if err != nil {
		return ProjectView{}, err
	}
	return projectView(p), nil
}

// UpdateProject renames a project.
func (a *AppServiceAdapter) UpdateProject(ctx context.Context, in UpdateProjectRequest) (ProjectView, error) {
	p, err := a.service.UpdateProject(ctx, in.ProjectID, in.Name)
	if err != nil {
		return ProjectView{}, err
	}
	return projectView(p), nil
}

// MoveProject re-parents a project.
func (a *AppServiceAdapter) MoveProject(ctx context.Context, in MoveProjectRequest) (ProjectView, error) {
	p, err := a.service.MoveProject(ctx, in.ProjectID, in.ParentID)
	if err != nil {
		return ProjectView{}, err
	}
	return projectView(p), nil
}

// DeleteProject deletes a project subtree.
func (a *AppServiceAdapter) DeleteProject(ctx context.Context, projectID string) ([]string, error) {
	return a.service.DeleteProject(ctx, projectID)
}

// ListMembers lists project members.
func (a *AppServiceAdapter) ListMembers(ctx context.Context, projectID string) ([]MemberView, error) {
	rows, err := a.service.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberView, 0, len(rows))
	for _, m := range rows {
		out = append(out, memberView(m))
	}
	return out, nil
}

// AddMember grants a role.
func (a *AppServiceAdapter) AddMember(ctx context.Context, in MemberRequest) (MemberView, error) {
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return MemberView{}, err
	}
	m, err := a.service.AddMember(ctx, in.ProjectID, in.UserID, role)
	if err != nil {
		return MemberView{}, err
	}
	return memberView(m), nil
}

// UpdateMember changes a member's role.
func (a *AppServiceAdapter) UpdateMember(ctx context.Context, in MemberRequest) (MemberView, error) {
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return MemberView{}, err
	}
	m, err := a.service.UpdateMember(ctx, in.ProjectID, in.UserID, role)
	if err != nil {
		return MemberView{}, err
	}
	return memberView(m), nil
}

// RemoveMember revokes a membership.
func (a *AppServiceAdapter) RemoveMember(ctx context.Context, projectID, userID string) error {
	return a.service.RemoveMember(ctx, projectID, userID)
}

// ListTasks lists project tasks.
func (a *AppServiceAdapter) ListTasks(ctx context.Context, projectID string) ([]TaskView, error) {
	rows, err := a.service.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(rows))
	for _, t := range rows {
		out = append(out, taskView(t))
	}
	return out, nil
}

// TaskTree returns the flattened task tree.
func (a *AppServiceAdapter) TaskTree(ctx context.Context, projectID string) ([]TreeNodeView, error) {
	rows, err := a.service.TaskTree(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]TreeNodeView, 0, len(rows))
	for _, n := range rows {
		out = append(out, TreeNodeView{Task: taskView(n.Task), Depth: n.Depth})
	}
	return out, nil
}

// CreateTask creates a task.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (TaskView, error) {
	t, err := a.service.CreateTask(ctx, app.CreateTaskInput{
		ProjectID:   in.ProjectID,
		ParentID:    in.ParentID,
		StatusID:    in.StatusID,
		Title:       in.Title,
		Description: in.Description,
	})
	if err != nil {
		return TaskView{}, err
	}
	return taskView(t), nil
}

// UpdateTask edits a task.
func (a *AppServiceAdapter) UpdateTask(ctx context.Context, in UpdateTaskRequest) (TaskView, error) {
	t, err := a.service.UpdateTask(ctx, app.UpdateTaskInput{
		TaskID:      in.TaskID,
		Title:       in.Title,
		Description: in.Description,
		StatusID:    in.StatusID,
		Comment:     in.Comment,
	})
	if err != nil {
		return TaskView{}, err
	}
	return taskView(t), nil
}

// ReparentTask moves a task.
func (a *AppServiceAdapter) ReparentTask(ctx context.Context, in ReparentTaskRequest) (TaskView, error) {
	t, err := a.service.ReparentTask(ctx, in.TaskID, in.ParentID)
	if err != nil {
		return TaskView{}, err
	}
	return taskView(t), nil
}

// DeleteTask deletes a task.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, in DeleteTaskRequest) ([]string, error) {
	return a.service.DeleteTask(ctx, in.TaskID, app.CascadePolicy(in.Policy))
}

// ListStatuses lists a project workflow.
func (a *AppServiceAdapter) ListStatuses(ctx context.Context, projectID string) ([]StatusView, error) {
	rows, err := a.service.ListStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]StatusView, 0, len(rows))
	for _, st := range rows {
		out = append(out, statusView(st))
	}
	return out, nil
}

// CreateStatus adds a status.
func (a *AppServiceAdapter) CreateStatus(ctx context.Context, in CreateStatusRequest) (StatusView, error) {
	st, err := a.service.CreateStatus(ctx, app.CreateStatusInput{
		ProjectID: in.ProjectID,
		Label:     in.Label,
		Order:     in.Order,
		Color:     in.Color,
		Flags:     domainFlags(in.Flags),
	})
	if err != nil {
		return StatusView{}, err
	}
	return statusView(st), nil
}

// UpdateStatus patches a status.
func (a *AppServiceAdapter) UpdateStatus(ctx context.Context, in UpdateStatusRequest) (StatusView, error) {
	patch := domain.StatusPatch{Label: in.Label, Color: in.Color, Order: in.Order}
	if in.Flags != nil {
		flags := domainFlags(*in.Flags)
		patch.Flags = &flags
	}
	st, err := a.service.UpdateStatus(ctx, in.StatusID, patch)
	if err != nil {
		return StatusView{}, err
	}
	return statusView(st), nil
}

// DeleteStatus removes a status. An empty on_in_use rejects.
func (a *AppServiceAdapter) DeleteStatus(ctx context.Context, in DeleteStatusRequest) (int, error) {
	onInUse := app.OnInUse{
		Mode:             app.OnInUseMode(strings.ToLower(strings.TrimSpace(in.OnInUse))),
		FallbackStatusID: in.FallbackStatusID,
	}
	if onInUse.Mode == "" {
		onInUse.Mode = app.OnInUseModeReject
	}
	return a.service.DeleteStatus(ctx, in.StatusID, onInUse)
}

// ListComments lists task comments.
func (a *AppServiceAdapter) ListComments(ctx context.Context, taskID string) ([]CommentView, error) {
	rows, err := a.service.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]CommentView, 0, len(rows))
	for _, c := range rows {
		out = append(out, commentView(c))
	}
	return out, nil
}

// AddComment attaches a comment.
func (a *AppServiceAdapter) AddComment(ctx context.Context, in AddCommentRequest) (CommentView, error) {
	c, err := a.service.AddComment(ctx, in.TaskID, in.Body)
	if err != nil {
		return CommentView{}, err
	}
	return commentView(c), nil
}

// ListChangeEvents lists recent project events.
func (a *AppServiceAdapter) ListChangeEvents(ctx context.Context, projectID string, limit int) ([]ChangeEventView, error) {
	rows, err := a.service.ListProjectChangeEvents(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ChangeEventView, 0, len(rows))
	for _, e := range rows {
		out = append(out, ChangeEventView{
			ID:         e.ID,
			ProjectID:  e.ProjectID,
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			Operation:  string(e.Operation),
			ActorID:    e.ActorID,
			Metadata:   e.Metadata,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}

func projectView(p domain.Project) ProjectView {
	return ProjectView{
		ID:        p.ID,
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		ParentID:  p.ParentID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func memberView(m domain.Membership) MemberView {
	return MemberView{
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      m.Role.String(),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func taskView(t domain.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		ParentID:    t.ParentID,
		StatusID:    t.StatusID,
		Title:       t.Title,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func statusView(st domain.TaskStatus) StatusView {
	return StatusView{
		ID:        st.ID,
		ProjectID: st.ProjectID,
		Label:     st.Label,
		Color:     st.Color,
		Order:     st.Order,
		Flags: StatusFlagsView{
			ShowStrikeThrough: st.Flags.ShowStrikeThrough,
			Hidden:            st.Flags.Hidden,
			RequiresComment:   st.Flags.RequiresComment,
			AllowsComment:     st.Flags.AllowsComment,
		},
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

func commentView(c domain.Comment) CommentView {
	return CommentView{
		ID:        c.ID,
		TaskID:    c.TaskID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		StatusID:  c.StatusID,
		CreatedAt: c.CreatedAt,
	}
}

func domainFlags(in StatusFlagsView) domain.StatusFlags {
	return domain.StatusFlags{
		ShowStrikeThrough: in.ShowStrikeThrough,
		Hidden:            in.Hidden,
		RequiresComment:   in.RequiresComment,
		AllowsComment:     in.AllowsComment,
	}
}
