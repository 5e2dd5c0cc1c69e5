package fixture

import (
	"context"
	"fmt"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// Source is the read side of the application service used by Export.
type Source interface {
	ListVisibleProjects(ctx context.Context) ([]app.VisibleProject, error)
	ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error)
	ListStatuses(ctx context.Context, projectID string) ([]domain.TaskStatus, error)
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
}

// Export writes every project the caller can view into a document. Projects
// that are visible only as ancestors are skipped, and a parent outside the
// export is dropped from the child.
func Export(ctx context.Context, src Source) (Document, error) {
	visible, err := src.ListVisibleProjects(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("list visible projects: %w", err)
	}
	included := map[string]domain.Project{}
	for _, vp := range visible {
		if vp.Role.AtLeast(domain.RoleViewer) {
			included[vp.Project.ID] = vp.Project
		}
	}

	doc := Document{Version: Version}
	for _, project := range parentsFirst(visible, included) {
		out := Project{Key: project.ID, Name: project.Name, Owner: project.OwnerID}
		if _, ok := included[project.ParentID]; ok {
			out.Parent = project.ParentID
		}

		members, err := src.ListMembers(ctx, project.ID)
		if err != nil {
			return Document{}, fmt.Errorf("list members of %q: %w", project.ID, err)
		}
		for _, m := range members {
			out.Members = append(out.Members, Member{User: m.UserID, Role: m.Role})
		}

		statuses, err := src.ListStatuses(ctx, project.ID)
		if err != nil {
			return Document{}, fmt.Errorf("list statuses of %q: %w", project.ID, err)
		}
		labels := make(map[string]string, len(statuses))
		for _, st := range statuses {
			order := st.Order
			labels[st.ID] = st.Label
			out.Statuses = append(out.Statuses, Status{
				Label:             st.Label,
				Color:             st.Color,
				Order:             &order,
				ShowStrikeThrough: st.Flags.ShowStrikeThrough,
				Hidden:            st.Flags.Hidden,
				RequiresComment:   st.Flags.RequiresComment,
				AllowsComment:     st.Flags.AllowsComment,
			})
		}

		tasks, err := src.ListTasks(ctx, project.ID)
		if err != nil {
			return Document{}, fmt.Errorf("list tasks of %q: %w", project.ID, err)
		}
		out.Tasks, err = exportTasks(ctx, src, tasks, labels)
		if err != nil {
			return Document{}, err
		}
		doc.Projects = append(doc.Projects, out)
	}
	return doc, nil
}

// parentsFirst orders included projects so every parent precedes its children,
// keeping the listing order otherwise.
func parentsFirst(visible []app.VisibleProject, included map[string]domain.Project) []domain.Project {
	out := make([]domain.Project, 0, len(included))
	emitted := make(map[string]struct{}, len(included))
	for len(out) < len(included) {
		progressed := false
		for _, vp := range visible {
			p, ok := included[vp.Project.ID]
			if !ok {
				continue
			}
			if _, done := emitted[p.ID]; done {
				continue
			}
			if _, parentIncluded := included[p.ParentID]; parentIncluded {
				if _, parentDone := emitted[p.ParentID]; !parentDone {
					continue
				}
			}
			out = append(out, p)
			emitted[p.ID] = struct{}{}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

func exportTasks(ctx context.Context, src Source, tasks []domain.Task, statusLabels map[string]string) ([]Task, error) {
	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.ID] = struct{}{}
	}
	children := map[string][]domain.Task{}
	var roots []domain.Task
	for _, t := range tasks {
		if _, ok := known[t.ParentID]; t.ParentID == "" || !ok {
			roots = append(roots, t)
			continue
		}
		children[t.ParentID] = append(children[t.ParentID], t)
	}

	var build func(domain.Task) (Task, error)
	build = func(t domain.Task) (Task, error) {
		out := Task{Title: t.Title, Description: t.Description, Status: statusLabels[t.StatusID]}
		comments, err := src.ListComments(ctx, t.ID)
		if err != nil {
			return Task{}, fmt.Errorf("list comments of %q: %w", t.ID, err)
		}
		for _, c := range comments {
			out.Comments = append(out.Comments, Comment{Author: c.AuthorID, Body: c.Body})
		}
		for _, child := range children[t.ID] {
			built, err := build(child)
			if err != nil {
				return Task{}, err
			}
			out.Children = append(out.Children, built)
		}
		return out, nil
	}

	out := make([]Task, 0, len(roots))
	for _, root := range roots {
		built, err := build(root)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}
