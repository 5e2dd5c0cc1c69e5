// Package fixture loads and writes YAML workspace documents. A document seeds
// projects, memberships, workflow statuses, task trees and comments through the
// application service, so every seeded row passes the same authorization and
// graph checks as live traffic.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// Version tags the document layout.
const Version = "warden.fixture.v1"

// ErrInvalidFixture reports a document that cannot be applied.
var ErrInvalidFixture = errors.New("invalid fixture")

// Document is the root of a fixture file.
type Document struct {
	Version  string    `yaml:"version"`
	Projects []Project `yaml:"projects"`
}

// Project seeds one project. Key is local to the document; Parent names the key
// of an earlier project.
type Project struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Owner    string   `yaml:"owner"`
	Parent   string   `yaml:"parent,omitempty"`
	Members  []Member `yaml:"members,omitempty"`
	Statuses []Status `yaml:"statuses,omitempty"`
	Tasks    []Task   `yaml:"tasks,omitempty"`
}

type Member struct {
	User string      `yaml:"user"`
	Role domain.Role `yaml:"role"`
}

type Status struct {
	Label             string `yaml:"label"`
	Color             string `yaml:"color,omitempty"`
	Order             *int   `yaml:"order,omitempty"`
	ShowStrikeThrough bool   `yaml:"show_strike_through,omitempty"`
	Hidden            bool   `yaml:"hidden,omitempty"`
	RequiresComment   bool   `yaml:"requires_comment,omitempty"`
	AllowsComment     bool   `yaml:"allows_comment,omitempty"`
}

// Task seeds one task and its sub-tasks. Status matches a status label of the
// same project, case-insensitively.
type Task struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description,omitempty"`
	Status      string    `yaml:"status,omitempty"`
	Comments    []Comment `yaml:"comments,omitempty"`
	Children    []Task    `yaml:"children,omitempty"`
}

// Comment is attributed to Author, or to the project owner when blank.
type Comment struct {
	Author string `yaml:"author,omitempty"`
	Body   string `yaml:"body"`
}

// Decode reads and validates one document.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode fixture yaml: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc Document) error {
	if strings.TrimSpace(doc.Version) == "" {
		doc.Version = Version
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode fixture yaml: %w", err)
	}
	return enc.Close()
}

// Validate checks document-local references before anything is written.
func (d Document) Validate() error {
	if v := strings.TrimSpace(d.Version); v != "" && v != Version {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidFixture, d.Version)
	}
	seen := map[string]struct{}{}
	for i, p := range d.Projects {
		key := strings.TrimSpace(p.Key)
		switch {
		case key == "":
			return fmt.Errorf("%w: projects[%d].key is required", ErrInvalidFixture, i)
		case strings.TrimSpace(p.Name) == "":
			return fmt.Errorf("%w: project %q name is required", ErrInvalidFixture, key)
		case strings.TrimSpace(p.Owner) == "":
			return fmt.Errorf("%w: project %q owner is required", ErrInvalidFixture, key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate project key %q", ErrInvalidFixture, key)
		}
		if parent := strings.TrimSpace(p.Parent); parent != "" {
			if _, ok := seen[parent]; !ok {
				return fmt.Errorf("%w: project %q parent %q must be declared earlier", ErrInvalidFixture, key, parent)
			}
		}
		seen[key] = struct{}{}

		for _, m := range p.Members {
			if strings.TrimSpace(m.User) == "" {
				return fmt.Errorf("%w: project %q has a member without user", ErrInvalidFixture, key)
			}
			if !m.Role.IsMemberRole() {
				return fmt.Errorf("%w: project %q member %q role must be viewer or editor", ErrInvalidFixture, key, m.User)
			}
		}
		if err := validateTasks(key, p.Tasks); err != nil {
			return err
		}
	}
	return nil
}

func validateTasks(projectKey string, tasks []Task) error {
	for _, t := range tasks {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("%w: project %q has a task without title", ErrInvalidFixture, projectKey)
		}
		if err := validateTasks(projectKey, t.Children); err != nil {
			return err
		}
	}
	return nil
}

// Service is the subset of the application service a fixture writes through.
type Service interface {
	CreateProject(ctx context.Context, in app.CreateProjectInput) (domain.Project, error)
	AddMember(ctx context.Context, projectID, userID string, role domain.Role) (domain.Membership, error)
	CreateStatus(ctx context.Context, in app.CreateStatusInput) (domain.TaskStatus, error)
	ListStatuses(ctx context.Context, projectID string) ([]domain.TaskStatus, error)
	CreateTask(ctx context.Context, in app.CreateTaskInput) (domain.Task, error)
	AddComment(ctx context.Context, taskID, body string) (domain.Comment, error)
}

// Result maps document keys to created project ids.
type Result struct {
	ProjectIDs map[string]string
	Tasks      int
	Comments   int
}

// Apply creates every project of doc in order, acting as each project's owner.
func Apply(ctx context.Context, svc Service, doc Document) (Result, error) {
	if err := doc.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{ProjectIDs: make(map[string]string, len(doc.Projects))}
	for _, p := range doc.Projects {
		key := strings.TrimSpace(p.Key)
		ownerCtx := app.WithActor(ctx, p.Owner)
		project, err := svc.CreateProject(ownerCtx, app.CreateProjectInput{
			Name:     p.Name,
			ParentID: res.ProjectIDs[strings.TrimSpace(p.Parent)],
		})
		if err != nil {
			return res, fmt.Errorf("create project %q: %w", key, err)
		}
		res.ProjectIDs[key] = project.ID

		for _, m := range p.Members {
			if _, err := svc.AddMember(ownerCtx, project.ID, m.User, m.Role); err != nil {
				return res, fmt.Errorf("add member %q to %q: %w", m.User, key, err)
			}
		}
		statuses, err := svc.ListStatuses(ownerCtx, project.ID)
		if err != nil {
			return res, fmt.Errorf("list statuses of %q: %w", key, err)
		}
		byLabel := make(map[string]string, len(statuses)+len(p.Statuses))
		for _, st := range statuses {
			byLabel[strings.ToLower(st.Label)] = st.ID
		}
		for _, st := range p.Statuses {
			// Statuses already seeded by the workflow defaults are kept as they are.
			if _, ok := byLabel[strings.ToLower(strings.TrimSpace(st.Label))]; ok {
				continue
			}
			created, err := svc.CreateStatus(ownerCtx, app.CreateStatusInput{
				ProjectID: project.ID,
				Label:     st.Label,
				Order:     st.Order,
				Color:     st.Color,
				Flags: domain.StatusFlags{
					ShowStrikeThrough: st.ShowStrikeThrough,
					Hidden:            st.Hidden,
					RequiresComment:   st.RequiresComment,
					AllowsComment:     st.AllowsComment,
				},
			})
			if err != nil {
				return res, fmt.Errorf("create status %q in %q: %w", st.Label, key, err)
			}
			byLabel[strings.ToLower(created.Label)] = created.ID
		}

		seeder := taskSeeder{svc: svc, ctx: ownerCtx, projectID: project.ID, statuses: byLabel, res: &res}
		if err := seeder.seed("", p.Tasks); err != nil {
			return res, fmt.Errorf("seed tasks of %q: %w", key, err)
		}
		log.Debug("fixture project applied", "key", key, "project_id", project.ID)
	}
	return res, nil
}

type taskSeeder struct {
	svc       Service
	ctx       context.Context
	projectID string
	statuses  map[string]string
	res       *Result
}

func (s taskSeeder) seed(parentID string, tasks []Task) error {
	for _, t := range tasks {
		statusID := ""
		if label := strings.TrimSpace(t.Status); label != "" {
			id, ok := s.statuses[strings.ToLower(label)]
			if !ok {
				return fmt.Errorf("%w: unknown status %q for task %q", ErrInvalidFixture, label, t.Title)
			}
			statusID = id
		}
		created, err := s.svc.CreateTask(s.ctx, app.CreateTaskInput{
			ProjectID:   s.projectID,
			ParentID:    parentID,
			StatusID:    statusID,
			Title:       t.Title,
			Description: t.Description,
		})
		if err != nil {
			return fmt.Errorf("create task %q: %w", t.Title, err)
		}
		s.res.Tasks++
		for _, c := range t.Comments {
			authorCtx := s.ctx
			if author := strings.TrimSpace(c.Author); author != "" {
				authorCtx = app.WithActor(s.ctx, author)
			}
			if _, err := s.svc.AddComment(authorCtx, created.ID, c.Body); err != nil {
				return fmt.Errorf("comment on task %q: %w", t.Title, err)
			}
			s.res.Comments++
		}
		if err := s.seed(created.ID, t.Children); err != nil {
			return err
		}
	}
	return nil
}
