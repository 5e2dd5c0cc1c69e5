package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hylla/warden/internal/adapters/storage/sqlstore"
	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

const sampleFixture = `
version: warden.fixture.v1
projects:
  - key: platform
    name: Platform
    owner: olga
    members:
      - user: ana
        role: editor
      - user: vic
        role: viewer
    statuses:
      - label: Review
        color: "#a855f7"
        requires_comment: true
    tasks:
      - title: Ship auth
        status: In Progress
        comments:
          - body: kickoff
          - author: ana
            body: on it
        children:
          - title: Token verifier
          - title: Bearer parsing
            status: review
  - key: infra
    name: Infra
    owner: ana
    parent: platform
    tasks:
      - title: Provision db
`

func newTestService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	next := 0
	return app.NewService(repo, func() string {
		next++
		return fmt.Sprintf("id-%03d", next)
	}, nil, app.ServiceConfig{AutoCreateStatuses: true})
}

func TestDecodeApplyAndExport(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleFixture))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	svc := newTestService(t)
	res, err := Apply(context.Background(), svc, doc)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(res.ProjectIDs) != 2 || res.Tasks != 4 || res.Comments != 2 {
		t.Fatalf("unexpected result %#v", res)
	}

	olga := app.WithActor(context.Background(), "olga")
	infra, err := svc.GetProject(app.WithActor(context.Background(), "ana"), res.ProjectIDs["infra"])
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if infra.ParentID != res.ProjectIDs["platform"] || infra.OwnerID != "ana" {
		t.Fatalf("unexpected infra project %#v", infra)
	}

	tree, err := svc.TaskTree(olga, res.ProjectIDs["platform"])
	if err != nil {
		t.Fatalf("TaskTree() error = %v", err)
	}
	if len(tree) != 3 || tree[0].Depth != 0 || tree[1].Depth != 1 {
		t.Fatalf("unexpected tree %#v", tree)
	}
	comments, err := svc.ListComments(olga, tree[0].Task.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 || comments[0].AuthorID != "olga" || comments[1].AuthorID != "ana" {
		t.Fatalf("unexpected comments %#v", comments)
	}

	exported, err := Export(olga, svc)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(exported.Projects) != 1 {
		t.Fatalf("expected only olga's project, got %#v", exported.Projects)
	}
	platform := exported.Projects[0]
	if len(platform.Statuses) != 4 || platform.Statuses[3].Label != "Review" || !platform.Statuses[3].RequiresComment {
		t.Fatalf("unexpected exported statuses %#v", platform.Statuses)
	}
	if len(platform.Tasks) != 1 || len(platform.Tasks[0].Children) != 2 {
		t.Fatalf("unexpected exported tasks %#v", platform.Tasks)
	}
	if platform.Tasks[0].Status != "In Progress" || platform.Tasks[0].Children[1].Status != "Review" {
		t.Fatalf("unexpected exported task statuses %#v", platform.Tasks[0])
	}

	var buf bytes.Buffer
	if err := Encode(&buf, exported); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	again, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode(exported) error = %v", err)
	}
	if _, err := Apply(context.Background(), newTestService(t), again); err != nil {
		t.Fatalf("Apply(exported) error = %v", err)
	}
}

func TestExportIncludesChildProjectsAfterParents(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleFixture))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	svc := newTestService(t)
	res, err := Apply(context.Background(), svc, doc)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	exported, err := Export(app.WithActor(context.Background(), "ana"), svc)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(exported.Projects) != 2 {
		t.Fatalf("expected both projects for ana, got %d", len(exported.Projects))
	}
	if exported.Projects[0].Key != res.ProjectIDs["platform"] || exported.Projects[1].Parent != res.ProjectIDs["platform"] {
		t.Fatalf("expected parent before child, got %#v", exported.Projects)
	}
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field": `
projects:
  - key: a
    name: A
    owner: o
    colour: red
`,
		"missing owner": `
projects:
  - key: a
    name: A
`,
		"duplicate key": `
projects:
  - {key: a, name: A, owner: o}
  - {key: a, name: B, owner: o}
`,
		"forward parent": `
projects:
  - {key: b, name: B, owner: o, parent: a}
  - {key: a, name: A, owner: o}
`,
		"owner membership": `
projects:
  - key: a
    name: A
    owner: o
    members:
      - {user: u, role: owner}
`,
		"bad role": `
projects:
  - key: a
    name: A
    owner: o
    members:
      - {user: u, role: admin}
`,
		"untitled task": `
projects:
  - key: a
    name: A
    owner: o
    tasks:
      - children:
          - title: orphan
`,
		"version": `
version: other.v9
projects: []
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(content)); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestApplyUnknownStatusLabel(t *testing.T) {
	doc := Document{Projects: []Project{{
		Key:   "a",
		Name:  "A",
		Owner: "o",
		Tasks: []Task{{Title: "x", Status: "Nope"}},
	}}}
	_, err := Apply(context.Background(), newTestService(t), doc)
	if !errors.Is(err, ErrInvalidFixture) {
		t.Fatalf("expected ErrInvalidFixture, got %v", err)
	}
}

func TestApplySurfacesServiceDenials(t *testing.T) {
	doc := Document{Projects: []Project{
		{Key: "root", Name: "Root", Owner: "o"},
		{Key: "child", Name: "Child", Owner: "stranger", Parent: "root"},
	}}
	_, err := Apply(context.Background(), newTestService(t), doc)
	if !errors.Is(err, app.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var denial *app.DenialError
	if !errors.As(err, &denial) || denial.Required != domain.RoleEditor {
		t.Fatalf("expected editor denial, got %#v", err)
	}
}
