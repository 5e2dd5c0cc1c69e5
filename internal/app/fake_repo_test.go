package app

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hylla/warden/internal/domain"
)

// fakeState is one snapshot of the in-memory store.
type fakeState struct {
	projects map[string]domain.Project
	members  map[string]domain.Membership
	tasks    map[string]domain.Task
	statuses map[string]domain.TaskStatus
	comments map[string]domain.Comment
	events   []domain.ChangeEvent
}

func (s fakeState) clone() fakeState {
	return fakeState{
		projects: maps.Clone(s.projects),
		members:  maps.Clone(s.members),
		tasks:    maps.Clone(s.tasks),
		statuses: maps.Clone(s.statuses),
		comments: maps.Clone(s.comments),
		events:   slices.Clone(s.events),
	}
}

// fakeRepo serializes transactions and commits by swapping the snapshot.
type fakeRepo struct {
	mu    sync.Mutex
	state fakeState
	txs   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{state: fakeState{
		projects: map[string]domain.Project{},
		members:  map[string]domain.Membership{},
		tasks:    map[string]domain.Task{},
		statuses: map[string]domain.TaskStatus{},
		comments: map[string]domain.Comment{},
	}}
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.txs++
	tx := &fakeTx{state: f.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.state = tx.state
	return nil
}

// snapshot returns a copy of the committed state.
func (f *fakeRepo) snapshot() fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// mutate edits committed state directly, bypassing the service.
func (f *fakeRepo) mutate(fn func(*fakeState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.state)
}

type fakeTx struct {
	state fakeState
}

func memberKey(projectID, userID string) string {
	return projectID + "|" + userID
}

func (f *fakeTx) GetProject(_ context.Context, id string) (domain.Project, error) {
	p, ok := f.state.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeTx) ListProjects(context.Context) ([]domain.Project, error) {
	return slices.Collect(maps.Values(f.state.projects)), nil
}

func (f *fakeTx) CreateProject(_ context.Context, p domain.Project) error {
	f.state.projects[p.ID] = p
	return nil
}

func (f *fakeTx) UpdateProject(_ context.Context, p domain.Project) error {
	if _, ok := f.state.projects[p.ID]; !ok {
		return ErrNotFound
	}
	f.state.projects[p.ID] = p
	return nil
}

func (f *fakeTx) DeleteProject(_ context.Context, id string) error {
	if _, ok := f.state.projects[id]; !ok {
		return ErrNotFound
	}
	delete(f.state.projects, id)
	maps.DeleteFunc(f.state.members, func(_ string, m domain.Membership) bool { return m.ProjectID == id })
	maps.DeleteFunc(f.state.tasks, func(_ string, t domain.Task) bool { return t.ProjectID == id })
	maps.DeleteFunc(f.state.statuses, func(_ string, s domain.TaskStatus) bool { return s.ProjectID == id })
	maps.DeleteFunc(f.state.comments, func(_ string, c domain.Comment) bool { return c.ProjectID == id })
	return nil
}

func (f *fakeTx) GetMembership(_ context.Context, projectID, userID string) (domain.Membership, error) {
	m, ok := f.state.members[memberKey(projectID, userID)]
	if !ok {
		return domain.Membership{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeTx) ListMemberships(_ context.Context, projectID string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, m := range f.state.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTx) ListMembershipsByUser(_ context.Context, userID string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, m := range f.state.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTx) CreateMembership(_ context.Context, m domain.Membership) error {
	f.state.members[memberKey(m.ProjectID, m.UserID)] = m
	return nil
}

func (f *fakeTx) UpdateMembership(_ context.Context, m domain.Membership) error {
	key := memberKey(m.ProjectID, m.UserID)
	if _, ok := f.state.members[key]; !ok {
		return ErrNotFound
	}
	f.state.members[key] = m
	return nil
}

func (f *fakeTx) DeleteMembership(_ context.Context, projectID, userID string) error {
	key := memberKey(projectID, userID)
	if _, ok := f.state.members[key]; !ok {
		return ErrNotFound
	}
	delete(f.state.members, key)
	return nil
}

func (f *fakeTx) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := f.state.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeTx) ListTasks(_ context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range f.state.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTx) CreateTask(_ context.Context, t domain.Task) error {
	f.state.tasks[t.ID] = t
	return nil
}

func (f *fakeTx) UpdateTask(_ context.Context, t domain.Task) error {
	if _, ok := f.state.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	f.state.tasks[t.ID] = t
	return nil
}

func (f *fakeTx) DeleteTask(_ context.Context, id string) error {
	if _, ok := f.state.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(f.state.tasks, id)
	maps.DeleteFunc(f.state.comments, func(_ string, c domain.Comment) bool { return c.TaskID == id })
	return nil
}

func (f *fakeTx) GetStatus(_ context.Context, id string) (domain.TaskStatus, error) {
	s, ok := f.state.statuses[id]
	if !ok {
		return domain.TaskStatus{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeTx) ListStatuses(_ context.Context, projectID string) ([]domain.TaskStatus, error) {
	var out []domain.TaskStatus
	for _, s := range f.state.statuses {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeTx) CreateStatus(_ context.Context, s domain.TaskStatus) error {
	f.state.statuses[s.ID] = s
	return nil
}

func (f *fakeTx) UpdateStatus(_ context.Context, s domain.TaskStatus) error {
	if _, ok := f.state.statuses[s.ID]; !ok {
		return ErrNotFound
	}
	f.state.statuses[s.ID] = s
	return nil
}

func (f *fakeTx) DeleteStatus(_ context.Context, id string) error {
	if _, ok := f.state.statuses[id]; !ok {
		return ErrNotFound
	}
	delete(f.state.statuses, id)
	return nil
}

func (f *fakeTx) ReassignStatus(_ context.Context, fromID, toID string) (int, error) {
	moved := 0
	for id, t := range f.state.tasks {
		if t.StatusID == fromID {
			t.StatusID = toID
			f.state.tasks[id] = t
			moved++
		}
	}
	for id, c := range f.state.comments {
		if c.StatusID == fromID {
			c.StatusID = toID
			f.state.comments[id] = c
		}
	}
	return moved, nil
}

func (f *fakeTx) CreateComment(_ context.Context, c domain.Comment) error {
	f.state.comments[c.ID] = c
	return nil
}

func (f *fakeTx) ListComments(_ context.Context, taskID string) ([]domain.Comment, error) {
	var out []domain.Comment
	for _, c := range f.state.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeTx) AppendChangeEvent(_ context.Context, event domain.ChangeEvent) error {
	event.ID = int64(len(f.state.events) + 1)
	f.state.events = append(f.state.events, event)
	return nil
}

func (f *fakeTx) ListChangeEvents(_ context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	var out []domain.ChangeEvent
	for i := len(f.state.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.state.events[i].ProjectID == projectID {
			out = append(out, f.state.events[i])
		}
	}
	return out, nil
}

func (f *fakeTx) ChangeMark(_ context.Context, projectID string) (ChangeMark, error) {
	var mark ChangeMark
	for _, e := range f.state.events {
		if e.ProjectID == projectID {
			mark.LastID = e.ID
			mark.Count++
		}
	}
	return mark, nil
}

// newTestService wires a service to a fresh fakeRepo with sequential ids and
// a clock that advances one second per call.
func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	nextID := 0
	idGen := func() string {
		nextID++
		return fmt.Sprintf("id-%03d", nextID)
	}
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return NewService(repo, idGen, clock, cfg), repo
}

// as returns a context carrying userID as the actor.
func as(userID string) context.Context {
	return WithActor(context.Background(), userID)
}

// mustProject creates a project owned by ownerID or fails the test.
func mustProject(t *testing.T, svc *Service, ownerID, name, parentID string) domain.Project {
	t.Helper()
	p, err := svc.CreateProject(as(ownerID), CreateProjectInput{Name: name, ParentID: parentID})
	if err != nil {
		t.Fatalf("CreateProject(%q) error = %v", name, err)
	}
	return p
}

// mustTask creates a task as actorID or fails the test.
func mustTask(t *testing.T, svc *Service, actorID, projectID, parentID, title string) domain.Task {
	t.Helper()
	task, err := svc.CreateTask(as(actorID), CreateTaskInput{ProjectID: projectID, ParentID: parentID, Title: title})
	if err != nil {
		t.Fatalf("CreateTask(%q) error = %v", title, err)
	}
	return task
}

// mustMember adds userID to projectID as the owner ownerID or fails the test.
func mustMember(t *testing.T, svc *Service, ownerID, projectID, userID string, role domain.Role) {
	t.Helper()
	if _, err := svc.AddMember(as(ownerID), projectID, userID, role); err != nil {
		t.Fatalf("AddMember(%q) error = %v", userID, err)
	}
}

// isAncestor reports whether ancestorID appears on the parent chain of id.
func isAncestor(tasks map[string]domain.Task, ancestorID, id string) bool {
	cur := tasks[id].ParentID
	for steps := 0; cur != "" && steps <= len(tasks); steps++ {
		if cur == ancestorID {
			return true
		}
		cur = tasks[cur].ParentID
	}
	return cur != ""
}
