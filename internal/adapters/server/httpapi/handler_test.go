package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/warden/internal/adapters/server/common"
	"github.com/hylla/warden/internal/adapters/storage/sqlstore"
	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/identity"
)

// testAPI bundles a handler with a token issuer.
type testAPI struct {
	t        *testing.T
	handler  *Handler
	verifier *identity.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo, err := sqlstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	next := 0
	svc := app.NewService(repo, func() string {
		next++
		return fmt.Sprintf("id-%03d", next)
	}, nil, app.ServiceConfig{AutoCreateStatuses: true})
	verifier, err := identity.NewVerifier("test-secret", "warden")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return &testAPI{
		t:        t,
		handler:  NewHandler(common.NewAppServiceAdapter(svc), verifier),
		verifier: verifier,
	}
}

// do sends one request as userID; an empty userID sends no token.
func (a *testAPI) do(userID, method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := a.verifier.Issue(userID, time.Hour)
		if err != nil {
			a.t.Fatalf("Issue() error = %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v (body %q)", err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	got := decodeBody[ErrorEnvelope](t, rec)
	if got.Error.Code != code {
		t.Fatalf("error code = %q, want %q", got.Error.Code, code)
	}
}

// TestHandlerRequiresBearerToken verifies unauthenticated calls never reach the service.
func TestHandlerRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do("", http.MethodGet, "/projects", "")
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer forged.token.value")
	bad := httptest.NewRecorder()
	api.handler.ServeHTTP(bad, req)
	expectError(t, bad, http.StatusUnauthorized, "unauthenticated")
}

// TestHandlerProjectAndTaskFlow drives the main REST surface end to end.
func TestHandlerProjectAndTaskFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do("alice", http.MethodPost, "/projects", `{"name":"Roadmap"}`)
	expectStatus(t, rec, http.StatusCreated)
	project := decodeBody[common.ProjectView](t, rec)
	if project.OwnerID != "alice" {
		t.Fatalf("owner = %q, want alice", project.OwnerID)
	}

	rec = api.do("alice", http.MethodPost, "/projects/"+project.ID+"/members", `{"user_id":"bob","role":"viewer"}`)
	expectStatus(t, rec, http.StatusCreated)

	rec = api.do("bob", http.MethodPost, "/projects/"+project.ID+"/tasks", `{"title":"nope"}`)
	expectError(t, rec, http.StatusForbidden, "forbidden")

	rec = api.do("alice", http.MethodPost, "/projects/"+project.ID+"/tasks", `{"title":"Epic"}`)
	expectStatus(t, rec, http.StatusCreated)
	epic := decodeBody[common.TaskView](t, rec)

	rec = api.do("alice", http.MethodPost, "/projects/"+project.ID+"/tasks", fmt.Sprintf(`{"title":"Story","parent_id":%q}`, epic.ID))
	expectStatus(t, rec, http.StatusCreated)
	story := decodeBody[common.TaskView](t, rec)

	rec = api.do("alice", http.MethodPost, "/tasks/"+epic.ID+"/reparent", fmt.Sprintf(`{"parent_id":%q}`, story.ID))
	expectError(t, rec, http.StatusConflict, "cycle_detected")

	rec = api.do("bob", http.MethodGet, "/projects/"+project.ID+"/tree", "")
	expectStatus(t, rec, http.StatusOK)
	tree := decodeBody[struct {
		Nodes []common.TreeNodeView `json:"nodes"`
	}](t, rec)
	if len(tree.Nodes) != 2 || tree.Nodes[1].Depth != 1 || tree.Nodes[1].Task.ID != story.ID {
		t.Fatalf("unexpected tree %#v", tree.Nodes)
	}

	rec = api.do("alice", http.MethodDelete, "/tasks/"+epic.ID, "")
	expectError(t, rec, http.StatusConflict, "has_children")
	rec = api.do("alice", http.MethodDelete, "/tasks/"+epic.ID+"?policy=cascade", "")
	expectStatus(t, rec, http.StatusOK)
	deleted := decodeBody[struct {
		Deleted []string `json:"deleted"`
	}](t, rec)
	if len(deleted.Deleted) != 2 {
		t.Fatalf("expected 2 deleted tasks, got %#v", deleted.Deleted)
	}

	rec = api.do("bob", http.MethodGet, "/projects/"+project.ID+"/events?limit=2", "")
	expectStatus(t, rec, http.StatusOK)
	events := decodeBody[struct {
		Events []common.ChangeEventView `json:"events"`
	}](t, rec)
	if len(events.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events.Events))
	}
}

// TestHandlerHidesProjectExistence verifies missing and foreign projects answer identically.
func TestHandlerHidesProjectExistence(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do("alice", http.MethodPost, "/projects", `{"name":"Private"}`)
	expectStatus(t, rec, http.StatusCreated)
	project := decodeBody[common.ProjectView](t, rec)

	foreign := api.do("mallory", http.MethodGet, "/projects/"+project.ID+"/tasks", "")
	missing := api.do("mallory", http.MethodGet, "/projects/does-not-exist/tasks", "")
	expectError(t, foreign, http.StatusForbidden, "forbidden")
	expectError(t, missing, http.StatusForbidden, "forbidden")

	rec = api.do("mallory", http.MethodPost, "/authorize", fmt.Sprintf(`{"project_id":%q,"operation":"task.view"}`, project.ID))
	expectStatus(t, rec, http.StatusOK)
	decision := decodeBody[common.DecisionView](t, rec)
	if decision.Granted || decision.Reason != string(app.DenyNotAMember) {
		t.Fatalf("unexpected decision %#v", decision)
	}
}

// TestHandlerStatusLifecycle covers status create, patch, and reassigning delete.
func TestHandlerStatusLifecycle(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do("alice", http.MethodPost, "/projects", `{"name":"Flow"}`)
	project := decodeBody[common.ProjectView](t, rec)

	rec = api.do("alice", http.MethodPost, "/projects/"+project.ID+"/statuses", `{"label":"Blocked","color":"#f00"}`)
	expectStatus(t, rec, http.StatusCreated)
	blocked := decodeBody[common.StatusView](t, rec)
	if blocked.Color != "#FF0000" {
		t.Fatalf("color = %q, want #FF0000", blocked.Color)
	}

	rec = api.do("alice", http.MethodPatch, "/statuses/"+blocked.ID, `{"color":"not-a-color"}`)
	expectError(t, rec, http.StatusBadRequest, "invalid_request")

	rec = api.do("alice", http.MethodPost, "/projects/"+project.ID+"/tasks", fmt.Sprintf(`{"title":"Stuck","status_id":%q}`, blocked.ID))
	expectStatus(t, rec, http.StatusCreated)

	rec = api.do("alice", http.MethodDelete, "/statuses/"+blocked.ID, "")
	expectError(t, rec, http.StatusConflict, "status_in_use")

	rec = api.do("alice", http.MethodGet, "/projects/"+project.ID+"/statuses", "")
	statuses := decodeBody[struct {
		Statuses []common.StatusView `json:"statuses"`
	}](t, rec)
	rec = api.do("alice", http.MethodDelete, "/statuses/"+blocked.ID+"?on_in_use=reassign&fallback_status_id="+statuses.Statuses[0].ID, "")
	expectStatus(t, rec, http.StatusOK)
	out := decodeBody[struct {
		Reassigned int `json:"reassigned"`
	}](t, rec)
	if out.Reassigned != 1 {
		t.Fatalf("reassigned = %d, want 1", out.Reassigned)
	}
}

// TestHandlerRejectsMalformedBodies verifies strict JSON decoding.
func TestHandlerRejectsMalformedBodies(t *testing.T) {
	api := newTestAPI(t)
	cases := []string{
		`{"name":"x","bogus":true}`,
		`{"name":"x"} {"name":"y"}`,
		`not json`,
	}
	for _, body := range cases {
		rec := api.do("alice", http.MethodPost, "/projects", body)
		expectError(t, rec, http.StatusBadRequest, "invalid_request")
	}
	rec := api.do("alice", http.MethodGet, "/projects/p/events?limit=-1", "")
	expectError(t, rec, http.StatusBadRequest, "invalid_request")
}

// TestHandlerWithoutWorkspace verifies a missing service fails closed.
func TestHandlerWithoutWorkspace(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))
	expectError(t, rec, http.StatusServiceUnavailable, "service_unavailable")
}
