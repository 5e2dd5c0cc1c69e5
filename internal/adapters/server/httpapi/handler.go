// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/warden/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
// Every route requires a bearer token.
type Handler struct {
	workspace common.Workspace
	auth      common.Authenticator
	mux       *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(workspace common.Workspace, auth common.Authenticator) *Handler {
	h := &Handler{workspace: workspace, auth: auth, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) routes() {
	m := h.mux
	m.HandleFunc("POST /authorize", h.handleAuthorize)

	m.HandleFunc("GET /projects", h.handleListProjects)
	m.HandleFunc("POST /projects", h.handleCreateProject)
	m.HandleFunc("GET /projects/{id}", h.handleGetProject)
	m.HandleFunc("PATCH /projects/{id}", h.handleUpdateProject)
	m.HandleFunc("DELETE /projects/{id}", h.handleDeleteProject)
	m.HandleFunc("POST /projects/{id}/move", h.handleMoveProject)

	m.HandleFunc("GET /projects/{id}/members", h.handleListMembers)
	m.HandleFunc("POST /projects/{id}/members", h.handleAddMember)
	m.HandleFunc("PATCH /projects/{id}/members/{user}", h.handleUpdateMember)
	m.HandleFunc("DELETE /projects/{id}/members/{user}", h.handleRemoveMember)

	m.HandleFunc("GET /projects/{id}/statuses", h.handleListStatuses)
	m.HandleFunc("POST /projects/{id}/statuses", h.handleCreateStatus)
	m.HandleFunc("PATCH /statuses/{id}", h.handleUpdateStatus)
	m.HandleFunc("DELETE /statuses/{id}", h.handleDeleteStatus)

	m.HandleFunc("GET /projects/{id}/tasks", h.handleListTasks)
	m.HandleFunc("POST /projects/{id}/tasks", h.handleCreateTask)
	m.HandleFunc("GET /projects/{id}/tree", h.handleTaskTree)
	m.HandleFunc("PATCH /tasks/{id}", h.handleUpdateTask)
	m.HandleFunc("DELETE /tasks/{id}", h.handleDeleteTask)
	m.HandleFunc("POST /tasks/{id}/reparent", h.handleReparentTask)

	m.HandleFunc("GET /tasks/{id}/comments", h.handleListComments)
	m.HandleFunc("POST /tasks/{id}/comments", h.handleAddComment)

	m.HandleFunc("GET /projects/{id}/events", h.handleListEvents)
}

// ServeHTTP authenticates the caller and routes one versioned API request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.workspace == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "workspace service is not configured",
		})
		return
	}
	ctx, err := common.AuthenticateHeader(r.Context(), h.auth, r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
		writeErrorFrom(w, err)
		return
	}
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req common.AuthorizeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	decision, err := h.workspace.Authorize(r.Context(), req)
	respond(w, http.StatusOK, decision, err)
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.workspace.ListProjects(r.Context())
	respond(w, http.StatusOK, map[string]any{"projects": projects}, err)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.workspace.CreateProject(r.Context(), req)
	respond(w, http.StatusCreated, project, err)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.workspace.GetProject(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, project, err)
}

func (h *Handler) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	project, err := h.workspace.UpdateProject(r.Context(), req)
	respond(w, http.StatusOK, project, err)
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.workspace.DeleteProject(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"deleted": deleted}, err)
}

func (h *Handler) handleMoveProject(w http.ResponseWriter, r *http.Request) {
	var req common.MoveProjectRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	project, err := h.workspace.MoveProject(r.Context(), req)
	respond(w, http.StatusOK, project, err)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.workspace.ListMembers(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"members": members}, err)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req common.MemberRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	member, err := h.workspace.AddMember(r.Context(), req)
	respond(w, http.StatusCreated, member, err)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req common.MemberRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	req.UserID = r.PathValue("user")
	member, err := h.workspace.UpdateMember(r.Context(), req)
	respond(w, http.StatusOK, member, err)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace.RemoveMember(r.Context(), r.PathValue("id"), r.PathValue("user")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.workspace.ListStatuses(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"statuses": statuses}, err)
}

func (h *Handler) handleCreateStatus(w http.ResponseWriter, r *http.Request) {
	var req common.CreateStatusRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	status, err := h.workspace.CreateStatus(r.Context(), req)
	respond(w, http.StatusCreated, status, err)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateStatusRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.StatusID = r.PathValue("id")
	status, err := h.workspace.UpdateStatus(r.Context(), req)
	respond(w, http.StatusOK, status, err)
}

// handleDeleteStatus serves DELETE `/statuses/{id}?on_in_use=reassign&fallback_status_id=...`.
func (h *Handler) handleDeleteStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	moved, err := h.workspace.DeleteStatus(r.Context(), common.DeleteStatusRequest{
		StatusID:         r.PathValue("id"),
		OnInUse:          q.Get("on_in_use"),
		FallbackStatusID: q.Get("fallback_status_id"),
	})
	respond(w, http.StatusOK, map[string]any{"reassigned": moved}, err)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.workspace.ListTasks(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"tasks": tasks}, err)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	task, err := h.workspace.CreateTask(r.Context(), req)
	respond(w, http.StatusCreated, task, err)
}

func (h *Handler) handleTaskTree(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.workspace.TaskTree(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"nodes": nodes}, err)
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TaskID = r.PathValue("id")
	task, err := h.workspace.UpdateTask(r.Context(), req)
	respond(w, http.StatusOK, task, err)
}

// handleDeleteTask serves DELETE `/tasks/{id}?policy=cascade`.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.workspace.DeleteTask(r.Context(), common.DeleteTaskRequest{
		TaskID: r.PathValue("id"),
		Policy: r.URL.Query().Get("policy"),
	})
	respond(w, http.StatusOK, map[string]any{"deleted": deleted}, err)
}

func (h *Handler) handleReparentTask(w http.ResponseWriter, r *http.Request) {
	var req common.ReparentTaskRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TaskID = r.PathValue("id")
	task, err := h.workspace.ReparentTask(r.Context(), req)
	respond(w, http.StatusOK, task, err)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.workspace.ListComments(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"comments": comments}, err)
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req common.AddCommentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TaskID = r.PathValue("id")
	comment, err := h.workspace.AddComment(r.Context(), req)
	respond(w, http.StatusCreated, comment, err)
}

// handleListEvents serves GET `/projects/{id}/events?limit=n`.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorFrom(w, fmt.Errorf("%w: limit must be a non-negative integer", common.ErrInvalidRequest))
			return
		}
		limit = n
	}
	events, err := h.workspace.ListChangeEvents(r.Context(), r.PathValue("id"), limit)
	respond(w, http.StatusOK, map[string]any{"events": events}, err)
}

// respond writes payload on success or the mapped error otherwise.
func respond(w http.ResponseWriter, statusCode int, payload any, err error) {
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, statusCode, payload)
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	kind := common.Classify(err)
	apiErr := APIError{Code: kind.Code, Message: common.PublicMessage(err, kind)}
	switch kind.Code {
	case "unauthenticated":
		apiErr.Hint = "Send Authorization: Bearer <token>."
	case "transient":
		w.Header().Set("Retry-After", "1")
	}
	writeJSONError(w, kind.Status, apiErr)
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
