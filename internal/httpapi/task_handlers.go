package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gad.kz/internal/dispatch"
	"gad.kz/internal/token"
)

type createTaskRequest struct {
	Title    string `json:"title"`
	Details  string `json:"details"`
	Priority string `json:"priority"`
}

type updateTaskRequest struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

type assignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type listTasksResponse struct {
	Items []*dispatch.Task `json:"items"`
	Count int              `json:"count"`
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleTaskResource routes /v1/tasks/{id} and its sub-actions.
func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, action, hasAction := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if hasAction {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		switch action {
		case "assign":
			a.assignTask(w, r, id)
		case "status":
			a.setTaskStatus(w, r, id)
		case "complete":
			a.completeTask(w, r, id)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getTask(w, r, id)
	case http.MethodPatch:
		a.updateTask(w, r, id)
	case http.MethodDelete:
		a.deleteTask(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	priority := dispatch.Priority(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = dispatch.PriorityNormal
	}

	task, err := a.tasks.Create(r.Context(), actorFrom(r), req.Title, req.Details, priority)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/tasks/"+task.ID)
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, token.ScopeReadTasks) {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	f := dispatch.ListFilter{
		Status:     dispatch.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Priority:   dispatch.Priority(strings.TrimSpace(r.URL.Query().Get("priority"))),
		AssigneeID: strings.TrimSpace(r.URL.Query().Get("assignee_id")),
		Limit:      limit,
		Offset:     offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown status")
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown priority")
		return
	}

	items, err := a.tasks.List(r.Context(), f)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	if items == nil {
		items = []*dispatch.Task{}
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Items: items, Count: len(items)})
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeReadTasks) {
		return
	}
	task, err := a.tasks.Get(r.Context(), id)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.tasks.UpdateDetails(r.Context(), actorFrom(r), id, req.Title, req.Details)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	if err := a.tasks.Delete(r.Context(), actorFrom(r), id); err != nil {
		handleDispatchError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignTask(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	var req assignTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.tasks.Assign(r.Context(), actorFrom(r), id, strings.TrimSpace(req.AssigneeID))
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) setTaskStatus(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := dispatch.Status(strings.TrimSpace(req.Status))
	if !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown status")
		return
	}
	task, err := a.tasks.SetStatus(r.Context(), actorFrom(r), id, status)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) completeTask(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeWriteTasks) {
		return
	}
	task, err := a.tasks.Complete(r.Context(), actorFrom(r), id)
	if err != nil {
		handleDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func handleDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
