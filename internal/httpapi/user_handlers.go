package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gad.kz/internal/identity"
	"gad.kz/internal/token"
)

type createUserRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	TelegramID int64  `json:"telegram_id"`
	Level      int    `json:"level"`
}

type setLevelRequest struct {
	Level int `json:"level"`
}

// userView is the wire shape of an account; the password hash never leaves
// the identity package boundary.
type userView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	Level      int       `json:"level"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewUser(u *identity.User) userView {
	return userView{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		TelegramID: u.TelegramID,
		Level:      u.Level,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type listUsersResponse struct {
	Items []userView `json:"items"`
	Count int        `json:"count"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createUser(w, r)
	case http.MethodGet:
		a.listUsers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserResource routes /v1/users/{id} and its sub-actions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
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
		case "level":
			a.setUserLevel(w, r, id)
		case "disable":
			a.disableUser(w, r, id)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getUser(w, r, id)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	user, err := a.users.CreateUser(r.Context(), actorFrom(r),
		req.Email, req.Name, req.Password, req.TelegramID, req.Level)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, viewUser(user))
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	users, err := a.users.Store().List(r.Context())
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	items := make([]userView, 0, len(users))
	for _, u := range users {
		items = append(items, viewUser(u))
	}
	writeJSON(w, http.StatusOK, listUsersResponse{Items: items, Count: len(items)})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	user, err := a.users.Store().Find(r.Context(), id)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(user))
}

func (a *API) setUserLevel(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	var req setLevelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.users.SetLevel(r.Context(), actorFrom(r), id, req.Level); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	user, err := a.users.Store().Find(r.Context(), id)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(user))
}

func (a *API) disableUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	if err := a.users.Disable(r.Context(), actorFrom(r), id); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	user, err := a.users.Store().Find(r.Context(), id)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(user))
}

func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
