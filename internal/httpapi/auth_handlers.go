package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gad.kz/internal/audit"
	"gad.kz/internal/identity"
	"gad.kz/internal/obs"
	"gad.kz/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.users.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		a.trail.Record(r.Context(), audit.Entry{
			Type:           audit.EventLoginFailed,
			Actor:          audit.Actor{},
			Request:        requestContext(r),
			Action:         "login rejected for " + email,
			Failed:         true,
			ErrorMessage:   "invalid credentials",
			ResponseStatus: http.StatusUnauthorized,
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	scopes := token.ScopesForLevel(user.Level)
	blob, expiresAt, err := a.tokens.Issue(user.ID, token.AudienceAPI, token.IssueOptions{Scopes: scopes})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	obs.IncTokenIssued(string(token.AudienceAPI))

	session := a.trail.StartSession(r.Context(), audit.Actor{
		UserID:     user.ID,
		TelegramID: user.TelegramID,
	})
	a.trail.Record(r.Context(), audit.Entry{
		Type:    audit.EventLogin,
		Actor:   session.Actor,
		Request: requestContext(r),
		Action:  "user logged in",
		Metadata: map[string]any{
			"level":      user.Level,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     blob,
		ExpiresAt: expiresAt,
		SessionID: session.SessionID,
		Scopes:    scopes,
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	sid := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sid == "" {
		var req logoutRequest
		if err := decodeJSON(w, r, &req); err == nil {
			sid = strings.TrimSpace(req.SessionID)
		}
	}

	actor := actorFrom(r)
	if sid != "" {
		actor.SessionID = sid
		a.trail.EndSession(r.Context(), sid, "logout")
	}
	a.trail.Record(r.Context(), audit.Entry{
		Type:    audit.EventLogout,
		Actor:   actor,
		Request: requestContext(r),
		Action:  "user logged out",
	})

	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// handleRefresh reissues a still-valid api token with the same subject and
// scopes. Expired tokens cannot be refreshed.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if claims.Aud() != token.AudienceAPI {
		writeError(w, r, http.StatusForbidden, "only api tokens can be refreshed")
		return
	}

	blob, expiresAt, err := a.tokens.Issue(claims.Subject, token.AudienceAPI, token.IssueOptions{
		Scopes: claims.Scopes(),
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	obs.IncTokenIssued(string(token.AudienceAPI))

	a.trail.Record(r.Context(), audit.Entry{
		Type:    audit.EventTokenRefresh,
		Actor:   actorFrom(r),
		Request: requestContext(r),
		Action:  "access token refreshed",
		Metadata: map[string]any{
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     blob,
		ExpiresAt: expiresAt,
		Scopes:    claims.Scopes(),
	})
}

type telegramTokenRequest struct {
	TelegramID int64 `json:"telegram_id"`
}

// handleTelegramToken mints a bot token for a linked telegram account. The
// caller must hold admin:users; the target user must exist and be active.
func (a *API) handleTelegramToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}

	var req telegramTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.TelegramID == 0 {
		writeError(w, r, http.StatusBadRequest, "telegram_id is required")
		return
	}

	user, err := a.users.Store().FindByTelegramID(r.Context(), req.TelegramID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no user linked to telegram id")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !user.Active() {
		writeError(w, r, http.StatusForbidden, "user is disabled")
		return
	}

	blob, expiresAt, err := a.tokens.IssueTelegramToken(req.TelegramID, user.ID, user.Level)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	obs.IncTokenIssued(string(token.AudienceTelegram))

	a.trail.Record(r.Context(), audit.Entry{
		Type:         audit.EventCreate,
		Actor:        actorFrom(r),
		Request:      requestContext(r),
		ResourceType: "telegram_token",
		ResourceID:   user.ID,
		Action:       "telegram bot token issued",
		Metadata: map[string]any{
			"telegram_id": req.TelegramID,
			"level":       user.Level,
			"expires_at":  expiresAt.Format(time.RFC3339),
		},
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     blob,
		ExpiresAt: expiresAt,
		Scopes:    token.ScopesForLevel(user.Level),
	})
}
