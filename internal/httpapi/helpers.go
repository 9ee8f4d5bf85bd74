package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gad.kz/internal/audit"
	"gad.kz/internal/token"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

const sessionHeader = "X-Session-ID"

// actorFrom extracts the audit actor for the current request from the
// verified claims and the session header.
func actorFrom(r *http.Request) audit.Actor {
	actor := audit.Actor{SessionID: strings.TrimSpace(r.Header.Get(sessionHeader))}
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		return actor
	}
	sub := claims.Subject
	if tgID, userID, ok := token.ParseTelegramSubject(sub); ok {
		actor.TelegramID = tgID
		actor.UserID = userID
		return actor
	}
	actor.UserID = sub
	return actor
}

func auditDenied(actor audit.Actor, req audit.RequestContext, scope string) audit.Entry {
	return audit.Entry{
		Type:           audit.EventPermissionDenied,
		Actor:          actor,
		Request:        req,
		Action:         "access denied: missing scope " + scope,
		Failed:         true,
		ResponseStatus: http.StatusForbidden,
		Metadata:       map[string]any{"required_scope": scope},
	}
}

// requestContext captures the HTTP envelope for audit records.
func requestContext(r *http.Request) audit.RequestContext {
	return audit.RequestContext{
		Endpoint:  r.URL.Path,
		Method:    r.Method,
		UserAgent: r.UserAgent(),
		SourceIP:  clientIP(r),
		Referer:   r.Referer(),
	}
}
