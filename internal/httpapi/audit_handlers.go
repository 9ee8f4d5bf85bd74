package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gad.kz/internal/audit"
	"gad.kz/internal/token"
)

type auditEventsResponse struct {
	Items []audit.Event `json:"items"`
	Count int           `json:"count"`
	AsOf  time.Time     `json:"as_of"`
}

// handleAuditEvents serves the audit log to administrators. The query itself
// is recorded as a sensitive read.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}

	f, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, qerr := a.trail.Query(r.Context(), f)
	if qerr != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []audit.Event{}
	}

	a.trail.LogRead(r.Context(), actorFrom(r), "audit_log", "query", "audit log queried", true)

	writeJSON(w, http.StatusOK, auditEventsResponse{
		Items: items,
		Count: len(items),
		AsOf:  time.Now().UTC(),
	})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter

	f.UserID = strings.TrimSpace(q.Get("user_id"))
	f.SessionID = strings.TrimSpace(q.Get("session_id"))
	f.ResourceType = strings.TrimSpace(q.Get("resource_type"))
	f.ResourceID = strings.TrimSpace(q.Get("resource_id"))
	f.FailuresOnly = q.Get("failures_only") == "true"

	for _, raw := range q["type"] {
		t := audit.EventType(strings.TrimSpace(raw))
		if !t.Valid() {
			return f, errInvalidParam("type", raw)
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range q["severity"] {
		s := audit.Severity(strings.TrimSpace(raw))
		if !s.Valid() {
			return f, errInvalidParam("severity", raw)
		}
		f.Severities = append(f.Severities, s)
	}

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errInvalidParam("from", raw)
		}
		f.From = ts
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errInvalidParam("to", raw)
		}
		f.To = ts
	}

	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		return f, errInvalidParam("limit", q.Get("limit"))
	}
	f.Limit = limit
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		return f, errInvalidParam("offset", q.Get("offset"))
	}
	f.Offset = offset

	return f, nil
}

type paramError struct {
	name  string
	value string
}

func (e paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}

func errInvalidParam(name, value string) error {
	return paramError{name: name, value: value}
}

// handleAuditStream serves Server-Sent Events with live audit activity.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, token.ScopeAdminUsers) {
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Initial comment to establish the stream.
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
