package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"gad.kz/internal/audit"
	"gad.kz/internal/dispatch"
	"gad.kz/internal/identity"
	"gad.kz/internal/obs"
	"gad.kz/internal/ratelimit"
	"gad.kz/internal/stream"
	"gad.kz/internal/token"
)

// ReadyProbe reports whether downstream dependencies answer (e.g. a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs. All fields except Tokens,
// Users, Tasks and Trail are optional.
type Deps struct {
	Tokens  *token.Service
	Users   *identity.Service
	Tasks   *dispatch.Service
	Trail   *audit.Trail
	Stream  *stream.Stream
	Limiter *ratelimit.Limiter
	Ready   ReadyProbe
	Version string
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	tokens  *token.Service
	users   *identity.Service
	tasks   *dispatch.Service
	trail   *audit.Trail
	stream  *stream.Stream
	limiter *ratelimit.Limiter
	ready   ReadyProbe
	version string
}

func New(deps Deps) *API {
	a := &API{
		mux:     http.NewServeMux(),
		tokens:  deps.Tokens,
		users:   deps.Users,
		tasks:   deps.Tasks,
		trail:   deps.Trail,
		stream:  deps.Stream,
		limiter: deps.Limiter,
		ready:   deps.Ready,
		version: deps.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/telegram", a.handleTelegramToken)

	// tasks
	a.mux.HandleFunc("/v1/tasks", a.handleTasksCollection)
	a.mux.HandleFunc("/v1/tasks/", a.handleTaskResource)

	// user management
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// audit
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)
	a.mux.HandleFunc("/v1/audit/stream", a.handleAuditStream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	if a.limiter != nil {
		h = RateLimit(h, a.limiter)
	}
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gad-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "gad-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
