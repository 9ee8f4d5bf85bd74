package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gad.kz/internal/obs"
	"gad.kz/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token on every non-public request and stashes
// its claims in the context. Both api and telegram audiences are accepted;
// scope checks happen per handler. When a session header accompanies the
// request, its activity counters are bumped after the handler runs.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		blob, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.tokens.Verify(blob, token.AudienceAPI, nil)
		if errors.Is(err, token.ErrAudienceMismatch) {
			claims, err = a.tokens.Verify(blob, token.AudienceTelegram, nil)
		}
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpiredToken):
				obs.IncTokenVerification("expired")
				writeError(w, r, http.StatusUnauthorized, "token expired")
			default:
				obs.IncTokenVerification("invalid")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			}
			return
		}
		obs.IncTokenVerification("ok")

		ctx := token.ContextWithClaims(r.Context(), claims)

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		if sid := strings.TrimSpace(r.Header.Get(sessionHeader)); sid != "" && a.trail != nil {
			a.trail.TouchSession(ctx, sid, sw.code < http.StatusBadRequest)
		}
	})
}

// requireScope enforces a scope on the verified claims. A denial is audited.
func (a *API) requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !claims.HasScope(scope) {
		if a.trail != nil {
			a.trail.Record(r.Context(), auditDenied(actorFrom(r), requestContext(r), scope))
		}
		writeError(w, r, http.StatusForbidden, "insufficient scope")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	blob := strings.TrimSpace(header[len(bearer):])
	if blob == "" {
		return "", errors.New("missing bearer token")
	}
	return blob, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
