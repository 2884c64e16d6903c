package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keystile.org/internal/audit"
	"keystile.org/internal/auth"
	"keystile.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate resolves the caller through the gate and puts the identity
// into the request context. Every rejection looks the same to the client.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, _ := a.cookies.SessionID(r)
		token, _ := extractBearerToken(r.Header.Get(authHeader))

		id, err := a.gate.Resolve(r.Context(), sid, token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				reason := string(auth.ReasonOf(err))
				obs.GateDecision("auth", reason)
				_ = audit.LogEvent(r.Context(), "auth.rejected", map[string]any{
					"reason": reason,
					"path":   r.URL.Path,
				})
				w.Header().Set("WWW-Authenticate", `Bearer realm="keystile"`)
			}
			handleAuthError(w, r, err)
			return
		}
		obs.GateDecision("auth", "allow_"+string(id.Source))
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// requireRole admits only identities holding one of roles.
func (a *API) requireRole(next http.Handler, roles ...auth.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Authorize(r.Context(), roles...); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				obs.GateDecision("role", "deny")
				_ = audit.LogEvent(r.Context(), "role.denied", map[string]any{"path": r.URL.Path})
			} else {
				w.Header().Set("WWW-Authenticate", `Bearer realm="keystile"`)
			}
			handleAuthError(w, r, err)
			return
		}
		obs.GateDecision("role", "allow")
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
