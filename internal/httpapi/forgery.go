package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"keystile.org/internal/audit"
	"keystile.org/internal/auth"
	"keystile.org/internal/forgery"
	"keystile.org/internal/obs"
)

// forgeryGate checks the echoed anti-forgery token against the secret of the
// caller's session. It runs before and independently of authentication.
func (a *API) forgeryGate(mode forgery.Mode, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !forgery.Applies(mode, r) {
			obs.GateDecision("forgery", "skip")
			next.ServeHTTP(w, r)
			return
		}
		ok, err := a.forgeryTokenValid(r)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if !ok {
			obs.GateDecision("forgery", "deny")
			_ = audit.LogEvent(r.Context(), "forgery.rejected", map[string]any{
				"path": r.URL.Path,
				"mode": mode.String(),
			})
			handleAuthError(w, r, auth.ErrForgeryCheckFailed)
			return
		}
		obs.GateDecision("forgery", "allow")
		next.ServeHTTP(w, r)
	})
}

func (a *API) forgeryTokenValid(r *http.Request) (bool, error) {
	token := forgery.TokenFromRequest(r)
	sid, ok := a.cookies.SessionID(r)
	if token == "" || !ok {
		return false, nil
	}
	data, err := a.sessions.Read(r.Context(), sid)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read session: %w", err)
	}
	return forgery.Verify(data.ForgerySecret, token), nil
}

// handleForgeryToken выдаёт токен для сессии клиента. Сессия и секрет
// создаются лениво.
func (a *API) handleForgeryToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		data    auth.SessionData
		sid     string
		current bool
	)
	if id, ok := a.cookies.SessionID(r); ok {
		d, err := a.sessions.Read(ctx, id)
		switch {
		case err == nil:
			data, sid, current = d, id, true
		case errors.Is(err, auth.ErrNotFound):
		default:
			handleAuthError(w, r, fmt.Errorf("read session: %w", err))
			return
		}
	}

	if data.ForgerySecret == "" {
		secret, err := forgery.NewSecret()
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		data.ForgerySecret = secret
		if current {
			if err := a.sessions.Update(ctx, sid, data); err != nil {
				handleAuthError(w, r, fmt.Errorf("update session: %w", err))
				return
			}
		} else {
			data.Policy = auth.Ephemeral
			id, err := a.sessions.Create(ctx, data)
			if err != nil {
				handleAuthError(w, r, fmt.Errorf("create session: %w", err))
				return
			}
			a.cookies.Write(w, id, auth.Ephemeral)
		}
	}

	token, err := forgery.Mint(data.ForgerySecret)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"csrfToken": token})
}
