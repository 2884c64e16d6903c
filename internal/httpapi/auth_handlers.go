package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"keystile.org/internal/audit"
	"keystile.org/internal/auth"
	"keystile.org/internal/obs"
	"keystile.org/internal/session"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string    `json:"message"`
	UserID  string    `json:"userId"`
	Role    auth.Role `json:"role"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Persistent bool   `json:"persistent"`
	// старые клиенты присылают rememberMe
	RememberMe bool `json:"rememberMe"`
}

type loginResponse struct {
	Message   string     `json:"message"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.svc.Register(r.Context(), auth.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"registered_id": u.ID,
		"role":          string(u.Role),
	})
	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "user registered",
		UserID:  u.ID,
		Role:    u.Role,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sid, _ := a.cookies.SessionID(r)

	res, err := a.svc.Login(r.Context(), auth.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		Persistent: req.Persistent || req.RememberMe,
		SessionID:  sid,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			obs.LoginOutcome("invalid_credentials")
			_ = audit.LogEvent(r.Context(), "login.failed", map[string]any{
				"reason": string(auth.ReasonOf(err)),
			})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleAuthError(w, r, err)
		return
	}

	ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{ID: res.User.ID, Role: res.User.Role})
	if res.Persistent {
		obs.LoginOutcome("session")
		a.cookies.Write(w, res.SessionID, auth.Extended)
		_ = audit.LogEvent(ctx, "login.succeeded", map[string]any{"mode": "session"})
		writeJSON(w, http.StatusOK, loginResponse{Message: "login successful, persistent session started"})
		return
	}

	obs.LoginOutcome("token")
	if res.SessionID != "" {
		// сессия понижена до эфемерной, cookie тоже
		a.cookies.Write(w, res.SessionID, auth.Ephemeral)
	}
	_ = audit.LogEvent(ctx, "login.succeeded", map[string]any{
		"mode":       "token",
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
	exp := res.ExpiresAt.UTC()
	writeJSON(w, http.StatusOK, loginResponse{
		Message:   "login successful",
		Token:     res.Token,
		ExpiresAt: &exp,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	sid, ok := a.cookies.SessionID(r)
	if ok {
		if err := a.svc.Logout(r.Context(), sid); err != nil {
			// клиенту всё равно 200
			obs.Logger().Warn("logout failed",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
	}
	if _, err := r.Cookie(session.CookieName); err == nil {
		a.cookies.Clear(w)
	}
	_ = audit.LogEvent(r.Context(), "logout", map[string]any{"had_session": ok})
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// loginThrottle bounds login attempts per client address before any
// credential work happens.
func (a *API) loginThrottle(next http.Handler) http.Handler {
	if a.throttle == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "login:" + clientIP(r, a.trustProxy)
		d, err := a.throttle.Attempt(r.Context(), key)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			obs.GateDecision("throttle", "deny")
			_ = audit.LogEvent(r.Context(), "login.throttled", map[string]any{
				"retry_after_ms": d.RetryAfter.Milliseconds(),
			})
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			handleAuthError(w, r, auth.ErrRateLimited)
			return
		}
		obs.GateDecision("throttle", "allow")
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
