package httpapi

import (
	"errors"
	"net/http"

	"keystile.org/internal/audit"
	"keystile.org/internal/auth"
)

type meResponse struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
}

// handleProfile отдаёт идентичность в том виде, в каком её видит шлюз.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	u, err := a.svc.Profile(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	target := r.PathValue("id")

	n, err := a.svc.DeleteUser(r.Context(), target)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"target_id": target})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user " + target + " deleted by admin " + actor.ID,
		"deleted": n,
	})
}
