package auth

import "context"

// Authorize admits the identity in ctx when its role is one of allowed.
// No identity means ErrUnauthenticated; a role outside the set means
// ErrForbidden. An empty allowed set admits nobody.
func Authorize(ctx context.Context, allowed ...Role) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, rejectf(ReasonNoIdentity, nil)
	}
	for _, role := range allowed {
		if id.Role.Is(role) {
			return id, nil
		}
	}
	return Identity{}, ErrForbidden
}
