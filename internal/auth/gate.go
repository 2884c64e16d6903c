package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Gate resolves the identity of a request: an authenticated session wins,
// otherwise a bearer token is tried. Nothing else grants access.
type Gate struct {
	sessions SessionStore
	tokens   *TokenCodec
	cipher   FieldCipher
}

// NewGate wires the gate to its collaborators.
func NewGate(sessions SessionStore, tokens *TokenCodec, cipher FieldCipher) *Gate {
	return &Gate{sessions: sessions, tokens: tokens, cipher: cipher}
}

// Resolve returns the identity for a request. sessionID is the already
// verified cookie value ("" when absent) and bearer is the raw token from the
// Authorization header ("" when absent).
func (g *Gate) Resolve(ctx context.Context, sessionID, bearer string) (Identity, error) {
	if sessionID != "" && g.sessions != nil {
		data, err := g.sessions.Read(ctx, sessionID)
		switch {
		case err == nil:
			if data.Authenticated && data.UserID != "" {
				role, err := ParseRole(string(data.Role))
				if err != nil {
					return Identity{}, rejectf(ReasonMalformed, err)
				}
				return Identity{ID: data.UserID, Role: role, Source: SourceSession}, nil
			}
		case errors.Is(err, ErrNotFound):
		default:
			return Identity{}, fmt.Errorf("read session: %w", err)
		}
	}

	bearer = strings.TrimSpace(bearer)
	if bearer == "" || g.tokens == nil {
		return Identity{}, rejectf(ReasonMissingCredential, nil)
	}
	claims, err := g.tokens.Verify(bearer)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{ID: claims.UserID, Role: claims.Role, Source: SourceToken}
	if claims.EncryptedEmail != "" {
		if g.cipher == nil {
			return Identity{}, rejectf(ReasonCorruptedClaim, errors.New("no cipher configured"))
		}
		email, err := g.cipher.Decrypt(claims.EncryptedEmail)
		if err != nil {
			return Identity{}, rejectf(ReasonCorruptedClaim, err)
		}
		id.Email = email
	}
	return id, nil
}
