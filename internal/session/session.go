// Package session stores server-side session state and signs the cookie
// that references it.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"keystile.org/internal/auth"
)

// DefaultEphemeralTTL bounds server-side lifetime of a session whose cookie
// ends with the browser.
const DefaultEphemeralTTL = 24 * time.Hour

// ttlFor maps a policy to the server-side lifetime.
func ttlFor(p auth.ExpiryPolicy, ephemeral time.Duration) time.Duration {
	if p == auth.Extended {
		return auth.ExtendedSessionTTL
	}
	return ephemeral
}

// NewID returns 256 bits of randomness encoded as URL-safe base64.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
