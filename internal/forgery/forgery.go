// Package forgery implements double-submit request forgery protection bound
// to a per-session secret.
package forgery

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// HeaderName is where clients echo the token.
const HeaderName = "X-CSRF-Token"

var headerNames = []string{HeaderName, "X-XSRF-Token", "CSRF-Token"}

// Mode selects when a route demands a token.
type Mode int

const (
	// Conditional demands a token only from cookie-bearing clients.
	Conditional Mode = iota
	// Required demands a token from every client.
	Required
)

func (m Mode) String() string {
	if m == Required {
		return "required"
	}
	return "conditional"
}

// CookieBearing reports whether the request carries ambient browser
// credentials. This is the only place the client class is decided.
func CookieBearing(r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get("Cookie")) != ""
}

// Applies reports whether the check must run for r under mode.
func Applies(mode Mode, r *http.Request) bool {
	return mode == Required || CookieBearing(r)
}

// NewSecret returns a fresh per-session secret.
func NewSecret() (string, error) {
	return randomString(32)
}

// Mint issues a token for secret. Each call yields a different token.
func Mint(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("forgery: empty secret")
	}
	salt, err := randomString(12)
	if err != nil {
		return "", err
	}
	return salt + "." + sign(secret, salt), nil
}

// Verify checks token against secret in constant time.
func Verify(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	salt, sig, ok := strings.Cut(token, ".")
	if !ok || salt == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(sign(secret, salt)))
}

// TokenFromRequest returns the echoed token, "" when absent.
func TokenFromRequest(r *http.Request) string {
	for _, h := range headerNames {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

func sign(secret, salt string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(salt))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("forgery: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
