package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"keystile.org/internal/auth"
)

// CookieName is the name of the session reference cookie.
const CookieName = "keystile.sid"

// CookieCodec signs session ids into cookie values and back.
// A cookie value is id "." base64url(HMAC-SHA256(secret, id)).
type CookieCodec struct {
	secret []byte
	secure bool
}

// NewCookieCodec requires a non-empty secret. secure marks cookies
// Secure, which production deployments must set.
func NewCookieCodec(secret []byte, secure bool) (*CookieCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: cookie secret is not configured")
	}
	return &CookieCodec{secret: append([]byte(nil), secret...), secure: secure}, nil
}

func (c *CookieCodec) mac(id string) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(id))
	return m.Sum(nil)
}

// Sign returns the cookie value for id.
func (c *CookieCodec) Sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(c.mac(id))
}

// Verify returns the session id carried by value when its signature holds.
func (c *CookieCodec) Verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	id := value[:i]
	sig, err := base64.RawURLEncoding.DecodeString(value[i+1:])
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sig, c.mac(id)) {
		return "", false
	}
	return id, true
}

// SessionID extracts the verified session id from the request, if any.
// A forged or unsigned cookie counts as absent.
func (c *CookieCodec) SessionID(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return c.Verify(ck.Value)
}

// Write sets the session cookie. Extended sessions get a Max-Age; ephemeral
// ones live until the browser closes.
func (c *CookieCodec) Write(w http.ResponseWriter, id string, policy auth.ExpiryPolicy) {
	ck := &http.Cookie{
		Name:     CookieName,
		Value:    c.Sign(id),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if policy == auth.Extended {
		ck.MaxAge = int(auth.ExtendedSessionTTL.Seconds())
	}
	http.SetCookie(w, ck)
}

// Clear instructs the client to drop the session cookie.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
