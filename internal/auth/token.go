package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "keystile"
	// TokenTTL is the lifetime of a bearer token.
	TokenTTL = time.Hour
)

var errMissingSecret = errors.New("auth: token secret is not configured")

// Claims is the token payload. The email travels encrypted, never in the clear.
type Claims struct {
	UserID         string `json:"uid"`
	Role           Role   `json:"role"`
	EncryptedEmail string `json:"eml,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 bearer tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock overrides the time source.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewTokenCodec builds a codec around the signing secret.
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errMissingSecret
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    TokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token for the given user. The returned time is the expiry.
func (c *TokenCodec) Sign(userID string, role Role, encryptedEmail string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := Claims{
		UserID:         userID,
		Role:           role,
		EncryptedEmail: encryptedEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp.Truncate(time.Second), nil
}

// Verify checks the signature first and only then the claims. Every failure
// is an *AuthError with a reason describing what went wrong.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, rejectf(ReasonMissingCredential, nil)
	}
	// подпись до разбора тела: поддельный токен не декодируем
	if reason, err := c.checkSignature(token); err != nil {
		return nil, rejectf(reason, err)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, rejectf(classifyTokenError(err), err)
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.UserID != claims.Subject {
		return nil, rejectf(ReasonMalformed, errors.New("subject mismatch"))
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return nil, rejectf(ReasonMalformed, err)
	}
	claims.Role = role
	return claims, nil
}

// checkSignature verifies the HS256 signature over the raw header and
// payload segments without decoding either of them.
func (c *TokenCodec) checkSignature(token string) (Reason, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ReasonMalformed, jwt.ErrTokenMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ReasonMalformed, fmt.Errorf("%w: signature encoding: %v", jwt.ErrTokenMalformed, err)
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return ReasonInvalidSignature, err
	}
	return "", nil
}

func classifyTokenError(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonMalformed
	}
}
