package auth

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("auth: invalid input")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrForgeryCheckFailed = errors.New("auth: forgery check failed")
	ErrRateLimited        = errors.New("auth: rate limit exceeded")
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
)

// Reason classifies an authentication rejection. It is recorded for operators
// and never sent to the client.
type Reason string

const (
	ReasonMissingCredential  Reason = "missing-credential"
	ReasonExpired            Reason = "expired"
	ReasonInvalidSignature   Reason = "invalid-signature"
	ReasonMalformed          Reason = "malformed"
	ReasonCorruptedClaim     Reason = "corrupted-claim"
	ReasonInvalidCredentials Reason = "invalid-credentials"
	ReasonNoIdentity         Reason = "no-identity"
)

// AuthError is an authentication failure carrying its diagnostic reason.
// errors.Is(err, ErrUnauthenticated) holds for every AuthError.
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: unauthenticated (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: unauthenticated (%s)", e.Reason)
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnauthenticated, e.Err}
	}
	return []error{ErrUnauthenticated}
}

func rejectf(reason Reason, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// ReasonOf extracts the rejection reason, or "" when err is not an AuthError.
func ReasonOf(err error) Reason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
