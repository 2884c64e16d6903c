package auth

import "context"

// UserStore persists accounts.
type UserStore interface {
	// Create inserts u, assigning an id when empty. A taken username or
	// email yields ErrAlreadyExists.
	Create(ctx context.Context, u *User) error
	// FindByIdentifier looks a user up by username or email.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Count(ctx context.Context) (int64, error)
	// Delete removes the user and reports how many rows went away.
	Delete(ctx context.Context, id string) (int64, error)
	// InRegistration runs fn while holding the registration lock, so that
	// counting existing users and inserting a new one is atomic.
	InRegistration(ctx context.Context, fn func(ctx context.Context, users UserStore) error) error
}

// SessionStore holds server-side session state keyed by opaque id.
// Read of an unknown or expired id returns ErrNotFound.
type SessionStore interface {
	Create(ctx context.Context, data SessionData) (string, error)
	Read(ctx context.Context, id string) (SessionData, error)
	// Update replaces the data and restarts the TTL of data.Policy.
	Update(ctx context.Context, id string, data SessionData) error
	SetExpiryPolicy(ctx context.Context, id string, policy ExpiryPolicy) error
	Destroy(ctx context.Context, id string) error
}

// FieldCipher reversibly encrypts single string fields.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}
