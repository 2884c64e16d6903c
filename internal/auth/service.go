package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"keystile.org/internal/ids"
)

// Service runs the credential flows: registration, login and logout.
type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   *TokenCodec
	cipher   FieldCipher
	hasher   Hasher

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, sessions SessionStore, tokens *TokenCodec, cipher FieldCipher, opts ...ServiceOption) (*Service, error) {
	switch {
	case users == nil:
		return nil, errors.New("auth: user store is required")
	case sessions == nil:
		return nil, errors.New("auth: session store is required")
	case tokens == nil:
		return nil, errors.New("auth: token codec is required")
	case cipher == nil:
		return nil, errors.New("auth: field cipher is required")
	}
	svc := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		cipher:   cipher,
		hasher:   NewBcryptHasher(0),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Register creates an account. The very first account becomes admin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	// хешируем до блокировки, bcrypt медленный
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	err = s.users.InRegistration(ctx, func(ctx context.Context, users UserStore) error {
		n, err := users.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		u.Role = bootstrapRole(n)
		return users.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// LoginRequest carries credentials plus the caller's current session, if any.
type LoginRequest struct {
	Identifier string
	Password   string
	Persistent bool
	// SessionID is the verified id from the session cookie, "" when absent.
	SessionID string
}

// LoginResult describes what the caller should hand back to the client.
// Persistent logins set SessionID to a freshly created session; token logins
// set Token and ExpiresAt, and SessionID only when an existing session was
// downgraded to ephemeral.
type LoginResult struct {
	User       *User
	Persistent bool
	SessionID  string
	Token      string
	ExpiresAt  time.Time
}

// Login verifies credentials and issues either a long-lived session or a
// bearer token. Unknown identifier and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: identifier and password are required", ErrValidation)
	}
	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.burnHash(req.Password)
			return LoginResult{}, rejectf(ReasonInvalidCredentials, nil)
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := s.hasher.Verify(user.PasswordHash, req.Password); err != nil {
		return LoginResult{}, rejectf(ReasonInvalidCredentials, nil)
	}
	role, err := ParseRole(string(user.Role))
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: stored role of user %s: %v", user.ID, err)
	}
	user.Role = role

	if req.Persistent {
		return s.loginWithSession(ctx, user, req.SessionID)
	}
	return s.loginWithToken(ctx, user, req.SessionID)
}

func (s *Service) loginWithSession(ctx context.Context, user *User, oldID string) (LoginResult, error) {
	var secret string
	if oldID != "" {
		data, err := s.sessions.Read(ctx, oldID)
		switch {
		case err == nil:
			secret = data.ForgerySecret
		case errors.Is(err, ErrNotFound):
		default:
			return LoginResult{}, fmt.Errorf("read session: %w", err)
		}
		// новая сессия вместо старой, защита от фиксации
		if err := s.sessions.Destroy(ctx, oldID); err != nil && !errors.Is(err, ErrNotFound) {
			return LoginResult{}, fmt.Errorf("destroy session: %w", err)
		}
	}
	id, err := s.sessions.Create(ctx, SessionData{
		UserID:        user.ID,
		Role:          user.Role,
		Authenticated: true,
		ForgerySecret: secret,
		Policy:        Extended,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{User: user, Persistent: true, SessionID: id}, nil
}

func (s *Service) loginWithToken(ctx context.Context, user *User, sessionID string) (LoginResult, error) {
	encEmail, err := s.cipher.Encrypt(user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("encrypt email: %w", err)
	}
	token, exp, err := s.tokens.Sign(user.ID, user.Role, encEmail)
	if err != nil {
		return LoginResult{}, err
	}
	res := LoginResult{User: user, Token: token, ExpiresAt: exp}
	if sessionID == "" {
		return res, nil
	}
	data, err := s.sessions.Read(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return res, nil
	case err != nil:
		return LoginResult{}, fmt.Errorf("read session: %w", err)
	}
	// токен единственный носитель личности, сессия остаётся анонимной
	data.UserID = ""
	data.Role = ""
	data.Authenticated = false
	data.Policy = Ephemeral
	if err := s.sessions.Update(ctx, sessionID, data); err != nil {
		return LoginResult{}, fmt.Errorf("update session: %w", err)
	}
	if err := s.sessions.SetExpiryPolicy(ctx, sessionID, Ephemeral); err != nil {
		return LoginResult{}, fmt.Errorf("session expiry: %w", err)
	}
	res.SessionID = sessionID
	return res, nil
}

// Logout destroys the session. Missing or already-gone sessions are fine.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Profile loads the stored account behind an identity.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotFound
	}
	return s.users.FindByID(ctx, userID)
}

// DeleteUser removes an account. Deleting an unknown id yields ErrNotFound.
func (s *Service) DeleteUser(ctx context.Context, userID string) (int64, error) {
	if !ids.Valid(userID) {
		return 0, ErrNotFound
	}
	n, err := s.users.Delete(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// burnHash spends roughly one verification worth of time so that unknown
// identifiers are not faster to reject than wrong passwords.
func (s *Service) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("keystile-timing-equaliser")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(s.dummyHash, password)
	}
}
