package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"keystile.org/internal/ids"
)

// MemoryUserStore keeps accounts in process memory. It backs the service
// when no database is configured and in tests.
type MemoryUserStore struct {
	regMu sync.Mutex

	mu    sync.RWMutex
	users map[string]*User
	now   func() time.Time
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User), now: time.Now}
}

func (m *MemoryUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryUserStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var byEmail *User
	for _, u := range m.users {
		if u.Username == identifier {
			cp := *u
			return &cp, nil
		}
		if byEmail == nil && strings.EqualFold(u.Email, identifier) {
			byEmail = u
		}
	}
	if byEmail == nil {
		return nil, ErrNotFound
	}
	cp := *byEmail
	return &cp, nil
}

func (m *MemoryUserStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MemoryUserStore) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

func (m *MemoryUserStore) InRegistration(ctx context.Context, fn func(ctx context.Context, users UserStore) error) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	return fn(ctx, m)
}
