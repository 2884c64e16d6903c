package session

import (
	"context"
	"sync"
	"time"

	"keystile.org/internal/auth"
)

type memoryEntry struct {
	data    auth.SessionData
	expires time.Time
}

// MemoryStore is an in-process session store for single-node runs and tests.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]memoryEntry
	ephemeralTTL time.Duration
	now          func() time.Time
}

var _ auth.SessionStore = (*MemoryStore)(nil)

// MemoryOption configures MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithEphemeralTTL overrides the lifetime of ephemeral sessions.
func WithEphemeralTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if ttl > 0 {
			m.ephemeralTTL = ttl
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries:      make(map[string]memoryEntry),
		ephemeralTTL: DefaultEphemeralTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Create(_ context.Context, data auth.SessionData) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{data: data, expires: m.now().Add(ttlFor(data.Policy, m.ephemeralTTL))}
	return id, nil
}

// lookup returns a live entry; expired ones are dropped. Caller holds mu.
func (m *MemoryStore) lookup(id string) (memoryEntry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Read(_ context.Context, id string) (auth.SessionData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(id)
	if !ok {
		return auth.SessionData{}, auth.ErrNotFound
	}
	return e.data, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, data auth.SessionData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(id); !ok {
		return auth.ErrNotFound
	}
	m.entries[id] = memoryEntry{data: data, expires: m.now().Add(ttlFor(data.Policy, m.ephemeralTTL))}
	return nil
}

func (m *MemoryStore) SetExpiryPolicy(_ context.Context, id string, policy auth.ExpiryPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(id)
	if !ok {
		return auth.ErrNotFound
	}
	e.data.Policy = policy
	e.expires = m.now().Add(ttlFor(policy, m.ephemeralTTL))
	m.entries[id] = e
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(id); !ok {
		return auth.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}
