package throttle

import (
	"context"
	"sync"
	"time"
)

// Memory keeps attempt timestamps per key in process memory.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	hits   map[string][]time.Time
	now    func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory builds an in-memory limiter. now may be nil.
func NewMemory(policy Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: normalize(policy), hits: make(map[string][]time.Time), now: now}
}

func (m *Memory) Attempt(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.policy.Window)
	live := m.hits[key][:0]
	for _, ts := range m.hits[key] {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= m.policy.Limit {
		m.hits[key] = live
		return Decision{RetryAfter: live[0].Sub(cutoff)}, nil
	}
	live = append(live, now)
	m.hits[key] = live
	return Decision{Allowed: true, Remaining: m.policy.Limit - len(live)}, nil
}

// Prune drops keys with no attempts inside the window.
func (m *Memory) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.policy.Window)
	for key, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}
