package auth

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"keystile.org/internal/fieldcrypt"
)

var testSecret = []byte("test-token-secret")

type fakeSessions struct {
	mu      sync.Mutex
	seq     int
	data    map[string]SessionData
	readErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{data: make(map[string]SessionData)}
}

func (f *fakeSessions) Create(_ context.Context, d SessionData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "sid-" + strconv.Itoa(f.seq)
	f.data[id] = d
	return id, nil
}

func (f *fakeSessions) Read(_ context.Context, id string) (SessionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return SessionData{}, f.readErr
	}
	d, ok := f.data[id]
	if !ok {
		return SessionData{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeSessions) Update(_ context.Context, id string, d SessionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[id]; !ok {
		return ErrNotFound
	}
	f.data[id] = d
	return nil
}

func (f *fakeSessions) SetExpiryPolicy(_ context.Context, id string, p ExpiryPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[id]
	if !ok {
		return ErrNotFound
	}
	d.Policy = p
	f.data[id] = d
	return nil
}

func (f *fakeSessions) Destroy(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[id]; !ok {
		return ErrNotFound
	}
	delete(f.data, id)
	return nil
}

func newTestCipher(t *testing.T) *fieldcrypt.Cipher {
	t.Helper()
	c, err := fieldcrypt.New(bytes.Repeat([]byte{0x42}, fieldcrypt.KeySize))
	if err != nil {
		t.Fatalf("fieldcrypt.New: %v", err)
	}
	return c
}

func newTestCodec(t *testing.T, now func() time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, WithTokenClock(now))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

type testService struct {
	svc      *Service
	users    *MemoryUserStore
	sessions *fakeSessions
	codec    *TokenCodec
	cipher   *fieldcrypt.Cipher
}

func newTestService(t *testing.T) testService {
	t.Helper()
	users := NewMemoryUserStore()
	sessions := newFakeSessions()
	codec := newTestCodec(t, time.Now)
	cipher := newTestCipher(t)
	svc, err := NewService(users, sessions, codec, cipher, WithHasher(NewBcryptHasher(4)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return testService{svc: svc, users: users, sessions: sessions, codec: codec, cipher: cipher}
}
