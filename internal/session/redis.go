package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"keystile.org/internal/auth"
)

const (
	fieldUserID  = "uid"
	fieldRole    = "role"
	fieldAuth    = "auth"
	fieldForgery = "fs"
	fieldPolicy  = "policy"
)

// обновляем только существующую сессию, иначе HSET создаст ключ без TTL
var updateSessionLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'uid', ARGV[1], 'role', ARGV[2], 'auth', ARGV[3], 'fs', ARGV[4], 'policy', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return 1
`)

var setPolicyLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'policy', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisStore keeps each session as a hash with a TTL matching its policy.
type RedisStore struct {
	redis        redis.UniversalClient
	prefix       string
	ephemeralTTL time.Duration
}

var _ auth.SessionStore = (*RedisStore)(nil)

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisEphemeralTTL overrides the lifetime of ephemeral sessions.
func WithRedisEphemeralTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ephemeralTTL = ttl
		}
	}
}

// NewRedisStore creates a session store backed by the given Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{redis: client, prefix: "keystile:sess:", ephemeralTTL: DefaultEphemeralTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Create(ctx context.Context, data auth.SessionData) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	key := s.key(id)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, pairs(encode(data))...)
		pipe.Expire(ctx, key, ttlFor(data.Policy, s.ephemeralTTL))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Read(ctx context.Context, id string) (auth.SessionData, error) {
	if id == "" {
		return auth.SessionData{}, auth.ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return auth.SessionData{}, fmt.Errorf("session: read: %w", err)
	}
	if len(fields) == 0 {
		return auth.SessionData{}, auth.ErrNotFound
	}
	return decode(fields), nil
}

func (s *RedisStore) Update(ctx context.Context, id string, data auth.SessionData) error {
	v := encode(data)
	ttl := ttlFor(data.Policy, s.ephemeralTTL)
	ok, err := updateSessionLua.Run(ctx, s.redis, []string{s.key(id)},
		v[fieldUserID], v[fieldRole], v[fieldAuth], v[fieldForgery], v[fieldPolicy], ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if ok == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RedisStore) SetExpiryPolicy(ctx context.Context, id string, policy auth.ExpiryPolicy) error {
	ttl := ttlFor(policy, s.ephemeralTTL)
	ok, err := setPolicyLua.Run(ctx, s.redis, []string{s.key(id)}, policy.String(), ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("session: set policy: %w", err)
	}
	if ok == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func encode(d auth.SessionData) map[string]string {
	return map[string]string{
		fieldUserID:  d.UserID,
		fieldRole:    string(d.Role),
		fieldAuth:    strconv.FormatBool(d.Authenticated),
		fieldForgery: d.ForgerySecret,
		fieldPolicy:  d.Policy.String(),
	}
}

func pairs(m map[string]string) []any {
	out := make([]any, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

func decode(fields map[string]string) auth.SessionData {
	authenticated, _ := strconv.ParseBool(fields[fieldAuth])
	policy := auth.Ephemeral
	if fields[fieldPolicy] == auth.Extended.String() {
		policy = auth.Extended
	}
	return auth.SessionData{
		UserID:        fields[fieldUserID],
		Role:          auth.Role(fields[fieldRole]),
		Authenticated: authenticated,
		ForgerySecret: fields[fieldForgery],
		Policy:        policy,
	}
}
