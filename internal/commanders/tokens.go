package commanders

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetupTokenTTL is how long a password-setup link stays valid.
const SetupTokenTTL = time.Hour

// TokenStore keeps password-setup token digests. Raw tokens are never stored.
type TokenStore interface {
	Put(ctx context.Context, digest, commanderID string, ttl time.Duration) error
	// Take returns the commander for digest and its remaining lifetime and
	// deletes it, or ErrTokenInvalid.
	Take(ctx context.Context, digest string) (string, time.Duration, error)
}

// NewSetupToken returns a random hex token and its storage digest.
func NewSetupToken() (token, digest string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, TokenDigest(token), nil
}

func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RedisTokenStore stores digests with SET EX and consumes them with
// GET+PTTL+DEL in one MULTI, so a token can be used once even across API
// replicas.
type RedisTokenStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisTokenStore(rdb *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "portal:setup-token:"
	}
	return &RedisTokenStore{rdb: rdb, prefix: prefix}
}

func (s *RedisTokenStore) Put(ctx context.Context, digest, commanderID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+digest, commanderID, ttl).Err()
}

func (s *RedisTokenStore) Take(ctx context.Context, digest string) (string, time.Duration, error) {
	key := s.prefix + digest
	var (
		get *redis.StringCmd
		ttl *redis.DurationCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, key)
		ttl = p.PTTL(ctx, key)
		p.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, err
	}
	id, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, ErrTokenInvalid
	}
	if err != nil {
		return "", 0, err
	}
	return id, ttl.Val(), nil
}

// MemoryTokenStore is a TokenStore for tests and single-process runs.
type MemoryTokenStore struct {
	mu     sync.Mutex
	clock  func() time.Time
	tokens map[string]memoryToken
}

type memoryToken struct {
	commanderID string
	expiresAt   time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{clock: time.Now, tokens: map[string]memoryToken{}}
}

// WithClock overrides the time source. Used by tests.
func (s *MemoryTokenStore) WithClock(clock func() time.Time) *MemoryTokenStore {
	s.clock = clock
	return s
}

func (s *MemoryTokenStore) Put(ctx context.Context, digest, commanderID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[digest] = memoryToken{commanderID: commanderID, expiresAt: s.clock().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Take(ctx context.Context, digest string) (string, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[digest]
	if !ok {
		return "", 0, ErrTokenInvalid
	}
	delete(s.tokens, digest)
	remaining := t.expiresAt.Sub(s.clock())
	if remaining <= 0 {
		return "", 0, ErrTokenInvalid
	}
	return t.commanderID, remaining, nil
}
