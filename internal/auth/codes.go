package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Challenge is a pending one-time code for a phone number. Only the code
// hash is stored.
type Challenge struct {
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CodeStore holds pending challenges and revoked token ids.
type CodeStore interface {
	Put(ctx context.Context, requestID string, c Challenge, ttl time.Duration) error
	// Get returns ErrUnknownRequest for a missing or expired challenge.
	Get(ctx context.Context, requestID string) (*Challenge, error)
	// Attempt counts one verification attempt and returns the new count.
	Attempt(ctx context.Context, requestID string) (int, error)
	// Consume deletes the challenge. It reports false when another caller
	// consumed it first.
	Consume(ctx context.Context, requestID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisCodeStore keeps challenges in Redis with native expiry.
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCodeStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisCodeStore(client *redis.Client, prefix string) *RedisCodeStore {
	if prefix == "" {
		prefix = "kisan"
	}
	return &RedisCodeStore{client: client, prefix: prefix}
}

// DialRedis connects and pings a Redis server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisCodeStore) challengeKey(id string) string { return s.prefix + ":otp:" + id }
func (s *RedisCodeStore) attemptsKey(id string) string { return s.prefix + ":otp:" + id + ":attempts" }
func (s *RedisCodeStore) revokedKey(id string) string { return s.prefix + ":revoked:" + id }

func (s *RedisCodeStore) Put(ctx context.Context, requestID string, c Challenge, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.challengeKey(requestID), data, ttl)
	pipe.Set(ctx, s.attemptsKey(requestID), 0, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Get(ctx context.Context, requestID string) (*Challenge, error) {
	data, err := s.client.Get(ctx, s.challengeKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUnknownRequest
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &c, nil
}

func (s *RedisCodeStore) Attempt(ctx context.Context, requestID string) (int, error) {
	key := s.attemptsKey(requestID)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempt: %w", err)
	}
	// A counter without expiry was created by INCR after the challenge
	// expired.
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempt: %w", err)
	}
	if ttl < 0 {
		s.client.Del(ctx, key)
		return 0, ErrUnknownRequest
	}
	return int(n), nil
}

func (s *RedisCodeStore) Consume(ctx context.Context, requestID string) (bool, error) {
	n, err := s.client.Del(ctx, s.challengeKey(requestID), s.attemptsKey(requestID)).Result()
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return n > 0, nil
}

func (s *RedisCodeStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryCodeStore is the in-process CodeStore used when no Redis address is
// configured.
type MemoryCodeStore struct {
	mu         sync.Mutex
	challenges map[string]*memChallenge
	revoked    map[string]time.Time
	now        func() time.Time
}

type memChallenge struct {
	c        Challenge
	attempts int
	expires  time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{
		challenges: make(map[string]*memChallenge),
		revoked:    make(map[string]time.Time),
		now:        time.Now,
	}
}

// live returns the challenge when it exists and has not expired. Callers hold mu.
func (s *MemoryCodeStore) live(id string) (*memChallenge, bool) {
	mc, ok := s.challenges[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(mc.expires) {
		delete(s.challenges, id)
		return nil, false
	}
	return mc, true
}

func (s *MemoryCodeStore) Put(_ context.Context, requestID string, c Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[requestID] = &memChallenge{c: c, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, requestID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.live(requestID)
	if !ok {
		return nil, ErrUnknownRequest
	}
	c := mc.c
	return &c, nil
}

func (s *MemoryCodeStore) Attempt(_ context.Context, requestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.live(requestID)
	if !ok {
		return 0, ErrUnknownRequest
	}
	mc.attempts++
	return mc.attempts, nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(requestID)
	delete(s.challenges, requestID)
	return ok, nil
}

func (s *MemoryCodeStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = s.now().Add(ttl)
	return nil
}

func (s *MemoryCodeStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Sweep drops expired entries.
func (s *MemoryCodeStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, mc := range s.challenges {
		if !now.Before(mc.expires) {
			delete(s.challenges, id)
		}
	}
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
		}
	}
}
