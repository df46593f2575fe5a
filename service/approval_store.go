package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voting-gateway/models"
)

// ApprovalStore holds the OTP challenge state per hashed destination.
// Implementations must be safe for concurrent use. Get returns nil and no
// error when nothing is stored or the entry has expired.
//
// TakeIf removes the entry only if it exists and cond accepts it, and
// reports whether it did. Of two concurrent calls at most one succeeds.
type ApprovalStore interface {
	Get(ctx context.Context, key string) (*models.OTPChallenge, error)
	Put(ctx context.Context, key string, challenge models.OTPChallenge, ttl time.Duration) error
	TakeIf(ctx context.Context, key string, cond func(models.OTPChallenge) bool) (bool, error)
}

// ------------------------------------------------------------------------------

type MemoryApprovalStore struct {
	mu      sync.Mutex
	entries map[string]memoryApproval
	now     func() time.Time
}

type memoryApproval struct {
	challenge models.OTPChallenge
	expiresAt time.Time
}

func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{
		entries: make(map[string]memoryApproval),
		now:     time.Now,
	}
}

func (s *MemoryApprovalStore) Get(_ context.Context, key string) (*models.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	challenge := entry.challenge
	return &challenge, nil
}

func (s *MemoryApprovalStore) Put(_ context.Context, key string, challenge models.OTPChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, k)
		}
	}

	s.entries[key] = memoryApproval{challenge: challenge, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryApprovalStore) TakeIf(_ context.Context, key string, cond func(models.OTPChallenge) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) || !cond(entry.challenge) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// ------------------------------------------------------------------------------

// RedisApprovalStore shares challenge state between gateway instances.
type RedisApprovalStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisApprovalStore(client *redis.Client, namespace string) *RedisApprovalStore {
	return &RedisApprovalStore{client: client, namespace: namespace}
}

// NewRedisClient connects to the server described by a redis:// URL.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func createKey(namespace, key string) string {
	return fmt.Sprintf("%s:otp:%s", namespace, key)
}

func (s *RedisApprovalStore) Get(ctx context.Context, key string) (*models.OTPChallenge, error) {
	data, err := s.client.Get(ctx, createKey(s.namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge: %w", err)
	}

	var challenge models.OTPChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &challenge, nil
}

func (s *RedisApprovalStore) Put(ctx context.Context, key string, challenge models.OTPChallenge, ttl time.Duration) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	return s.client.Set(ctx, createKey(s.namespace, key), data, ttl).Err()
}

// TakeIf runs as an optimistic transaction on the key. A concurrent write
// aborts it and the caller sees false.
func (s *RedisApprovalStore) TakeIf(ctx context.Context, key string, cond func(models.OTPChallenge) bool) (bool, error) {
	redisKey := createKey(s.namespace, key)
	taken := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var challenge models.OTPChallenge
		if err := json.Unmarshal(data, &challenge); err != nil {
			return fmt.Errorf("failed to decode challenge: %w", err)
		}
		if !cond(challenge) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		if err != nil {
			return err
		}
		taken = true
		return nil
	}, redisKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to take challenge: %w", err)
	}
	return taken, nil
}
