// Package lease implements the run lease: a time-bounded exclusivity token
// that prevents two concurrent pipeline executions for the same invoice.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the run-lease interface. Acquire returns false when the lease is
// already held and unexpired; Release drops it early so a failed invoice can
// be reprocessed without waiting out the TTL.
type Store interface {
	Acquire(ctx context.Context, invoiceID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, invoiceID uuid.UUID) error
	Close() error
}

// RedisStore implements the lease on Redis via SET NX with expiry, the
// distributed-lock-with-TTL shape.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// NewRedisStore creates a new Redis-backed lease store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ie:lease:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(invoiceID uuid.UUID) string {
	return s.prefix + invoiceID.String()
}

// Acquire takes the lease if it is free.
func (s *RedisStore) Acquire(ctx context.Context, invoiceID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(invoiceID), time.Now().Add(ttl).Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release drops the lease.
func (s *RedisStore) Release(ctx context.Context, invoiceID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(invoiceID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore implements an in-process lease store for development and
// single-node deployments.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[uuid.UUID]time.Time
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[uuid.UUID]time.Time),
		now:    time.Now,
	}
}

// Acquire takes the lease if it is free or its TTL has lapsed.
func (s *MemoryStore) Acquire(ctx context.Context, invoiceID uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, held := s.leases[invoiceID]; held && now.Before(expiry) {
		return false, nil
	}

	s.leases[invoiceID] = now.Add(ttl)
	return true, nil
}

// Release drops the lease.
func (s *MemoryStore) Release(ctx context.Context, invoiceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.leases, invoiceID)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
