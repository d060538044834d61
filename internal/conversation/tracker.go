package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmissionTracker makes chat submissions persist once per key.
type SubmissionTracker interface {
	// Claim reports whether key was unclaimed and claims it.
	Claim(ctx context.Context, key string) (bool, error)
	// Release frees key so a later replay may persist again.
	Release(ctx context.Context, key string) error
}

// MemoryTracker keeps claims in process for ttl.
type MemoryTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{ttl: ttl, claims: make(map[string]time.Time), now: time.Now}
}

func (t *MemoryTracker) Claim(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, expires := range t.claims {
		if !now.Before(expires) {
			delete(t.claims, k)
		}
	}
	if _, ok := t.claims[key]; ok {
		return false, nil
	}
	t.claims[key] = now.Add(t.ttl)
	return true, nil
}

func (t *MemoryTracker) Release(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.claims, key)
	t.mu.Unlock()
	return nil
}

// RedisTracker shares claims across instances with SETNX.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "chat:submitted:"
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisTracker) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: claim submission: %w", err)
	}
	return ok, nil
}

func (t *RedisTracker) Release(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.prefix+key).Err(); err != nil {
		return fmt.Errorf("conversation: release submission: %w", err)
	}
	return nil
}
