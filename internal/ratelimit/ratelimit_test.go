package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-crm/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, period time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(limit, period, logging.Discard())
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_EleventhCallRejected(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"), "call %d", i+1)
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"))

	clock.Advance(59 * time.Second)
	assert.False(t, l.Allow(ctx, "1.2.3.4"))

	clock.Advance(time.Second)
	assert.True(t, l.Allow(ctx, "1.2.3.4"))
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, "ip:1.1.1.1"))
	}
	assert.False(t, l.Allow(ctx, "ip:1.1.1.1"))
	assert.True(t, l.Allow(ctx, "email:jane@example.com"))
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	l.Allow(ctx, "a")
	clock.Advance(30 * time.Second)
	l.Allow(ctx, "b")
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.size())
}

func TestMemoryLimiter_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	l, _ := newTestLimiter(10, time.Minute)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ctx, "shared") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), allowed)
}

func TestMemoryLimiter_RunStopsOnCancel(t *testing.T) {
	l, _ := newTestLimiter(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLimiter(client, "rl:submit", 3, time.Minute, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "ip:10.0.0.1"), "call %d", i+1)
	}
	assert.False(t, l.Allow(ctx, "ip:10.0.0.1"))
	assert.True(t, mr.Exists("rl:submit:ip:10.0.0.1"))

	mr.FastForward(time.Minute)
	assert.True(t, l.Allow(ctx, "ip:10.0.0.1"))
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLimiter(client, "rl:chat", 1, time.Minute, logging.Discard())
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(context.Background(), fmt.Sprintf("k%d", i)))
	}
}
