package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// RedisLimiter shares fixed windows across processes through redis counters.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	period time.Duration
	logger *logging.Logger
}

// NewRedisLimiter namespaces its keys under prefix (e.g. "rl:chat").
func NewRedisLimiter(client *redis.Client, prefix string, limit int, period time.Duration, logger *logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLimiter{
		redis:  client,
		prefix: prefix,
		limit:  limit,
		period: period,
		logger: logger,
	}
}

// Allow fails open when redis is unreachable.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := l.prefix + ":" + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err, "key", k)
		return true
	}
	if count == 1 {
		if err := l.redis.PExpire(ctx, k, l.period).Err(); err != nil {
			l.logger.Warn("rate limit expiry not set", "error", err, "key", k)
		}
	}
	return count <= int64(l.limit)
}
