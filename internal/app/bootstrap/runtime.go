package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildPostgres opens the pgx pool used by the lead, message and event stores
// and a database/sql handle on the same database for the user store. Both are
// nil when DATABASE_URL is unset.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("postgres connected")
	return pool, db, nil
}

// BuildLimiter returns a redis-backed limiter when a client is available so
// that counts are shared across instances, else an in-process one.
func BuildLimiter(redisClient *redis.Client, name string, limit int, period time.Duration, logger *logging.Logger) ratelimit.Limiter {
	if redisClient != nil {
		return ratelimit.NewRedisLimiter(redisClient, "rl:"+name, limit, period, logger)
	}
	return ratelimit.NewMemoryLimiter(limit, period, logger)
}

type sweeper interface {
	Run(ctx context.Context, every time.Duration)
}

// StartSweeper periodically drops expired windows from in-process limiters
// until ctx is done. Redis limiters expire keys on their own and are skipped.
func StartSweeper(ctx context.Context, interval time.Duration, logger *logging.Logger, limiters ...ratelimit.Limiter) {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		return
	}
	started := 0
	for _, l := range limiters {
		if s, ok := l.(sweeper); ok {
			go s.Run(ctx, interval)
			started++
		}
	}
	if started > 0 {
		logger.Debug("rate limit sweepers started", "count", started, "interval", interval)
	}
}
