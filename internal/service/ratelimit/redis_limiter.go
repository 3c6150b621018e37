package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures RedisLimiter.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis connection and window settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Prefix   string
	Limit    int
	Window   time.Duration
}

// WithRedisAddr sets the Redis host and port.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
		c.Port = port
	}
}

// WithRedisAuth sets password and database index.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(n int) RedisOption {
	return func(c *RedisConfig) { c.PoolSize = n }
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// WithWindow sets the number of requests allowed per window.
func WithWindow(limit int, window time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.Limit = limit
		c.Window = window
	}
}

// RedisLimiter is a fixed-window counter shared by every proxy replica.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to Redis and verifies it with a ping.
func NewRedisLimiter(opts ...RedisOption) (*RedisLimiter, error) {
	cfg := &RedisConfig{
		Host:     "localhost",
		Port:     6379,
		PoolSize: 10,
		Prefix:   "finrelay",
		Limit:    300,
		Window:   time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Limit < 1 || cfg.Window <= 0 {
		return nil, fmt.Errorf("redis limiter: limit must be >= 1 and window > 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLimiter{
		client: client,
		prefix: cfg.Prefix,
		limit:  int64(cfg.Limit),
		window: cfg.Window,
		now:    time.Now,
	}, nil
}

// Allow counts the request in the current window and reports whether it is within limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := windowKey(l.prefix, key, l.now(), l.window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func windowKey(prefix, key string, now time.Time, window time.Duration) string {
	slot := now.UnixNano() / int64(window)
	if prefix == "" {
		return fmt.Sprintf("rl:%s:%d", key, slot)
	}
	return fmt.Sprintf("%s:rl:%s:%d", prefix, key, slot)
}
