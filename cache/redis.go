package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/neuralnotes/neuralnotes/logger"
)

// RedisConfig configures the Redis-backed artifact cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces cache keys, separated by a colon.
	KeyPrefix string `mapstructure:"key_prefix"`
	// DefaultTTL applies when Put is called with ttl 0.
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ApplyDefaults fills zero fields with sensible values.
func (c *RedisConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "neuralnotes:artifact"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// RedisCache is an ArtifactCache backed by Redis.
type RedisCache struct {
	rdb    *goredis.Client
	cfg    RedisConfig
	log    *logger.Logger
	closed bool
	mu     sync.Mutex
}

// NewRedisCache creates the cache client. The connection is pooled and lazy;
// use Ping to verify reachability at startup.
func NewRedisCache(cfg RedisConfig, log *logger.Logger) *RedisCache {
	cfg.ApplyDefaults()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	log = log.WithComponent("cache")
	log.Info("redis cache client created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	))
	return &RedisCache{rdb: rdb, cfg: cfg, log: log}
}

func (c *RedisCache) fullKey(stage, inputChecksum string) string {
	return c.cfg.KeyPrefix + ":" + Key(stage, inputChecksum)
}

// Get returns the cached payload, or ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, stage, inputChecksum string) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, c.fullKey(stage, inputChecksum)).Bytes()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", Key(stage, inputChecksum), err)
	}
	return raw, true, nil
}

// Put stores the payload, applying the configured default ttl when ttl is 0.
func (c *RedisCache) Put(ctx context.Context, stage, inputChecksum string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if err := c.rdb.Set(ctx, c.fullKey(stage, inputChecksum), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache put %s: %w", Key(stage, inputChecksum), err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// Close closes the connection pool. Safe to call more than once.
func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}

var _ ArtifactCache = (*RedisCache)(nil)
