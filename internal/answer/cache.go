package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

// Cache stores answers by fingerprint. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// LRUCache is a bounded in-process cache.
type LRUCache struct {
	cache *lru.Cache[string, string]
}

// NewLRUCache creates an in-process cache holding up to size answers.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key, value string) error {
	c.cache.Add(key, value)
	return nil
}

// Len returns the number of cached answers.
func (c *LRUCache) Len() int { return c.cache.Len() }

// RedisClient is the subset of the redis client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares answers across server replicas. Entries expire after
// the configured TTL.
type RedisCache struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache over client.
func NewRedisCache(client RedisClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient connects to the server in cfg and checks it responds.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// TieredCache checks a local cache before a shared one and fills the local
// cache on a shared hit. Shared-cache failures are logged and treated as
// misses.
type TieredCache struct {
	local  Cache
	shared Cache
	logger *zap.Logger
}

// NewTieredCache layers local over shared.
func NewTieredCache(local, shared Cache, logger *zap.Logger) *TieredCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredCache{local: local, shared: shared, logger: logger}
}

func (c *TieredCache) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := c.local.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("shared answer cache unavailable", zap.Error(err))
		return "", false, nil
	}
	if ok {
		_ = c.local.Set(ctx, key, v)
	}
	return v, ok, nil
}

func (c *TieredCache) Set(ctx context.Context, key, value string) error {
	if err := c.local.Set(ctx, key, value); err != nil {
		return err
	}
	if err := c.shared.Set(ctx, key, value); err != nil {
		c.logger.Warn("failed to write shared answer cache", zap.Error(err))
	}
	return nil
}

// NewCache builds the cache described by cfg: an LRU, layered over redis
// when an address is configured. The returned close function releases the
// redis connection.
func NewCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Cache, func() error, error) {
	local, err := NewLRUCache(cfg.Size)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.Addr == "" {
		return local, func() error { return nil }, nil
	}

	client, err := NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	shared := NewRedisCache(client, cfg.Redis.Prefix, cfg.Redis.TTL.Duration())
	return NewTieredCache(local, shared, logger), client.Close, nil
}
