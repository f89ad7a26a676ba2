package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tmengine/internal/domain"
)

// Redis is a Redis-backed exact-match cache for deployments where the engine
// process restarts frequently. Entries are stored as JSON; any Redis error
// degrades to a cache miss, never to a hard failure.
type Redis struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// RedisConfig holds connection settings for the Redis cache.
type RedisConfig struct {
	URL       string // e.g. "redis://localhost:6379"
	TTL       time.Duration
	KeyPrefix string // default "tmengine:"
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return NewRedisFromClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client, mainly for tests.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "tmengine:"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: client, ttl: ttl, keyPrefix: keyPrefix}
}

func (c *Redis) key(hash, targetLang string) string {
	return c.keyPrefix + hash + ":" + targetLang
}

func (c *Redis) Get(hash, targetLang string) (*domain.TmEntry, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.key(hash, targetLang)).Result()
	if err != nil {
		return nil, false
	}
	var e domain.TmEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		// Unreadable payload; drop it and report a miss.
		c.client.Del(ctx, c.key(hash, targetLang))
		return nil, false
	}
	return &e, true
}

func (c *Redis) Put(hash, targetLang string, e *domain.TmEntry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.client.Set(context.Background(), c.key(hash, targetLang), raw, c.ttl).Err()
}

func (c *Redis) Invalidate(hash, targetLang string) {
	_ = c.client.Del(context.Background(), c.key(hash, targetLang)).Err()
}

func (c *Redis) Clear() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}

func (c *Redis) Close() error {
	return c.client.Close()
}
