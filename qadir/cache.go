package qadir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

const (
	cacheKeyEvents       = "events"
	cacheKeyItems        = "items"
	cacheKeyHangar       = "hangar"
	cacheKeyHangarEmbeds = "embeds"
	cacheKeyActivity     = "activity"
	cacheKeyLock         = "lock"
	cacheKeyCooldown     = "cooldown"
)

var ErrCacheMiss = errors.New("cache miss")

// popHashFieldScript returns a hash field's value and deletes the field,
// in one step
var popHashFieldScript = redis.NewScript(
	`local v = redis.call("HGET", KEYS[1], ARGV[1]) if v then redis.call("HDEL", KEYS[1], ARGV[1]) end return v`,
)

// Cache wraps a redis client. All keys are namespaced with prefix.
type Cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
	}
}

// NewCache connects to redis as configured by cfg. The connection is
// lazy, use Ping to verify it.
func NewCache(cfg *RedisConfig, handler slog.Handler) (*Cache, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return newCacheWithClient(redis.NewClient(opts), cfg.KeyPrefix, handler), nil
}

func newCacheWithClient(client *redis.Client, prefix string, handler slog.Handler) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		logger: slog.New(handler).With(loggerNameKey, "cache"),
	}
}

// Key joins parts with ':' under the cache's prefix,
// ex: Key("events", "123") -> "qadir:events:123"
func (c *Cache) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// GetJSON unmarshals the value at key into v. ErrCacheMiss is returned
// if the key doesn't exist.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, v); err != nil {
		c.logger.WarnContext(ctx, "discarding invalid cache entry", "key", key, tint.Err(err))
		_ = c.client.Del(ctx, key).Err()
		c.stats.misses.Add(1)
		return ErrCacheMiss
	}
	c.stats.hits.Add(1)
	return nil
}

// SetJSON stores v as JSON at key. A ttl of 0 means no expiry.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Lock sets key if it doesn't already exist, expiring after ttl.
// It returns false when the key is already held.
func (c *Cache) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, 1, ttl).Result()
}

// HSetNXJSON sets field of the hash at key to the JSON form of v, only if
// the field doesn't exist. It returns false when the field was already set.
func (c *Cache) HSetNXJSON(ctx context.Context, key string, field string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return c.client.HSetNX(ctx, key, field, data).Result()
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// PopHashField atomically reads and deletes field from the hash at key,
// unmarshalling the value into v. ErrCacheMiss is returned if the field
// doesn't exist.
func (c *Cache) PopHashField(ctx context.Context, key string, field string, v any) error {
	data, err := popHashFieldScript.Run(ctx, c.client, []string{key}, field).Text()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

// Cooldown starts a cooldown at key if none is running. If one is
// already running, ok is false and retryAfter is its remaining time.
func (c *Cache) Cooldown(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (retryAfter time.Duration, ok bool, err error) {
	set, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return 0, false, err
	}
	if set {
		return 0, true, nil
	}
	remaining, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false, nil
}

// Items returns the loot item catalogue
func (c *Cache) Items(ctx context.Context) ([]LootItem, error) {
	var items []LootItem
	err := c.GetJSON(ctx, c.Key(cacheKeyEvents, cacheKeyItems), &items)
	if errors.Is(err, ErrCacheMiss) {
		return []LootItem{}, nil
	}
	return items, err
}

// SetItems validates and replaces the loot item catalogue
func (c *Cache) SetItems(ctx context.Context, items []LootItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if err := structValidator.Struct(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("item %d: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return c.SetJSON(ctx, c.Key(cacheKeyEvents, cacheKeyItems), items, 0)
}

// Stats returns the number of GetJSON hits and misses
func (c *Cache) Stats() (hits int64, misses int64) {
	return c.stats.hits.Load(), c.stats.misses.Load()
}
