package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/types"
)

var _ interfaces.InstrumentCache = (*RedisCache)(nil)

// RedisCache keeps instruments under bot:instrument:<LEG> with a TTL so a
// stale contract from a previous expiry is never reused.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to url (redis://...) and pings it.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func instrumentKey(leg types.Leg) string { return "bot:instrument:" + string(leg) }

func (c *RedisCache) Load(ctx context.Context, leg types.Leg) (types.Instrument, error) {
	b, err := c.rdb.Get(ctx, instrumentKey(leg)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Instrument{}, ErrCacheMiss
	}
	if err != nil {
		return types.Instrument{}, fmt.Errorf("redis: get %s: %w", instrumentKey(leg), err)
	}

	var inst types.Instrument
	if err := json.Unmarshal(b, &inst); err != nil {
		return types.Instrument{}, fmt.Errorf("redis: decode %s: %w", instrumentKey(leg), err)
	}
	if inst.IsZero() {
		return types.Instrument{}, ErrCacheMiss
	}
	return inst, nil
}

func (c *RedisCache) Save(ctx context.Context, leg types.Leg, inst types.Instrument) error {
	b, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("redis: marshal instrument: %w", err)
	}
	if err := c.rdb.Set(ctx, instrumentKey(leg), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", instrumentKey(leg), err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
