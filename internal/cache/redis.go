package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is a read-through cache shared by every API instance.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Fill calls load and caches its result, unless key was invalidated
	// while load was running.
	Fill(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error)
	Invalidate(ctx context.Context, key string) error
}

var errInvalidated = errors.New("key invalidated during load")

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisCache stores values next to a per-key generation counter. Invalidate
// bumps the generation, and Fill writes under WATCH only if the generation
// it saw before loading is still current.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) valueKey(key string) string { return c.prefix + ":" + key }
func (c *RedisCache) genKey(key string) string   { return c.prefix + ":gen:" + key }

// Redis errors count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.valueKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Fill(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	gen := c.genKey(key)
	before, err := c.generation(ctx, c.client, gen)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache generation read failed")
		return load(ctx)
	}

	val, err := load(ctx)
	if err != nil {
		return nil, err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, gen)
		if err != nil {
			return err
		}
		if current != before {
			return errInvalidated
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.valueKey(key), val, c.ttl)
			return nil
		})
		return err
	}, gen)
	switch {
	case err == nil, errors.Is(err, errInvalidated), errors.Is(err, redis.TxFailedErr):
	default:
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache fill failed")
	}
	return val, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	gen := c.genKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gen)
		// The counter only has to outlive any fill that started before it.
		pipe.Expire(ctx, gen, c.ttl+time.Hour)
		pipe.Del(ctx, c.valueKey(key))
		return nil
	})
	return err
}

func (c *RedisCache) generation(ctx context.Context, cmd getter, key string) (int64, error) {
	n, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
