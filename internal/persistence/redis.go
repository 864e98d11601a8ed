package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// RedisBackend stores values as plain Redis strings. A positive TTL is
// refreshed on every write, which gives session-mode data a sliding expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend builds a backend; prefix namespaces keys per deployment.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(k string) string { return b.prefix + k }

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.client == nil {
		return "", false, ErrNotConfigured
	}
	val, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if b.ttl > 0 {
		_ = b.client.Expire(ctx, b.key(key), b.ttl).Err()
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	if b.client == nil {
		return ErrNotConfigured
	}
	return b.client.Set(ctx, b.key(key), value, b.ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if b.client == nil {
		return ErrNotConfigured
	}
	return b.client.Del(ctx, b.key(key)).Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	if b.client == nil {
		return ErrNotConfigured
	}
	return b.client.Ping(ctx).Err()
}
