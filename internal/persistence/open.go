package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/config"
)

// Opened is a ready backend plus the connections behind it.
type Opened struct {
	Backend  Backend
	Postgres *Postgres
	Redis    *Redis
}

// Close releases every connection.
func (o *Opened) Close() {
	if o == nil {
		return
	}
	o.Postgres.Close()
	o.Redis.Close()
}

// Open builds the backend for the configured storage mode:
//
//	memory   process memory, gone on restart
//	session  per-session keys with a sliding TTL, on Redis when reachable
//	local    durable storage on Redis or Postgres
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Opened, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		return &Opened{Backend: NewMemoryBackend()}, nil

	case config.StorageModeSession:
		r := NewRedis(cfg.Redis, logger)
		if err := r.Ping(ctx); err != nil {
			logger.Warn("session storage falling back to process memory", zap.Error(err))
			r.Close()
			return &Opened{Backend: NewSessionBackend(NewExpiringMemoryBackend(cfg.Storage.SessionTTL()))}, nil
		}
		inner := NewRedisBackend(r.Client, cfg.Storage.KeyPrefix, cfg.Storage.SessionTTL())
		return &Opened{Backend: NewSessionBackend(inner), Redis: r}, nil

	case config.StorageModeLocal:
		if cfg.Storage.DurableDriver == config.DriverPostgres {
			pg, err := NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return nil, fmt.Errorf("connect postgres: %w", err)
			}
			if cfg.Postgres.RunMigrations {
				if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
					pg.Close()
					return nil, fmt.Errorf("run migrations: %w", err)
				}
			}
			return &Opened{Backend: NewPostgresBackend(pg.PoolHandle()), Postgres: pg}, nil
		}
		r := NewRedis(cfg.Redis, logger)
		return &Opened{Backend: NewRedisBackend(r.Client, cfg.Storage.KeyPrefix, 0), Redis: r}, nil
	}
	return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
}
