// Package app wires configuration into a ready Parser: the MySQL driver,
// the configured cache backend and the Gateway in front of it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/cache/memory"
	"github.com/koustreak/dbparser/internal/cache/minio"
	"github.com/koustreak/dbparser/internal/cache/postgres"
	"github.com/koustreak/dbparser/internal/cache/redis"
	"github.com/koustreak/dbparser/internal/config"
	"github.com/koustreak/dbparser/internal/database"
	"github.com/koustreak/dbparser/internal/database/mysql"
	"github.com/koustreak/dbparser/internal/errs"
	"github.com/koustreak/dbparser/internal/logger"
	"github.com/koustreak/dbparser/internal/schema"
	goredis "github.com/redis/go-redis/v9"
)

// App owns every long-lived resource. Close releases them in reverse
// order of acquisition.
type App struct {
	Parser  *schema.Parser
	Gateway *cache.Gateway
	Log     *logger.Logger

	closers []func()
}

// Open connects to MySQL and the cache backend named in cfg.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log}

	db, err := mysql.New(ctx, &database.Config{
		Driver:          database.DriverMySQL,
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	backend, err := a.openBackend(ctx, &cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}

	a.Gateway = cache.New(backend, &cache.Config{
		LockTTL:        cfg.Cache.LockTTL,
		ComputeTimeout: cfg.Cache.ComputeTimeout,
		Logger:         log,
	})
	a.Parser = schema.NewParser(
		schema.NewMySQLIntrospector(db, cfg.Database.QueryTimeout),
		a.Gateway,
		&schema.Config{
			Prefix:   cfg.Cache.Prefix,
			ListTTL:  cfg.Cache.ListTTL,
			TableTTL: cfg.Cache.TableTTL,
			Logger:   log,
		},
	)

	log.InfoWith("schema parser ready", map[string]interface{}{
		"cache":        cfg.Cache.Backend,
		"invalidation": a.Gateway.Strategy().Name(),
		"prefix":       cfg.Cache.Prefix,
	})
	return a, nil
}

func (a *App) openBackend(ctx context.Context, cfg *config.Cache) (cache.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		b := redis.New(rdb, &redis.Config{Namespace: cfg.Redis.Namespace})
		if err := b.Ping(ctx); err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, "create pgx pool", err)
		}
		a.closers = append(a.closers, pool.Close)

		unlogged := true
		if cfg.Postgres.Unlogged != nil {
			unlogged = *cfg.Postgres.Unlogged
		}
		return postgres.New(ctx, pool, &postgres.Config{Table: cfg.Postgres.Table, Unlogged: unlogged})

	case config.BackendMinIO:
		return minio.New(ctx, &minio.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
			Bucket:    cfg.MinIO.Bucket,
			Prefix:    cfg.MinIO.Prefix,
		})

	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown cache backend %q", cfg.Backend)
	}
}

// RunPurger reclaims expired cache entries every interval until ctx ends.
// A zero interval returns at once.
func (a *App) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Gateway.Purge(ctx); err != nil && ctx.Err() == nil {
				a.Log.WarnWith("cache purge failed", err, nil)
			}
		}
	}
}

// Close releases the cache backend and the MySQL pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
