// Package bootstrap builds the storage and admission-control adapters
// selected by configuration. The commentbot server and the commentctl CLI
// share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	pgadapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/postgres"
	redisadapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/config"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Stores bundles the persistence ports for one database.
type Stores struct {
	Records    driven.RecordStore
	Dispatches driven.DispatchStore
	Posts      driven.PostStore

	// Ping probes the database for health checks.
	Ping application.PingFunc

	close func()
}

// Close releases the database connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured database and applies migrations.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := pgadapter.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pgadapter.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("migrations complete", "driver", cfg.DBDriver)

		return &Stores{
			Records:    pgadapter.NewRecordRepo(pool),
			Dispatches: pgadapter.NewDispatchRepo(pool),
			Posts:      pgadapter.NewPostRepo(pool),
			Ping:       pool.Ping,
			close:      pool.Close,
		}, nil

	case config.DriverSQLite:
		// Open database (dual reader/writer with WAL mode).
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("database opened", "path", cfg.DBPath)

		// Run migrations on writer connection.
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("migrations complete", "driver", cfg.DBDriver)

		return &Stores{
			Records:    sqliteadapter.NewRecordRepo(db),
			Dispatches: sqliteadapter.NewDispatchRepo(db),
			Posts:      sqliteadapter.NewPostRepo(db),
			Ping:       db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					slog.Error("error closing database", "error", err)
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// Limiter is an admission limiter plus its health probe and cleanup.
type Limiter struct {
	driven.RateLimiter
	Ping  application.PingFunc
	close func()
}

// Close releases any backend connection.
func (l *Limiter) Close() {
	if l.close != nil {
		l.close()
	}
}

// NewLimiter returns the shared Redis limiter when COMMENTBOT_REDIS_URL is
// set and the in-process limiter otherwise. clock drives only the in-process
// limiter.
func NewLimiter(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Limiter, error) {
	if cfg.RedisURL == "" {
		l, err := application.NewFixedWindowLimiter(cfg.RateLimitWindow, cfg.RateLimitMax, clock)
		if err != nil {
			return nil, err
		}
		slog.Info("rate limiter ready", "backend", "memory", "window", cfg.RateLimitWindow, "max", cfg.RateLimitMax)
		return &Limiter{RateLimiter: l, Ping: func(context.Context) error { return nil }}, nil
	}

	rdb, err := redisadapter.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	// Replicas share the window, so it is timed by the Redis server clock.
	l, err := redisadapter.NewFixedWindowLimiter(rdb, nil, redisadapter.DefaultKey, cfg.RateLimitWindow, cfg.RateLimitMax)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	slog.Info("rate limiter ready", "backend", "redis", "window", cfg.RateLimitWindow, "max", cfg.RateLimitMax)

	return &Limiter{
		RateLimiter: l,
		Ping:        func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		close: func() {
			if err := rdb.Close(); err != nil {
				slog.Error("error closing redis", "error", err)
			}
		},
	}, nil
}

// NewGenerator builds the reply generator from configured templates, falling
// back to the built-in set.
func NewGenerator(cfg *config.Config) (*application.ResponseGenerator, error) {
	templates := cfg.Templates
	if templates == nil {
		templates = application.DefaultTemplates()
	}
	return application.NewResponseGenerator(templates)
}
