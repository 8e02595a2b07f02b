package main

import (
	"context"
	"errors"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/config"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/singleuse"
	"github.com/MrEthical07/stagepass/store/memory"
	"github.com/MrEthical07/stagepass/store/postgres"
	redisstore "github.com/MrEthical07/stagepass/store/redis"
)

// runtime owns the engine and the connections behind it.
type runtime struct {
	engine  *stagepass.Engine
	checks  []func(context.Context) error
	closers []func()
}

// newRuntime connects the configured backends and builds the engine.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	var rdb goredis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		rt.checks = append(rt.checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		rdb = client
	}

	var (
		users     stagepass.UserStore
		refreshes refresh.Store
		singles   singleuse.Store
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory stores; all state is lost on exit")
		users, refreshes, singles = memory.NewUsers(), memory.NewRefreshTokens(), memory.NewSingleUseTokens()
	case config.BackendPostgres, config.BackendRedis:
		pool, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.checks = append(rt.checks, pool.Ping)

		users = postgres.NewUsers(pool)
		if cfg.Store.Backend == config.BackendRedis {
			if rdb == nil {
				return nil, oops.Code("CONFIG_INVALID").Errorf("redis backend needs redis.addr")
			}
			refreshes = redisstore.NewRefreshTokens(rdb, cfg.Redis.Prefix)
			singles = redisstore.NewSingleUseTokens(rdb, cfg.Redis.Prefix)
		} else {
			refreshes = postgres.NewRefreshTokens(pool)
			singles = postgres.NewSingleUseTokens(pool)
		}
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	builder := stagepass.New().
		WithConfig(cfg.Config).
		WithStores(users, refreshes, singles).
		WithLogger(logger).
		WithMailer(stagepass.LogMailer{Logger: logger})
	if rdb != nil {
		builder = builder.WithRedisRateLimiter(rdb, cfg.Redis.Prefix)
	}

	engine, err := builder.Build()
	if err != nil {
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	rt.engine = engine
	return rt, nil
}

// Ready runs every backend health check.
func (rt *runtime) Ready(ctx context.Context) error {
	var errs []error
	for _, check := range rt.checks {
		errs = append(errs, check(ctx))
	}
	return errors.Join(errs...)
}

// Close flushes the engine, then closes connections in reverse order.
func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
