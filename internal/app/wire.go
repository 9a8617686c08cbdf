package app

import (
	"context"
	"fmt"

	"github.com/aggstream/aggbook/internal/cache/redis"
	"github.com/aggstream/aggbook/internal/config"
	"github.com/aggstream/aggbook/internal/domain"
)

// Dependencies bundles the optional external dependencies the aggregator can
// run with. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Mirror is the out-of-process book mirror, nil when redis is disabled.
	Mirror domain.BookMirror
}

// Wire constructs concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout.Duration,
			ReadTimeout:  cfg.Redis.ReadTimeout.Duration,
			WriteTimeout: cfg.Redis.WriteTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		deps.Mirror = redis.NewBookCache(client)
	}

	return deps, cleanup, nil
}
