// Package app provides the top-level application lifecycle management for the
// aggregator. It wires together the consolidated book, the exchange feed
// adapters, the ingest loop, the subscriber hub, and the HTTP server, and
// runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aggstream/aggbook/internal/book"
	"github.com/aggstream/aggbook/internal/config"
	"github.com/aggstream/aggbook/internal/domain"
	"github.com/aggstream/aggbook/internal/ingest"
	"github.com/aggstream/aggbook/internal/server"
	"github.com/aggstream/aggbook/internal/server/ws"
	"github.com/aggstream/aggbook/internal/venue"
)

// batchBuffer sizes the channel between the feed adapters and the ingest
// loop. Adapters block rather than drop when the loop falls behind.
const batchBuffer = 1024

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the feed,
// ingest, fanout, and server goroutines, and blocks until the context is
// cancelled or a component fails. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("symbol", a.cfg.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	batches := make(chan domain.TickBatch, batchBuffer)

	consolidated := book.New(a.cfg.Symbol)
	hub := ws.NewHub(ws.Config{
		Symbol:   a.cfg.Symbol,
		MaxQueue: a.cfg.Stream.MaxQueue,
	}, a.logger)
	loop := ingest.New(ingest.Config{
		SnapshotDepth: a.cfg.Stream.SnapshotDepth,
	}, consolidated, batches, hub, deps.Mirror, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return loop.Run(ctx)
	})

	for _, adapter := range a.adapters(batches) {
		g.Go(func() error {
			return adapter.Run(ctx)
		})
	}

	srv := server.New(server.Config{Port: a.cfg.Server.Port}, loop, hub, deps.Mirror, a.logger)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// adapters builds one feed adapter per enabled venue.
func (a *App) adapters(out chan<- domain.TickBatch) []venue.Adapter {
	var adapters []venue.Adapter
	if v := a.cfg.Venues.Binance; v.Enabled {
		adapters = append(adapters, venue.NewBinance(v.Endpoint, a.cfg.Symbol, v.MarketSymbol, out, a.logger))
	}
	if v := a.cfg.Venues.Kraken; v.Enabled {
		adapters = append(adapters, venue.NewKraken(v.Endpoint, a.cfg.Symbol, v.MarketSymbol, out, a.logger))
	}
	if v := a.cfg.Venues.Cryptocom; v.Enabled {
		adapters = append(adapters, venue.NewCryptocom(v.Endpoint, a.cfg.Symbol, v.MarketSymbol, out, a.logger))
	}
	return adapters
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
