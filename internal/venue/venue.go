// Package venue contains the per-exchange WebSocket adapters. Each adapter
// owns one upstream connection, translates the venue's book feed into
// normalized domain.TickBatch values, and delivers them to the ingest loop
// over a channel. Reconnect, heartbeat, and resubscribe handling stay inside
// the adapter; the loop only ever sees well-formed batches.
package venue

import (
	"context"
	"log/slog"
	"time"
)

// Adapter is one upstream market-data source.
type Adapter interface {
	// Venue returns the id the adapter stamps on every batch.
	Venue() string

	// Run connects and streams batches onto the adapter's output channel
	// until ctx is cancelled. It reconnects with backoff on disconnect and
	// only returns early on ctx cancellation.
	Run(ctx context.Context) error
}

// runWithReconnect drives connect as a supervised loop: each disconnect is
// logged and retried after reconnectDelay until ctx is cancelled.
func runWithReconnect(ctx context.Context, logger *slog.Logger, connect func(ctx context.Context) error) error {
	for {
		err := connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("venue feed disconnected, reconnecting",
			slog.String("error", errString(err)),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "eof"
	}
	return err.Error()
}
