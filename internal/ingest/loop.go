// Package ingest runs the single control loop that owns the consolidated
// book: normalized venue batches arrive on one channel, are applied to the
// book, and are then fanned out — in apply order — to the streaming hub,
// the published snapshot, and the optional redis mirror.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aggstream/aggbook/internal/book"
	"github.com/aggstream/aggbook/internal/domain"
	"github.com/aggstream/aggbook/internal/metrics"
)

// Broadcaster delivers one pre-encoded frame to every live subscriber.
// Implementations must not block the caller.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// mirrorTimeout bounds each advisory write to the mirror.
const mirrorTimeout = 3 * time.Second

// Config holds the loop's construction parameters.
type Config struct {
	// SnapshotDepth limits levels per side in published snapshots; 0 keeps
	// every level.
	SnapshotDepth int
}

// Loop applies batches to the book and broadcasts the result. The book is
// exclusively owned by the loop goroutine; readers only ever see snapshots
// the loop has already published.
type Loop struct {
	book   *book.Book
	in     <-chan domain.TickBatch
	fanout Broadcaster
	mirror domain.BookMirror
	depth  int
	logger *slog.Logger

	snap     atomic.Pointer[domain.BookSnapshot]
	mirrorCh chan mirrorJob
}

type mirrorJob struct {
	snap    domain.BookSnapshot
	payload []byte
}

// New creates a loop. mirror may be nil.
func New(cfg Config, b *book.Book, in <-chan domain.TickBatch, fanout Broadcaster, mirror domain.BookMirror, logger *slog.Logger) *Loop {
	l := &Loop{
		book:   b,
		in:     in,
		fanout: fanout,
		mirror: mirror,
		depth:  cfg.SnapshotDepth,
		logger: logger.With(slog.String("component", "ingest")),
	}
	if mirror != nil {
		l.mirrorCh = make(chan mirrorJob, 16)
	}
	empty := b.Snapshot(cfg.SnapshotDepth)
	l.snap.Store(&empty)
	return l
}

// Snapshot returns the most recently published book snapshot.
func (l *Loop) Snapshot() domain.BookSnapshot {
	return *l.snap.Load()
}

// Run consumes batches until ctx is cancelled. Malformed input is rejected
// and logged; the loop itself never stops on bad data.
func (l *Loop) Run(ctx context.Context) error {
	if l.mirror != nil {
		go l.mirrorLoop(ctx)
	}
	l.logger.Info("ingest loop started", slog.String("symbol", l.book.Symbol()))
	defer l.logger.Info("ingest loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-l.in:
			l.handle(batch)
		}
	}
}

func (l *Loop) handle(batch domain.TickBatch) {
	if batch.Symbol != l.book.Symbol() {
		metrics.UpdatesRejected.WithLabelValues("symbol_mismatch").Add(float64(len(batch.Updates)))
		l.logger.Warn("batch for unserved symbol dropped",
			slog.String("symbol", batch.Symbol),
			slog.String("venue", batch.Exchange.String()),
		)
		return
	}

	res, err := l.book.Apply(batch)
	if err != nil {
		reason := "apply_error"
		if errors.Is(err, domain.ErrUnknownExchange) {
			reason = "unknown_exchange"
		}
		metrics.UpdatesRejected.WithLabelValues(reason).Add(float64(res.Rejected))
		l.logger.Warn("batch rejected",
			slog.Int("exchange", int(batch.Exchange)),
			slog.String("error", err.Error()),
		)
		return
	}
	if res.Rejected > 0 {
		metrics.UpdatesRejected.WithLabelValues("malformed_update").Add(float64(res.Rejected))
		l.logger.Warn("malformed updates skipped",
			slog.String("venue", batch.Exchange.String()),
			slog.Int("rejected", res.Rejected),
		)
	}
	metrics.BatchesApplied.WithLabelValues(batch.Exchange.String()).Inc()
	bidDepth, askDepth := l.book.Depth()
	metrics.BookLevels.WithLabelValues("bid").Set(float64(bidDepth))
	metrics.BookLevels.WithLabelValues("ask").Set(float64(askDepth))

	// Broadcast synchronously after the apply so every subscriber observes
	// book states in apply order.
	payload, err := domain.NewEnvelope(domain.MsgBookUpdate, batch)
	if err != nil {
		l.logger.Error("encode batch failed", slog.String("error", err.Error()))
		return
	}
	l.fanout.Broadcast(payload)

	snap := l.book.Snapshot(l.depth)
	l.snap.Store(&snap)

	if l.mirrorCh != nil {
		// Advisory only: skip rather than stall when the mirror lags.
		select {
		case l.mirrorCh <- mirrorJob{snap: snap, payload: payload}:
		default:
		}
	}
}

// mirrorLoop keeps redis I/O off the ingest path.
func (l *Loop) mirrorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-l.mirrorCh:
			opCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
			if err := l.mirror.SetSnapshot(opCtx, l.book.Symbol(), job.snap); err != nil {
				l.logger.Debug("mirror snapshot failed", slog.String("error", err.Error()))
			}
			if err := l.mirror.PublishBatch(opCtx, l.book.Symbol(), job.payload); err != nil {
				l.logger.Debug("mirror publish failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}
