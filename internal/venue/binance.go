package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aggstream/aggbook/internal/domain"
)

// Binance streams the diff-depth channel. Every event carries the current
// absolute quantity per touched level; there is no snapshot framing, so
// batches are never flagged as snapshots.
type Binance struct {
	symbol string
	url    string
	out    chan<- domain.TickBatch
	logger *slog.Logger
}

// NewBinance creates the adapter. endpoint is the stream host (e.g.
// "wss://data-stream.binance.vision:9443"); marketSymbol is binance's
// lowercase instrument name.
func NewBinance(endpoint, symbol, marketSymbol string, out chan<- domain.TickBatch, logger *slog.Logger) *Binance {
	return &Binance{
		symbol: symbol,
		url:    endpoint + "/ws/" + marketSymbol + "@depth",
		out:    out,
		logger: logger.With(slog.String("component", "venue_binance")),
	}
}

func (b *Binance) Venue() string { return domain.VenueBinance.String() }

// Run streams depth events until ctx is cancelled, reconnecting on drop.
func (b *Binance) Run(ctx context.Context) error {
	return runWithReconnect(ctx, b.logger, b.runConnection)
}

func (b *Binance) runConnection(ctx context.Context) error {
	link, err := dialLink(ctx, b.url)
	if err != nil {
		return err
	}
	defer link.close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go link.pingLoop(connCtx)

	b.logger.Info("binance depth stream connected", slog.String("url", b.url))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := link.read()
		if err != nil {
			return err
		}
		batch, ok, err := parseBinanceDepth(b.symbol, raw)
		if err != nil {
			b.logger.Warn("binance message dropped", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		select {
		case b.out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// binanceDepthEvent is the diff-depth JSON shape; levels come as
// [price, quantity] string pairs.
type binanceDepthEvent struct {
	Event     string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func parseBinanceDepth(symbol string, raw []byte) (domain.TickBatch, bool, error) {
	var ev binanceDepthEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.TickBatch{}, false, fmt.Errorf("venue: binance: decode: %w", err)
	}
	if ev.Event != "depthUpdate" {
		return domain.TickBatch{}, false, nil
	}

	batch := domain.TickBatch{
		Exchange:   domain.VenueBinance,
		Symbol:     symbol,
		SequenceID: ev.EventTime,
		Updates:    make([]domain.TickUpdate, 0, len(ev.Bids)+len(ev.Asks)),
	}
	if err := appendStringLevels(&batch, ev.Bids, domain.SideBid); err != nil {
		return domain.TickBatch{}, false, err
	}
	if err := appendStringLevels(&batch, ev.Asks, domain.SideAsk); err != nil {
		return domain.TickBatch{}, false, err
	}
	return batch, len(batch.Updates) > 0, nil
}

// appendStringLevels decodes [price, quantity, ...] string tuples, a shape
// shared by the binance and crypto.com feeds.
func appendStringLevels(batch *domain.TickBatch, levels [][]string, side domain.Side) error {
	for _, lvl := range levels {
		if len(lvl) < 2 {
			return fmt.Errorf("venue: %s: short level tuple", batch.Exchange)
		}
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			return fmt.Errorf("venue: %s: price %q: %w", batch.Exchange, lvl[0], err)
		}
		qty, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			return fmt.Errorf("venue: %s: quantity %q: %w", batch.Exchange, lvl[1], err)
		}
		batch.Updates = append(batch.Updates, domain.TickUpdate{
			Price:    price,
			Quantity: qty,
			Side:     side,
		})
	}
	return nil
}
