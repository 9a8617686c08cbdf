package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aggstream/aggbook/internal/domain"
)

// Cryptocom streams the "book.<instrument>.<depth>" channel subscribed with
// SNAPSHOT_AND_UPDATE: full snapshots arrive on channel "book" and deltas on
// "book.update". Snapshot frames set the batch snapshot flag. The venue also
// sends public/heartbeat requests that must be answered in-band.
type Cryptocom struct {
	symbol       string
	marketSymbol string
	url          string
	depth        int
	out          chan<- domain.TickBatch
	logger       *slog.Logger
}

// NewCryptocom creates the adapter. endpoint is the full market-data URL
// (e.g. "wss://stream.crypto.com/exchange/v1/market"); marketSymbol is
// crypto.com's instrument name ("BTCUSD-PERP").
func NewCryptocom(endpoint, symbol, marketSymbol string, out chan<- domain.TickBatch, logger *slog.Logger) *Cryptocom {
	return &Cryptocom{
		symbol:       symbol,
		marketSymbol: marketSymbol,
		url:          endpoint,
		depth:        50,
		out:          out,
		logger:       logger.With(slog.String("component", "venue_cryptocom")),
	}
}

func (c *Cryptocom) Venue() string { return domain.VenueCryptocom.String() }

// Run streams book messages until ctx is cancelled, reconnecting on drop.
func (c *Cryptocom) Run(ctx context.Context) error {
	return runWithReconnect(ctx, c.logger, c.runConnection)
}

func (c *Cryptocom) runConnection(ctx context.Context) error {
	link, err := dialLink(ctx, c.url)
	if err != nil {
		return err
	}
	defer link.close()

	sub := map[string]any{
		"id":     1,
		"method": "subscribe",
		"params": map[string]any{
			"channels":               []string{fmt.Sprintf("book.%s.%d", c.marketSymbol, c.depth)},
			"book_subscription_type": "SNAPSHOT_AND_UPDATE",
			"book_update_frequency":  10,
		},
	}
	if err := link.writeJSON(sub); err != nil {
		return fmt.Errorf("venue: cryptocom: subscribe: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go link.pingLoop(connCtx)

	c.logger.Info("cryptocom book stream subscribed", slog.String("symbol", c.marketSymbol))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := link.read()
		if err != nil {
			return err
		}

		var probe struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			c.logger.Warn("cryptocom message dropped", slog.String("error", err.Error()))
			continue
		}
		if probe.Method == "public/heartbeat" {
			pong := map[string]any{"method": "public/respond-heartbeat", "id": probe.ID}
			if err := link.writeJSON(pong); err != nil {
				return fmt.Errorf("venue: cryptocom: heartbeat: %w", err)
			}
			continue
		}
		if probe.Method != "subscribe" {
			continue
		}

		batch, ok, err := parseCryptocomBook(c.symbol, raw)
		if err != nil {
			c.logger.Warn("cryptocom message dropped", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		select {
		case c.out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type cryptocomBookMessage struct {
	Method string `json:"method"`
	Result struct {
		Channel string `json:"channel"`
		Data    []struct {
			T      int64      `json:"t"`
			Bids   [][]string `json:"bids"`
			Asks   [][]string `json:"asks"`
			Update *struct {
				Bids [][]string `json:"bids"`
				Asks [][]string `json:"asks"`
			} `json:"update"`
		} `json:"data"`
	} `json:"result"`
}

func parseCryptocomBook(symbol string, raw []byte) (domain.TickBatch, bool, error) {
	var msg cryptocomBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.TickBatch{}, false, fmt.Errorf("venue: cryptocom: decode: %w", err)
	}
	if len(msg.Result.Data) == 0 {
		return domain.TickBatch{}, false, nil
	}
	isUpdate := msg.Result.Channel == "book.update"
	if msg.Result.Channel != "book" && !isUpdate {
		return domain.TickBatch{}, false, nil
	}

	entry := msg.Result.Data[0]
	bids, asks := entry.Bids, entry.Asks
	if isUpdate {
		if entry.Update == nil {
			return domain.TickBatch{}, false, nil
		}
		bids, asks = entry.Update.Bids, entry.Update.Asks
	}

	batch := domain.TickBatch{
		Exchange:   domain.VenueCryptocom,
		Symbol:     symbol,
		SequenceID: entry.T,
		Snapshot:   !isUpdate,
		Updates:    make([]domain.TickUpdate, 0, len(bids)+len(asks)),
	}
	if err := appendStringLevels(&batch, bids, domain.SideBid); err != nil {
		return domain.TickBatch{}, false, err
	}
	if err := appendStringLevels(&batch, asks, domain.SideAsk); err != nil {
		return domain.TickBatch{}, false, err
	}
	return batch, batch.Snapshot || len(batch.Updates) > 0, nil
}
