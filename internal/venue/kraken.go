package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aggstream/aggbook/internal/domain"
)

// krakenHeartbeat is the application-level ping interval kraken expects on
// top of WebSocket keepalive.
const krakenHeartbeat = 10 * time.Second

// Kraken streams the v2 "book" channel. The channel opens with a typed
// snapshot message and follows with updates; the snapshot sets the batch
// snapshot flag so the book drops kraken's prior contribution first.
type Kraken struct {
	symbol       string
	marketSymbol string
	url          string
	out          chan<- domain.TickBatch
	logger       *slog.Logger
}

// NewKraken creates the adapter. endpoint is the full v2 WebSocket URL (e.g.
// "wss://ws.kraken.com/v2"); marketSymbol is kraken's pair name ("BTC/USDT").
func NewKraken(endpoint, symbol, marketSymbol string, out chan<- domain.TickBatch, logger *slog.Logger) *Kraken {
	return &Kraken{
		symbol:       symbol,
		marketSymbol: marketSymbol,
		url:          endpoint,
		out:          out,
		logger:       logger.With(slog.String("component", "venue_kraken")),
	}
}

func (k *Kraken) Venue() string { return domain.VenueKraken.String() }

// Run streams book messages until ctx is cancelled, reconnecting on drop.
func (k *Kraken) Run(ctx context.Context) error {
	return runWithReconnect(ctx, k.logger, k.runConnection)
}

func (k *Kraken) runConnection(ctx context.Context) error {
	link, err := dialLink(ctx, k.url)
	if err != nil {
		return err
	}
	defer link.close()

	sub := map[string]any{
		"method": "subscribe",
		"params": map[string]any{
			"channel": "book",
			"symbol":  []string{k.marketSymbol},
		},
	}
	if err := link.writeJSON(sub); err != nil {
		return fmt.Errorf("venue: kraken: subscribe: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go link.pingLoop(connCtx)
	go k.heartbeatLoop(connCtx, link)

	k.logger.Info("kraken book stream subscribed", slog.String("symbol", k.marketSymbol))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := link.read()
		if err != nil {
			return err
		}
		batch, ok, err := parseKrakenBook(k.symbol, raw)
		if err != nil {
			k.logger.Warn("kraken message dropped", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		select {
		case k.out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeatLoop sends the JSON ping kraken uses to keep the book channel
// alive.
func (k *Kraken) heartbeatLoop(ctx context.Context, link *wsLink) {
	ticker := time.NewTicker(krakenHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := map[string]any{"method": "ping", "req_id": 101}
			if err := link.writeJSON(ping); err != nil {
				return
			}
		}
	}
}

type krakenBookMessage struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    []struct {
		Symbol string `json:"symbol"`
		Bids   []struct {
			Price float64 `json:"price"`
			Qty   float64 `json:"qty"`
		} `json:"bids"`
		Asks []struct {
			Price float64 `json:"price"`
			Qty   float64 `json:"qty"`
		} `json:"asks"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

func parseKrakenBook(symbol string, raw []byte) (domain.TickBatch, bool, error) {
	var msg krakenBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.TickBatch{}, false, fmt.Errorf("venue: kraken: decode: %w", err)
	}
	if msg.Channel != "book" || len(msg.Data) == 0 {
		return domain.TickBatch{}, false, nil
	}
	if msg.Type != "snapshot" && msg.Type != "update" {
		return domain.TickBatch{}, false, nil
	}

	entry := msg.Data[0]
	batch := domain.TickBatch{
		Exchange: domain.VenueKraken,
		Symbol:   symbol,
		Snapshot: msg.Type == "snapshot",
		Updates:  make([]domain.TickUpdate, 0, len(entry.Bids)+len(entry.Asks)),
	}
	if entry.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err == nil {
			batch.SequenceID = ts.UnixMilli()
		}
	}
	for _, lvl := range entry.Bids {
		batch.Updates = append(batch.Updates, domain.TickUpdate{
			Price:    lvl.Price,
			Quantity: lvl.Qty,
			Side:     domain.SideBid,
		})
	}
	for _, lvl := range entry.Asks {
		batch.Updates = append(batch.Updates, domain.TickUpdate{
			Price:    lvl.Price,
			Quantity: lvl.Qty,
			Side:     domain.SideAsk,
		})
	}
	// An empty snapshot is still meaningful: it clears kraken's prior state.
	return batch, batch.Snapshot || len(batch.Updates) > 0, nil
}
