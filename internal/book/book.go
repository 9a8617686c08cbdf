package book

import (
	"fmt"
	"time"

	"github.com/aggstream/aggbook/internal/domain"
)

// BandNotReached is the volume-band sentinel: the price reported for a band
// whose notional threshold the book never accumulates. Zero cannot collide
// with a real level price because zero-quantity levels do not exist.
const BandNotReached = 0.0

// Book is the consolidated order book for one symbol. It owns a bid and an
// ask ledger and is mutated only through Apply; callers must serialize all
// access (the ingest loop is the sole owner at runtime).
type Book struct {
	symbol string
	bids   *Ledger
	asks   *Ledger
}

// New returns an empty consolidated book for symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   NewLedger(),
		asks:   NewLedger(),
	}
}

// Symbol returns the symbol the book consolidates.
func (b *Book) Symbol() string { return b.symbol }

// ApplyResult reports how many updates in a batch were merged and how many
// were rejected as malformed.
type ApplyResult struct {
	Applied  int
	Rejected int
}

// Apply merges one normalized venue batch. A snapshot batch first clears the
// venue's prior contribution on both sides. An unknown venue id rejects the
// whole batch, since neither the clear nor the per-venue slots could be
// attributed; a malformed single update (unknown side, non-finite price or
// quantity) is skipped and counted, and the rest of the batch still applies.
func (b *Book) Apply(batch domain.TickBatch) (ApplyResult, error) {
	var res ApplyResult
	if !batch.Exchange.Valid() {
		res.Rejected = len(batch.Updates)
		return res, fmt.Errorf("book: exchange %d: %w", batch.Exchange, domain.ErrUnknownExchange)
	}
	if batch.Snapshot {
		b.bids.ClearVenue(batch.Exchange)
		b.asks.ClearVenue(batch.Exchange)
	}
	for _, u := range batch.Updates {
		if !u.WellFormed() {
			res.Rejected++
			continue
		}
		switch u.Side {
		case domain.SideBid:
			b.bids.Apply(batch.Exchange, u.Price, u.Quantity)
		case domain.SideAsk:
			b.asks.Apply(batch.Exchange, u.Price, u.Quantity)
		}
		res.Applied++
	}
	return res, nil
}

// BestBid returns the highest-priced bid level, or a zero Level when the bid
// side is empty.
func (b *Book) BestBid() Level {
	lvl, _ := b.bids.Highest()
	return lvl
}

// BestAsk returns the lowest-priced ask level, or a zero Level when the ask
// side is empty.
func (b *Book) BestAsk() Level {
	lvl, _ := b.asks.Lowest()
	return lvl
}

// Depth returns the number of live levels per side.
func (b *Book) Depth() (bids, asks int) {
	return b.bids.Len(), b.asks.Len()
}

// volumeBand walks levels in the given order accumulating notional. The
// price of the level at which the running total first reaches a threshold
// becomes that band's boundary. Thresholds must be strictly ascending.
// Thresholds never reached report BandNotReached; the band index is bounds
// checked on every step, so exhausting the levels is safe.
func volumeBand(walk func(func(lvl *Level) bool), thresholds []float64) []float64 {
	prices := make([]float64, len(thresholds))
	for i := range prices {
		prices[i] = BandNotReached
	}
	var accum float64
	idx := 0
	walk(func(lvl *Level) bool {
		accum += lvl.Notional
		for idx < len(thresholds) && accum >= thresholds[idx] {
			prices[idx] = lvl.Price
			idx++
		}
		return idx < len(thresholds)
	})
	return prices
}

// VolumeBandBids walks bids from the best (highest) price downward and
// returns one boundary price per threshold.
func (b *Book) VolumeBandBids(thresholds []float64) []float64 {
	return volumeBand(b.bids.walkDesc, thresholds)
}

// VolumeBandAsks walks asks from the best (lowest) price upward and returns
// one boundary price per threshold.
func (b *Book) VolumeBandAsks(thresholds []float64) []float64 {
	return volumeBand(b.asks.walkAsc, thresholds)
}

// PriceBand returns anchor shifted by each signed basis-point offset, in the
// order the offsets were given. It is a stateless transform, independent of
// the ledgers.
func PriceBand(anchor float64, bps []int) []float64 {
	out := make([]float64, len(bps))
	for i, bp := range bps {
		out[i] = anchor + anchor*float64(bp)/10_000
	}
	return out
}

func levelSnapshot(lvl Level) domain.LevelSnapshot {
	return domain.LevelSnapshot{
		Price:    lvl.Price,
		Quantity: lvl.Total,
		Notional: lvl.Notional,
		PerVenue: lvl.ByVenue,
	}
}

// Snapshot copies up to depth levels per side, best first, together with the
// best bid and ask. depth <= 0 copies every level.
func (b *Book) Snapshot(depth int) domain.BookSnapshot {
	snap := domain.BookSnapshot{
		Symbol:    b.symbol,
		BestBid:   levelSnapshot(b.BestBid()),
		BestAsk:   levelSnapshot(b.BestAsk()),
		UpdatedAt: time.Now().UTC(),
	}
	take := func(walk func(func(lvl *Level) bool)) []domain.LevelSnapshot {
		var out []domain.LevelSnapshot
		walk(func(lvl *Level) bool {
			out = append(out, levelSnapshot(*lvl))
			return depth <= 0 || len(out) < depth
		})
		return out
	}
	snap.Bids = take(b.bids.walkDesc)
	snap.Asks = take(b.asks.walkAsc)
	return snap
}
