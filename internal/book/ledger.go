// Package book implements the consolidated multi-venue limit order book: a
// pair of price-ordered quantity ledgers that merge per-venue absolute
// resting sizes into one arbitration-ready view, plus the derived best-of-book,
// volume-band, and price-band queries.
package book

import (
	"github.com/tidwall/btree"

	"github.com/aggstream/aggbook/internal/domain"
)

// priceScale converts a float64 price into a totally ordered integer key.
// Keying on the scaled integer keeps level identity immune to float noise.
const priceScale = 1_000_000

func priceKey(price float64) int64 {
	return int64(price * priceScale)
}

// Level is one aggregated price level. ByVenue is indexed by domain.Venue id
// (slot 0 unused) and holds each venue's last reported absolute quantity;
// Total is always their sum and Notional is Price * Total.
type Level struct {
	Price    float64
	ByVenue  [domain.VenueCount]float64
	Total    float64
	Notional float64
}

// Ledger is one side of the consolidated book: an ascending mapping from the
// scaled price key to its level. It is owned by exactly one Book side and
// mutated only through Apply and ClearVenue.
type Ledger struct {
	levels *btree.Map[int64, *Level]
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{levels: btree.NewMap[int64, *Level](32)}
}

// Apply merges one venue's current absolute quantity at price into the
// ledger. The venue's previous contribution at that level is replaced, not
// accumulated, so re-applying the same report is a no-op. A level whose total
// reaches zero is removed; a report for an absent level with non-positive
// quantity is a stale clear and is ignored.
func (l *Ledger) Apply(venue domain.Venue, price, quantity float64) {
	key := priceKey(price)
	if lvl, ok := l.levels.Get(key); ok {
		total := lvl.Total - lvl.ByVenue[venue] + quantity
		if domain.FloatEq(total, 0) {
			l.levels.Delete(key)
			return
		}
		lvl.ByVenue[venue] = quantity
		lvl.Total = total
		lvl.Notional = price * total
		return
	}
	if domain.FloatGreater(quantity, 0) {
		lvl := &Level{Price: price, Total: quantity, Notional: price * quantity}
		lvl.ByVenue[venue] = quantity
		l.levels.Set(key, lvl)
	}
}

// ClearVenue removes one venue's contribution from every level, deleting
// levels whose total drops to zero. This is how a snapshot batch invalidates
// a venue's prior state before the fresh snapshot is layered in.
func (l *Ledger) ClearVenue(venue domain.Venue) {
	var drop []int64
	l.levels.Scan(func(key int64, lvl *Level) bool {
		if lvl.ByVenue[venue] == 0 {
			return true
		}
		lvl.Total -= lvl.ByVenue[venue]
		lvl.ByVenue[venue] = 0
		lvl.Notional = lvl.Price * lvl.Total
		if domain.FloatEq(lvl.Total, 0) {
			drop = append(drop, key)
		}
		return true
	})
	for _, key := range drop {
		l.levels.Delete(key)
	}
}

// Highest returns the maximum-price level, or false when the ledger is empty.
func (l *Ledger) Highest() (Level, bool) {
	if _, lvl, ok := l.levels.Max(); ok {
		return *lvl, true
	}
	return Level{}, false
}

// Lowest returns the minimum-price level, or false when the ledger is empty.
func (l *Ledger) Lowest() (Level, bool) {
	if _, lvl, ok := l.levels.Min(); ok {
		return *lvl, true
	}
	return Level{}, false
}

// Len returns the number of live levels.
func (l *Ledger) Len() int {
	return l.levels.Len()
}

// walkAsc visits levels in ascending price order until fn returns false.
func (l *Ledger) walkAsc(fn func(lvl *Level) bool) {
	l.levels.Scan(func(_ int64, lvl *Level) bool {
		return fn(lvl)
	})
}

// walkDesc visits levels in descending price order until fn returns false.
func (l *Ledger) walkDesc(fn func(lvl *Level) bool) {
	l.levels.Reverse(func(_ int64, lvl *Level) bool {
		return fn(lvl)
	})
}
