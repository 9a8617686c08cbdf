package domain

import (
	"context"
	"time"
)

// LevelSnapshot is one aggregated price level as exposed by read queries.
// PerVenue is indexed by Venue id; slot 0 is unused.
type LevelSnapshot struct {
	Price    float64             `json:"price"`
	Quantity float64             `json:"quantity"`
	Notional float64             `json:"notional"`
	PerVenue [VenueCount]float64 `json:"per_venue"`
}

// Empty reports whether the snapshot refers to no level (empty book side).
func (l LevelSnapshot) Empty() bool {
	return l.Price == 0 && l.Quantity == 0
}

// BookSnapshot is a depth-limited copy of the consolidated book, published by
// the ingest loop after every apply and served to HTTP queries and the redis
// mirror. Bids are ordered best (highest) first, asks best (lowest) first.
type BookSnapshot struct {
	Symbol    string          `json:"symbol"`
	Bids      []LevelSnapshot `json:"bids"`
	Asks      []LevelSnapshot `json:"asks"`
	BestBid   LevelSnapshot   `json:"best_bid"`
	BestAsk   LevelSnapshot   `json:"best_ask"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BookMirror is an out-of-process mirror of the consolidated stream: the
// latest snapshot cached per symbol plus a pub/sub fan-out of every batch.
// Implementations must not be relied on by the ingest hot path.
type BookMirror interface {
	SetSnapshot(ctx context.Context, symbol string, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (BookSnapshot, error)
	PublishBatch(ctx context.Context, symbol string, payload []byte) error
}
