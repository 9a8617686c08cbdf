// Package domain defines the normalized market-data types shared by the
// venue adapters, the consolidated book, and the streaming fanout, together
// with the JSON shapes they take on the wire.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Venue identifies a liquidity source. The zero value is reserved so that a
// venue id can double as an index into per-venue quantity slots.
type Venue uint32

const (
	VenueUndefined Venue = iota
	VenueBinance
	VenueKraken
	VenueCryptocom

	// VenueCount is the size of per-venue arrays; valid ids are 1..VenueCount-1.
	VenueCount
)

// Valid reports whether v is a known, routable venue id.
func (v Venue) Valid() bool {
	return v > VenueUndefined && v < VenueCount
}

func (v Venue) String() string {
	switch v {
	case VenueBinance:
		return "binance"
	case VenueKraken:
		return "kraken"
	case VenueCryptocom:
		return "cryptocom"
	default:
		return "undefined"
	}
}

// Side is the book side an update applies to.
type Side uint8

const (
	SideUndefined Side = iota
	SideBid
	SideAsk
)

// Valid reports whether s is bid or ask.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "undefined"
	}
}

// MarshalJSON encodes the side as its string name.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts "bid" or "ask".
func (s *Side) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "bid":
		*s = SideBid
	case "ask":
		*s = SideAsk
	default:
		return fmt.Errorf("domain: %w: %q", ErrUnknownSide, name)
	}
	return nil
}

// TickUpdate is one price level report. Quantity is the venue's current
// absolute resting size at that price, never a delta; zero means the level is
// gone on that venue.
type TickUpdate struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Side     Side    `json:"side"`
}

// WellFormed reports whether price and quantity are finite and the side is
// routable. Quantity may be zero or negative (a clear); the price must still
// be finite so the level key is meaningful.
func (u TickUpdate) WellFormed() bool {
	if !u.Side.Valid() {
		return false
	}
	if math.IsNaN(u.Price) || math.IsInf(u.Price, 0) {
		return false
	}
	if math.IsNaN(u.Quantity) || math.IsInf(u.Quantity, 0) {
		return false
	}
	return true
}

// TickBatch is a normalized update batch from one venue. Snapshot batches
// invalidate the venue's entire prior contribution on both sides before the
// contained updates are applied.
type TickBatch struct {
	Exchange   Venue        `json:"exchange"`
	Symbol     string       `json:"symbol"`
	SequenceID int64        `json:"sequence_id"`
	Snapshot   bool         `json:"snapshot,omitempty"`
	Updates    []TickUpdate `json:"updates"`
}
