package client

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/aggstream/aggbook/internal/book"
	"github.com/aggstream/aggbook/internal/domain"
)

// DefaultVolumeThresholds are the notional boundaries reported by the volume
// band view when none are given.
var DefaultVolumeThresholds = []float64{1_000_000, 5_000_000, 10_000_000, 25_000_000, 50_000_000}

// DefaultPriceBandBps are the basis-point offsets reported by the price band
// view when none are given.
var DefaultPriceBandBps = []int{0, 50, 100, 200, 500, 1000}

// View consumes the book stream and maintains a derived read model. Each
// view owns a local replica of the consolidated book, rebuilt from the same
// batches the server applied.
type View interface {
	Apply(batch domain.TickBatch)
}

// BBOView tracks the best bid and ask and prints a line whenever either
// changes.
type BBOView struct {
	book *book.Book
	out  io.Writer

	lastBid book.Level
	lastAsk book.Level
}

// NewBBOView creates a best bid/offer view writing to out.
func NewBBOView(symbol string, out io.Writer) *BBOView {
	return &BBOView{book: book.New(symbol), out: out}
}

// Apply folds the batch into the local replica and prints the best bid and
// ask if either moved.
func (v *BBOView) Apply(batch domain.TickBatch) {
	if _, err := v.book.Apply(batch); err != nil {
		return
	}
	bid := v.book.BestBid()
	ask := v.book.BestAsk()
	if levelEq(bid, v.lastBid) && levelEq(ask, v.lastAsk) {
		return
	}
	v.lastBid = bid
	v.lastAsk = ask
	fmt.Fprintf(v.out, "%s bid %s ask %s\n", batch.Symbol, formatLevel(bid), formatLevel(ask))
}

func levelEq(a, b book.Level) bool {
	return domain.FloatEq(a.Price, b.Price) && domain.FloatEq(a.Total, b.Total)
}

func formatLevel(lvl book.Level) string {
	if lvl.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f x %.6f", lvl.Price, lvl.Total)
}

// VolumeBandView reports, per notional threshold, the price at which the
// cumulative notional from the best level crosses that threshold. A
// threshold the book is too shallow to reach prints as "-".
type VolumeBandView struct {
	book       *book.Book
	out        io.Writer
	thresholds []float64
}

// NewVolumeBandView creates a volume band view. Thresholds must be strictly
// ascending; nil selects DefaultVolumeThresholds.
func NewVolumeBandView(symbol string, thresholds []float64, out io.Writer) *VolumeBandView {
	if thresholds == nil {
		thresholds = DefaultVolumeThresholds
	}
	return &VolumeBandView{book: book.New(symbol), out: out, thresholds: thresholds}
}

// Apply folds the batch into the local replica and prints both sides' band
// boundaries.
func (v *VolumeBandView) Apply(batch domain.TickBatch) {
	if _, err := v.book.Apply(batch); err != nil {
		return
	}
	bids := v.book.VolumeBandBids(v.thresholds)
	asks := v.book.VolumeBandAsks(v.thresholds)
	fmt.Fprintf(v.out, "%s vol bids [%s] asks [%s]\n",
		batch.Symbol, formatBands(bids), formatBands(asks))
}

func formatBands(prices []float64) string {
	parts := make([]string, len(prices))
	for i, p := range prices {
		if p == book.BandNotReached {
			parts[i] = "-"
		} else {
			parts[i] = fmt.Sprintf("%.2f", p)
		}
	}
	return strings.Join(parts, " ")
}

// PriceBandView reports the best price on each side shifted by a set of
// basis-point offsets.
type PriceBandView struct {
	book *book.Book
	out  io.Writer
	bps  []int
}

// NewPriceBandView creates a price band view. Nil bps selects
// DefaultPriceBandBps.
func NewPriceBandView(symbol string, bps []int, out io.Writer) *PriceBandView {
	if bps == nil {
		bps = DefaultPriceBandBps
	}
	return &PriceBandView{book: book.New(symbol), out: out, bps: bps}
}

// Apply folds the batch into the local replica and prints the shifted prices
// for both sides. Bids shift downward and asks upward, so the bands widen
// away from the touch.
func (v *PriceBandView) Apply(batch domain.TickBatch) {
	if _, err := v.book.Apply(batch); err != nil {
		return
	}
	bid := v.book.BestBid()
	ask := v.book.BestAsk()
	if bid.Total == 0 && ask.Total == 0 {
		return
	}

	var bidBands, askBands []float64
	if bid.Total > 0 {
		bidBands = book.PriceBand(bid.Price, negateBps(v.bps))
	}
	if ask.Total > 0 {
		askBands = book.PriceBand(ask.Price, v.bps)
	}
	fmt.Fprintf(v.out, "%s px bids [%s] asks [%s]\n",
		batch.Symbol, formatPrices(bidBands), formatPrices(askBands))
}

func negateBps(bps []int) []int {
	out := make([]int, len(bps))
	for i, bp := range bps {
		out[i] = -bp
	}
	return out
}

func formatPrices(prices []float64) string {
	parts := make([]string, len(prices))
	for i, p := range prices {
		if math.IsNaN(p) {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%.2f", p)
	}
	return strings.Join(parts, " ")
}
