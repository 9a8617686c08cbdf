package client

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aggstream/aggbook/internal/domain"
)

func batch(venue domain.Venue, updates ...domain.TickUpdate) domain.TickBatch {
	return domain.TickBatch{
		Exchange: venue,
		Symbol:   "BTCUSDT",
		Updates:  updates,
	}
}

func bid(price, qty float64) domain.TickUpdate {
	return domain.TickUpdate{Price: price, Quantity: qty, Side: domain.SideBid}
}

func ask(price, qty float64) domain.TickUpdate {
	return domain.TickUpdate{Price: price, Quantity: qty, Side: domain.SideAsk}
}

func TestBBOViewPrintsOnChange(t *testing.T) {
	var out bytes.Buffer
	v := NewBBOView("BTCUSDT", &out)

	v.Apply(batch(domain.VenueBinance, bid(120000, 1.5), ask(120010, 2.0)))
	require.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "120000.00 x 1.500000")
	assert.Contains(t, out.String(), "120010.00 x 2.000000")

	// A batch that leaves the touch untouched prints nothing.
	v.Apply(batch(domain.VenueKraken, bid(119000, 4.0)))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	// Moving the best bid prints again.
	v.Apply(batch(domain.VenueKraken, bid(120001, 0.5)))
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "120001.00 x 0.500000")
}

func TestBBOViewEmptySidePrintsDash(t *testing.T) {
	var out bytes.Buffer
	v := NewBBOView("BTCUSDT", &out)

	v.Apply(batch(domain.VenueBinance, bid(120000, 1.0)))
	assert.Contains(t, out.String(), "ask -")
}

func TestVolumeBandViewReportsBoundaries(t *testing.T) {
	var out bytes.Buffer
	v := NewVolumeBandView("BTCUSDT", []float64{100_000, 500_000}, &out)

	// 3.0 @ 120000 = 360k notional: crosses the first threshold only.
	v.Apply(batch(domain.VenueBinance, bid(120000, 3.0)))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "bids [120000.00 -]")

	// Deepening the book reaches the second threshold.
	v.Apply(batch(domain.VenueKraken, bid(119000, 3.0)))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "bids [120000.00 119000.00]")
}

func TestVolumeBandViewDefaults(t *testing.T) {
	v := NewVolumeBandView("BTCUSDT", nil, &bytes.Buffer{})
	assert.Equal(t, DefaultVolumeThresholds, v.thresholds)
}

func TestPriceBandViewShiftsFromTouch(t *testing.T) {
	var out bytes.Buffer
	v := NewPriceBandView("BTCUSDT", []int{0, 100}, &out)

	v.Apply(batch(domain.VenueBinance, bid(100000, 1.0), ask(100100, 1.0)))
	line := strings.TrimSpace(out.String())
	// Bids shift down by 1%, asks up by 1%.
	assert.Contains(t, line, "bids [100000.00 99000.00]")
	assert.Contains(t, line, "asks [100100.00 101101.00]")
}

func TestViewsIgnoreRejectedBatches(t *testing.T) {
	var out bytes.Buffer
	v := NewBBOView("BTCUSDT", &out)

	v.Apply(domain.TickBatch{
		Exchange: domain.Venue(99),
		Symbol:   "BTCUSDT",
		Updates:  []domain.TickUpdate{bid(120000, 1.0)},
	})
	assert.Empty(t, out.String())
}
