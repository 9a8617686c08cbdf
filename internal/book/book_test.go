package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aggstream/aggbook/internal/domain"
)

func batch(venue domain.Venue, snapshot bool, updates ...domain.TickUpdate) domain.TickBatch {
	return domain.TickBatch{
		Exchange: venue,
		Symbol:   "BTCUSDT",
		Snapshot: snapshot,
		Updates:  updates,
	}
}

func bid(price, qty float64) domain.TickUpdate {
	return domain.TickUpdate{Price: price, Quantity: qty, Side: domain.SideBid}
}

func ask(price, qty float64) domain.TickUpdate {
	return domain.TickUpdate{Price: price, Quantity: qty, Side: domain.SideAsk}
}

func TestAggregationBid(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false, bid(110000, 2.1), bid(120000, 2.3)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueKraken, false, bid(100000, 2.1), bid(120000, 1.1)))
	require.NoError(t, err)

	bb := b.BestBid()
	assert.InDelta(t, 120000.0, bb.Price, domain.Epsilon)
	assert.InDelta(t, 3.4, bb.Total, domain.Epsilon)
	assert.InDelta(t, 2.3, bb.ByVenue[domain.VenueBinance], domain.Epsilon)
	assert.InDelta(t, 1.1, bb.ByVenue[domain.VenueKraken], domain.Epsilon)
}

func TestAggregationAsk(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false,
		ask(100000, 1.2), ask(110000, 2.1), ask(120000, 2.3)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueKraken, false, ask(100000, 2.1), ask(120000, 1.1)))
	require.NoError(t, err)

	ba := b.BestAsk()
	assert.InDelta(t, 100000.0, ba.Price, domain.Epsilon)
	assert.InDelta(t, 3.3, ba.Total, domain.Epsilon)
	assert.InDelta(t, 1.2, ba.ByVenue[domain.VenueBinance], domain.Epsilon)
	assert.InDelta(t, 2.1, ba.ByVenue[domain.VenueKraken], domain.Epsilon)
}

func TestReapplyIsIdempotent(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false, bid(100000, 1.5)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueBinance, false, bid(100000, 1.5)))
	require.NoError(t, err)

	bb := b.BestBid()
	assert.InDelta(t, 1.5, bb.Total, domain.Epsilon)
	assert.InDelta(t, 100000*1.5, bb.Notional, 1e-6)
}

func TestCrossVenueMerge(t *testing.T) {
	b := New("BTCUSDT")

	// Each venue re-reports the same level several times; the total must
	// always be the sum of the latest report per venue.
	_, err := b.Apply(batch(domain.VenueBinance, false, bid(100000, 2.0)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueKraken, false, bid(100000, 3.0)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueBinance, false, bid(100000, 0.5)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueCryptocom, false, bid(100000, 1.0)))
	require.NoError(t, err)

	bb := b.BestBid()
	assert.InDelta(t, 4.5, bb.Total, domain.Epsilon)
	assert.InDelta(t, 0.5, bb.ByVenue[domain.VenueBinance], domain.Epsilon)
	assert.InDelta(t, 3.0, bb.ByVenue[domain.VenueKraken], domain.Epsilon)
	assert.InDelta(t, 1.0, bb.ByVenue[domain.VenueCryptocom], domain.Epsilon)
}

func TestZeroQuantityRemovesLevel(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false, bid(120000, 2.0), bid(110000, 1.0)))
	require.NoError(t, err)

	// Clearing the best level must surface the next one.
	_, err = b.Apply(batch(domain.VenueBinance, false, bid(120000, 0)))
	require.NoError(t, err)

	bb := b.BestBid()
	assert.InDelta(t, 110000.0, bb.Price, domain.Epsilon)
	bidDepth, _ := b.Depth()
	assert.Equal(t, 1, bidDepth)
}

func TestStaleClearForAbsentLevelIgnored(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false, bid(100000, 0)))
	require.NoError(t, err)

	bidDepth, askDepth := b.Depth()
	assert.Zero(t, bidDepth)
	assert.Zero(t, askDepth)
	assert.True(t, b.BestBid() == Level{})
}

func TestSnapshotClearsOnlyThatVenue(t *testing.T) {
	b := New("BTCUSDT")

	_, err := b.Apply(batch(domain.VenueBinance, false, bid(100000, 2.0), ask(101000, 1.0)))
	require.NoError(t, err)
	_, err = b.Apply(batch(domain.VenueKraken, false, bid(100000, 3.0), bid(99000, 1.0)))
	require.NoError(t, err)

	// Binance sends a fresh snapshot at a new level; its old contributions
	// must vanish while kraken's survive untouched.
	_, err = b.Apply(batch(domain.VenueBinance, true, bid(99500, 4.0)))
	require.NoError(t, err)

	bb := b.BestBid()
	assert.InDelta(t, 100000.0, bb.Price, domain.Epsilon)
	assert.InDelta(t, 3.0, bb.Total, domain.Epsilon)
	assert.Zero(t, bb.ByVenue[domain.VenueBinance])

	// Binance's ask side was cleared too and nothing replaced it.
	assert.True(t, b.BestAsk() == Level{})

	snap := b.Snapshot(0)
	require.Len(t, snap.Bids, 3)
	assert.InDelta(t, 99500.0, snap.Bids[1].Price, domain.Epsilon)
	assert.InDelta(t, 4.0, snap.Bids[1].PerVenue[domain.VenueBinance], domain.Epsilon)
}

func TestUnknownExchangeRejectsBatch(t *testing.T) {
	b := New("BTCUSDT")

	res, err := b.Apply(batch(domain.VenueCount, false, bid(100000, 1.0)))
	require.ErrorIs(t, err, domain.ErrUnknownExchange)
	assert.Equal(t, 1, res.Rejected)
	bidDepth, _ := b.Depth()
	assert.Zero(t, bidDepth)

	res, err = b.Apply(batch(domain.VenueUndefined, true, bid(100000, 1.0)))
	require.ErrorIs(t, err, domain.ErrUnknownExchange)
	assert.Equal(t, 1, res.Rejected)
}

func TestMalformedUpdateSkippedRestApplies(t *testing.T) {
	b := New("BTCUSDT")

	res, err := b.Apply(batch(domain.VenueBinance, false,
		bid(100000, 1.0),
		domain.TickUpdate{Price: 100500, Quantity: 1.0, Side: domain.SideUndefined},
		bid(101000, 2.0),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Rejected)
	bidDepth, _ := b.Depth()
	assert.Equal(t, 2, bidDepth)
}

func TestVolumeBandWalk(t *testing.T) {
	b := New("BTCUSDT")

	// Three bid levels; cumulative notional passes 1e6 only at the third.
	_, err := b.Apply(batch(domain.VenueBinance, false,
		bid(120000, 3.0), // 360k
		bid(119000, 3.0), // 717k cumulative
		bid(118000, 3.0), // 1.071m cumulative
	))
	require.NoError(t, err)

	bands := b.VolumeBandBids([]float64{1e6, 5e6})
	require.Len(t, bands, 2)
	assert.InDelta(t, 118000.0, bands[0], domain.Epsilon)
	assert.Equal(t, BandNotReached, bands[1])
}

func TestVolumeBandMultipleThresholdsOneLevel(t *testing.T) {
	b := New("BTCUSDT")

	// A single deep level can satisfy several thresholds at once.
	_, err := b.Apply(batch(domain.VenueBinance, false, ask(100000, 120.0))) // 12m
	require.NoError(t, err)

	bands := b.VolumeBandAsks([]float64{1e6, 5e6, 1e7, 2.5e7})
	assert.Equal(t, []float64{100000, 100000, 100000, BandNotReached}, bands)
}

func TestVolumeBandEmptyBook(t *testing.T) {
	b := New("BTCUSDT")
	bands := b.VolumeBandBids([]float64{1e6})
	assert.Equal(t, []float64{BandNotReached}, bands)
}

func TestPriceBand(t *testing.T) {
	got := PriceBand(100000, []int{0, 50, 100, -200})
	want := []float64{100000, 100500, 101000, 98000}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestPriceBandPreservesOffsetOrder(t *testing.T) {
	got := PriceBand(10000, []int{1000, 0, -1000})
	assert.Equal(t, []float64{11000, 10000, 9000}, got)
}

func TestClearVenueKeepsSharedLevels(t *testing.T) {
	l := NewLedger()
	l.Apply(domain.VenueBinance, 100000, 2.0)
	l.Apply(domain.VenueKraken, 100000, 1.0)
	l.Apply(domain.VenueBinance, 99000, 1.0)

	l.ClearVenue(domain.VenueBinance)

	require.Equal(t, 1, l.Len())
	lvl, ok := l.Highest()
	require.True(t, ok)
	assert.InDelta(t, 100000.0, lvl.Price, domain.Epsilon)
	assert.InDelta(t, 1.0, lvl.Total, domain.Epsilon)
	assert.Zero(t, lvl.ByVenue[domain.VenueBinance])
}
