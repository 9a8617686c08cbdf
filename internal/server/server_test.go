package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aggstream/aggbook/internal/domain"
	"github.com/aggstream/aggbook/internal/server/ws"
)

type fixedSnapshot struct {
	snap domain.BookSnapshot
}

func (f fixedSnapshot) Snapshot() domain.BookSnapshot { return f.snap }

func testSnapshot() domain.BookSnapshot {
	bids := []domain.LevelSnapshot{
		{Price: 120000, Quantity: 3.0, Notional: 360000},
		{Price: 119000, Quantity: 3.0, Notional: 357000},
		{Price: 118000, Quantity: 3.0, Notional: 354000},
	}
	asks := []domain.LevelSnapshot{
		{Price: 120010, Quantity: 1.0, Notional: 120010},
	}
	return domain.BookSnapshot{
		Symbol:    "BTCUSDT",
		Bids:      bids,
		Asks:      asks,
		BestBid:   bids[0],
		BestAsk:   asks[0],
		UpdatedAt: time.Now().UTC(),
	}
}

func newTestServer(t *testing.T, snap domain.BookSnapshot) *httptest.Server {
	return newTestServerWithMirror(t, snap, nil)
}

func newTestServerWithMirror(t *testing.T, snap domain.BookSnapshot, mirror domain.BookMirror) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	hub := ws.NewHub(ws.Config{Symbol: snap.Symbol}, logger)
	srv := New(Config{Port: 0}, fixedSnapshot{snap}, hub, mirror, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// fakeMirror serves a canned snapshot for read-through tests.
type fakeMirror struct {
	snap domain.BookSnapshot
	err  error
}

func (f fakeMirror) SetSnapshot(ctx context.Context, symbol string, snap domain.BookSnapshot) error {
	return nil
}

func (f fakeMirror) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	return f.snap, f.err
}

func (f fakeMirror) PublishBatch(ctx context.Context, symbol string, payload []byte) error {
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	var body map[string]any
	code := getJSON(t, ts.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestBookEndpointServesSnapshot(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	var snap domain.BookSnapshot
	code := getJSON(t, ts.URL+"/api/book", &snap)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	require.Len(t, snap.Bids, 3)
	assert.InDelta(t, 120000.0, snap.Bids[0].Price, 1e-9)
}

func TestBookEndpointFallsBackToMirrorWhenEmpty(t *testing.T) {
	empty := domain.BookSnapshot{Symbol: "BTCUSDT", UpdatedAt: time.Now().UTC()}
	ts := newTestServerWithMirror(t, empty, fakeMirror{snap: testSnapshot()})

	var snap domain.BookSnapshot
	code := getJSON(t, ts.URL+"/api/book", &snap)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, snap.Bids, 3)
	assert.InDelta(t, 120000.0, snap.Bids[0].Price, 1e-9)
}

func TestBookEndpointPrefersLocalSnapshot(t *testing.T) {
	mirrored := testSnapshot()
	mirrored.Bids[0].Price = 1 // would be visible if the mirror won
	ts := newTestServerWithMirror(t, testSnapshot(), fakeMirror{snap: mirrored})

	var snap domain.BookSnapshot
	code := getJSON(t, ts.URL+"/api/book", &snap)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 120000.0, snap.Bids[0].Price, 1e-9)
}

func TestBookEndpointServesEmptyWhenMirrorMisses(t *testing.T) {
	empty := domain.BookSnapshot{Symbol: "BTCUSDT", UpdatedAt: time.Now().UTC()}
	ts := newTestServerWithMirror(t, empty, fakeMirror{err: domain.ErrNotFound})

	var snap domain.BookSnapshot
	code := getJSON(t, ts.URL+"/api/book", &snap)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestBBOEndpoint(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	var body struct {
		Symbol  string               `json:"symbol"`
		BestBid domain.LevelSnapshot `json:"best_bid"`
		BestAsk domain.LevelSnapshot `json:"best_ask"`
	}
	code := getJSON(t, ts.URL+"/api/bbo", &body)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 120000.0, body.BestBid.Price, 1e-9)
	assert.InDelta(t, 120010.0, body.BestAsk.Price, 1e-9)
}

func TestVolumeBandEndpoint(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	var body struct {
		Prices []float64 `json:"prices"`
	}
	code := getJSON(t, ts.URL+"/api/bands/volume?side=bid&thresholds=500000,1000000,5000000", &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Prices, 3)
	// Cumulative notional: 360000, 717000, 1071000.
	assert.InDelta(t, 119000.0, body.Prices[0], 1e-9)
	assert.InDelta(t, 118000.0, body.Prices[1], 1e-9)
	assert.Zero(t, body.Prices[2], "unreached threshold reports the sentinel")
}

func TestVolumeBandEndpointValidation(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, ts.URL+"/api/bands/volume?side=sideways&thresholds=1", nil))
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, ts.URL+"/api/bands/volume?side=bid", nil))
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, ts.URL+"/api/bands/volume?side=bid&thresholds=5,1", nil))
}

func TestPriceBandEndpoint(t *testing.T) {
	ts := newTestServer(t, testSnapshot())

	var body struct {
		Anchor float64   `json:"anchor"`
		Prices []float64 `json:"prices"`
	}
	code := getJSON(t, ts.URL+"/api/bands/price?side=ask&bps=0,100", &body)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 120010.0, body.Anchor, 1e-9)
	require.Len(t, body.Prices, 2)
	assert.InDelta(t, 120010.0, body.Prices[0], 1e-9)
	assert.InDelta(t, 121210.1, body.Prices[1], 1e-9)
}

func TestPriceBandEndpointEmptySide(t *testing.T) {
	snap := testSnapshot()
	snap.Asks = nil
	snap.BestAsk = domain.LevelSnapshot{}
	ts := newTestServer(t, snap)

	assert.Equal(t, http.StatusNotFound,
		getJSON(t, ts.URL+"/api/bands/price?side=ask&bps=0", nil))
}
