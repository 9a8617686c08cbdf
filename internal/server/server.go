// Package server exposes the aggregator's HTTP surface: the streaming
// WebSocket endpoint, read-only book queries over the loop-published
// snapshot, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aggstream/aggbook/internal/book"
	"github.com/aggstream/aggbook/internal/domain"
	"github.com/aggstream/aggbook/internal/server/middleware"
	"github.com/aggstream/aggbook/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port int
}

// SnapshotSource supplies the most recent consolidated book snapshot.
type SnapshotSource interface {
	Snapshot() domain.BookSnapshot
}

// Server is the HTTP + WebSocket front of the aggregator.
type Server struct {
	httpServer *http.Server
	mirror     domain.BookMirror
	logger     *slog.Logger
}

// New registers all routes and builds the server. mirror may be nil; when
// set, the book query falls back to the mirrored snapshot while the local
// one is still empty. Failure to bind the listening port is the process's
// only fatal runtime condition and surfaces from Start.
func New(cfg Config, snaps SnapshotSource, hub *ws.Hub, mirror domain.BookMirror, logger *slog.Logger) *Server {
	s := &Server{
		mirror: mirror,
		logger: logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth(hub))
	mux.HandleFunc("GET /api/book", s.handleBook(snaps))
	mux.HandleFunc("GET /api/bbo", s.handleBBO(snaps))
	mux.HandleFunc("GET /api/bands/volume", s.handleVolumeBands(snaps))
	mux.HandleFunc("GET /api/bands/price", s.handlePriceBands(snaps))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.HandleWS)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins listening. It blocks until the server errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"subscribers": hub.Count(),
		})
	}
}

// handleBook serves the depth-limited consolidated snapshot. A freshly
// restarted process has an empty local book until the first batch applies;
// with a mirror configured, the last mirrored snapshot bridges that gap.
// GET /api/book
func (s *Server) handleBook(snaps SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := snaps.Snapshot()
		if len(snap.Bids) == 0 && len(snap.Asks) == 0 && s.mirror != nil {
			mirrored, err := s.mirror.GetSnapshot(r.Context(), snap.Symbol)
			if err == nil {
				s.writeJSON(w, http.StatusOK, mirrored)
				return
			}
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("mirror snapshot lookup failed", slog.String("error", err.Error()))
			}
		}
		s.writeJSON(w, http.StatusOK, snap)
	}
}

// handleBBO serves the best bid and ask.
// GET /api/bbo
func (s *Server) handleBBO(snaps SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := snaps.Snapshot()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"symbol":     snap.Symbol,
			"best_bid":   snap.BestBid,
			"best_ask":   snap.BestAsk,
			"updated_at": snap.UpdatedAt,
		})
	}
}

// handleVolumeBands walks the snapshot's levels from the best price outward
// and reports the boundary price per notional threshold. Boundaries are
// bounded by the snapshot depth; unreached thresholds report the sentinel 0.
// GET /api/bands/volume?side=bid&thresholds=1000000,5000000
func (s *Server) handleVolumeBands(snaps SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side := r.URL.Query().Get("side")
		if side != "bid" && side != "ask" {
			s.writeError(w, http.StatusBadRequest, "side must be bid or ask")
			return
		}
		thresholds, err := parseFloats(r.URL.Query().Get("thresholds"))
		if err != nil || len(thresholds) == 0 {
			s.writeError(w, http.StatusBadRequest, "thresholds must be a comma-separated float list")
			return
		}
		if !strictlyAscending(thresholds) {
			s.writeError(w, http.StatusBadRequest, "thresholds must be strictly ascending")
			return
		}

		snap := snaps.Snapshot()
		levels := snap.Bids
		if side == "ask" {
			levels = snap.Asks
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"symbol":     snap.Symbol,
			"side":       side,
			"thresholds": thresholds,
			"prices":     snapshotVolumeBands(levels, thresholds),
		})
	}
}

// handlePriceBands shifts the chosen side's best price by each basis-point
// offset.
// GET /api/bands/price?side=bid&bps=0,50,100
func (s *Server) handlePriceBands(snaps SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side := r.URL.Query().Get("side")
		if side != "bid" && side != "ask" {
			s.writeError(w, http.StatusBadRequest, "side must be bid or ask")
			return
		}
		bps, err := parseInts(r.URL.Query().Get("bps"))
		if err != nil || len(bps) == 0 {
			s.writeError(w, http.StatusBadRequest, "bps must be a comma-separated integer list")
			return
		}

		snap := snaps.Snapshot()
		anchor := snap.BestBid
		if side == "ask" {
			anchor = snap.BestAsk
		}
		if anchor.Empty() {
			s.writeError(w, http.StatusNotFound, "book side is empty")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"symbol": snap.Symbol,
			"side":   side,
			"anchor": anchor.Price,
			"bps":    bps,
			"prices": book.PriceBand(anchor.Price, bps),
		})
	}
}

// snapshotVolumeBands mirrors the book's band walk over an already-ordered
// snapshot slice (best price first).
func snapshotVolumeBands(levels []domain.LevelSnapshot, thresholds []float64) []float64 {
	prices := make([]float64, len(thresholds))
	var accum float64
	idx := 0
	for _, lvl := range levels {
		accum += lvl.Notional
		for idx < len(thresholds) && accum >= thresholds[idx] {
			prices[idx] = lvl.Price
			idx++
		}
		if idx == len(thresholds) {
			break
		}
	}
	return prices
}

func parseFloats(raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseInts(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func strictlyAscending(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return false
		}
	}
	return true
}
