// Package ws implements the streaming fanout: a hub that tracks live
// subscriber sessions and pushes every consolidated update to all of them,
// and a per-session state machine that serializes writes so one slow
// consumer can never stall the ingest path or its peers.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aggstream/aggbook/internal/domain"
	"github.com/aggstream/aggbook/internal/metrics"
)

// defaultMaxQueue bounds a session's outbound queue when no limit is
// configured.
const defaultMaxQueue = 4096

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Subscribers are unauthenticated by design; any origin may connect.
		return true
	},
}

// Config holds the hub's runtime parameters.
type Config struct {
	// Symbol is the one symbol this process serves; subscribe requests for
	// anything else are rejected.
	Symbol string

	// MaxQueue is the per-session outbound queue bound; 0 uses the default.
	MaxQueue int
}

// Hub owns the set of live subscriber sessions. Registration and removal are
// driven by session lifecycle events and are safe while a broadcast is in
// progress: a session registered mid-broadcast sees only frames enqueued
// after registration, a removed one is skipped for any further delivery.
type Hub struct {
	symbol    string
	maxQueue  int
	logger    *slog.Logger
	startedAt time.Time

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub creates a hub serving the given symbol.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueue
	}
	return &Hub{
		symbol:    cfg.Symbol,
		maxQueue:  maxQueue,
		logger:    logger.With(slog.String("component", "ws_hub")),
		startedAt: time.Now().UTC(),
		sessions:  make(map[*Session]struct{}),
	}
}

// Run blocks until ctx is cancelled, then finishes every live session.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.finish(nil)
	}
	return ctx.Err()
}

// Broadcast enqueues one pre-encoded frame onto every registered session.
// It never blocks: enqueue is an append under the session lock, and a
// session that cannot keep up is finished by its own overflow policy.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.enqueue(payload); err != nil {
			if errors.Is(err, domain.ErrSlowConsumer) {
				metrics.SlowConsumerDisconnects.Inc()
			}
			continue
		}
		metrics.BroadcastFrames.Inc()
	}
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleWS upgrades the request and runs the subscription handshake: the
// client's first frame must be a subscribe request for the served symbol.
// On acceptance the session joins the hub, receives a status envelope, and
// its pumps take over.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := newSession(h, conn)
	go h.accept(s)
}

// accept drives CREATED -> ACCEPTED. The HTTP server keeps accepting other
// subscribers concurrently, so a stalled handshake holds up nobody.
func (h *Hub) accept(s *Session) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(subscribeWait))

	var req domain.SubscribeRequest
	if err := s.conn.ReadJSON(&req); err != nil {
		s.finish(err)
		return
	}
	if req.Action != "subscribe" || req.Symbol != h.symbol {
		h.reject(s, req.Symbol)
		return
	}

	s.mu.Lock()
	s.state = StateAccepted
	s.mu.Unlock()

	// First queued frame: the status envelope, so the client can mark the
	// stream healthy before market data flows. Queued before registration,
	// since a broadcast may land the moment the session joins the hub.
	if status, err := domain.NewEnvelope(domain.MsgStatus, domain.StatusPayload{
		Symbol:        h.symbol,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Subscribers:   h.Count() + 1,
	}); err == nil {
		_ = s.enqueue(status)
	}
	h.register(s)

	go s.writePump()
	go s.readPump()
}

// reject answers an unacceptable subscribe request and closes the stream.
// The session was never registered, so no pump is running and a direct
// write is safe.
func (h *Hub) reject(s *Session, symbol string) {
	h.logger.Warn("ws: subscribe rejected",
		slog.String("requested_symbol", symbol),
		slog.String("served_symbol", h.symbol),
	)
	if frame, err := domain.NewEnvelope(domain.MsgError, domain.ErrorPayload{
		Message: domain.ErrSymbolMismatch.Error() + ": " + symbol,
	}); err == nil {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.TextMessage, frame)
	}
	s.finish(domain.ErrSymbolMismatch)
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(total))
	h.logger.Info("ws: subscriber connected",
		slog.String("session", s.ID.String()),
		slog.Int("total_subscribers", total),
	)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.Subscribers.Set(float64(total))
	h.logger.Info("ws: subscriber disconnected",
		slog.String("session", s.ID.String()),
		slog.Int("total_subscribers", total),
	)
}
