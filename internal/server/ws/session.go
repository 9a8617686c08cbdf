package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aggstream/aggbook/internal/domain"
)

// State is the lifecycle phase of a subscriber session.
type State int32

const (
	// StateCreated: the connection is upgraded, the subscribe request has
	// not arrived yet.
	StateCreated State = iota

	// StateAccepted: the subscribe request was accepted and the session is
	// registered with the hub; transitions to StateIdle once the pump runs.
	StateAccepted

	// StateIdle: no write in flight, queue empty.
	StateIdle

	// StateWriting: exactly one outbound frame is in flight.
	StateWriting

	// StateFinished: terminal. The session is out of the hub and its
	// connection closed; no further transitions occur.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAccepted:
		return "accepted"
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for traffic from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// subscribeWait bounds how long a created session may sit without
	// sending its subscribe request.
	subscribeWait = 30 * time.Second

	// maxMessageSize is the maximum size of an incoming client frame.
	maxMessageSize = 4096
)

// Session is one subscriber connection. Its outbound queue is strictly FIFO
// and drained by a single pump goroutine, so at most one write is ever in
// flight; a slow subscriber grows its own queue without touching peers or
// the ingest path.
type Session struct {
	ID uuid.UUID

	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	mu    sync.Mutex
	state State
	queue [][]byte

	// wake nudges the pump after an enqueue; done unblocks it on finish.
	wake chan struct{}
	done chan struct{}

	finishOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	id := uuid.New()
	return &Session{
		ID:     id,
		hub:    hub,
		conn:   conn,
		logger: hub.logger.With(slog.String("session", id.String())),
		state:  StateCreated,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QueueLen returns the number of frames waiting to be written.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// enqueue appends one pre-encoded frame to the outbound queue and wakes the
// pump. Overflow beyond the hub's queue bound finishes the session: dropping
// individual frames would hand the subscriber a silently reordered stream,
// disconnecting it keeps every delivered stream prefix-consistent.
func (s *Session) enqueue(data []byte) error {
	s.mu.Lock()
	if s.state == StateFinished || s.state == StateCreated {
		s.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if len(s.queue) >= s.hub.maxQueue {
		s.mu.Unlock()
		s.finish(fmt.Errorf("ws: %w", domain.ErrSlowConsumer))
		return domain.ErrSlowConsumer
	}
	s.queue = append(s.queue, data)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// writePump drains the queue one frame at a time: pop only after the write
// completed, start the next immediately if more are queued, otherwise fall
// back to idle. It also carries the keepalive pings, so every write on the
// connection goes through this goroutine.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		if s.state == StateFinished {
			s.mu.Unlock()
			return
		}
		var head []byte
		if len(s.queue) > 0 {
			head = s.queue[0]
			s.state = StateWriting
		} else {
			s.state = StateIdle
		}
		s.mu.Unlock()

		if head == nil {
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			case <-ticker.C:
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.finish(err)
					return
				}
				continue
			}
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, head); err != nil {
			s.finish(err)
			return
		}

		// finish may have nilled the queue while the write was in flight;
		// pop only what is still there.
		s.mu.Lock()
		if s.state != StateFinished && len(s.queue) > 0 {
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
	}
}

// readPump consumes client frames after acceptance. The protocol defines no
// client messages beyond the subscribe request, so frames are discarded; the
// read's real job is detecting peer disconnect.
func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			s.finish(err)
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// finish moves the session to its terminal state exactly once: it leaves the
// hub, unblocks the pump, and closes the connection. In-flight writes are
// abandoned, never retried.
func (s *Session) finish(cause error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateFinished
		s.queue = nil
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()

		if prev != StateCreated {
			s.hub.unregister(s)
		}
		s.logger.Info("ws: session finished",
			slog.String("from_state", prev.String()),
			slog.String("cause", causeString(cause)),
		)
	})
}

func causeString(err error) string {
	if err == nil {
		return "shutdown"
	}
	return err.Error()
}
