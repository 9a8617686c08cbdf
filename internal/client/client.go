// Package client implements the subscriber side of the book stream: a
// WebSocket client that performs the subscribe handshake and dispatches
// decoded frames to registered handlers, plus local views derived from the
// stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aggstream/aggbook/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// BatchHandler is called for every book update frame received on the stream.
type BatchHandler func(domain.TickBatch)

// StatusHandler is called for the status frame sent after the subscribe
// handshake is accepted.
type StatusHandler func(domain.StatusPayload)

// Client is a WebSocket subscriber to an aggregator's book stream. It manages
// the connection lifecycle and the subscribe handshake, and dispatches
// decoded frames to registered handlers.
type Client struct {
	wsURL  string
	symbol string
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool

	batchHandlers  []BatchHandler
	statusHandlers []StatusHandler
	handlerMu      sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}

	// readDone is closed when the read loop exits, whatever the cause.
	readDone chan struct{}
}

// New creates a subscriber for the given stream endpoint and symbol.
//
// wsURL is the aggregator's stream endpoint, e.g. "ws://localhost:8080/ws".
func New(wsURL, symbol string) *Client {
	return &Client{
		wsURL:    wsURL,
		symbol:   symbol,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// OnBatch registers a handler called for every book update frame.
func (c *Client) OnBatch(handler BatchHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.batchHandlers = append(c.batchHandlers, handler)
}

// OnStatus registers a handler called for the post-handshake status frame.
func (c *Client) OnStatus(handler StatusHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.statusHandlers = append(c.statusHandlers, handler)
}

// Connect dials the endpoint, sends the subscribe request, and starts the
// read and ping loops. The server answers an accepted subscription with a
// status frame and a rejected one with an error frame followed by a close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	req := domain.SubscribeRequest{Action: "subscribe", Symbol: c.symbol}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(req); err != nil {
		c.conn.Close()
		return fmt.Errorf("client: subscribe: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()

	return nil
}

// Done is closed once the read loop has stopped, either because Close was
// called or the server dropped the connection.
func (c *Client) Done() <-chan struct{} {
	return c.readDone
}

// Close shuts down the connection and stops the read loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}

	return nil
}

// readLoop continuously reads frames from the connection and dispatches them
// to the registered handlers. It runs in its own goroutine.
func (c *Client) readLoop() {
	defer close(c.readDone)
	defer func() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		c.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.readDone:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes an envelope and routes its payload by type.
func (c *Client) handleMessage(raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return // Silently drop unparseable frames.
	}

	switch env.Type {
	case domain.MsgBookUpdate:
		var batch domain.TickBatch
		if err := json.Unmarshal(env.Payload, &batch); err != nil {
			return
		}

		c.handlerMu.RLock()
		handlers := c.batchHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(batch)
		}

	case domain.MsgStatus:
		var status domain.StatusPayload
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			return
		}

		c.handlerMu.RLock()
		handlers := c.statusHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(status)
		}
	}
}
