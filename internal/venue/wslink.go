package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the pause before a disconnected adapter redials.
	reconnectDelay = 2 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second
)

// wsLink wraps one gorilla WebSocket connection with deadline handling and a
// write mutex so the ping loop and the adapter can write concurrently.
type wsLink struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// dialLink opens the connection and arms the pong handler.
func dialLink(ctx context.Context, url string) (*wsLink, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("venue: dial %s: %w", url, err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsLink{conn: conn}, nil
}

// writeJSON marshals v and sends it as a text frame.
func (l *wsLink) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("venue: marshal: %w", err)
	}
	return l.writeText(data)
}

func (l *wsLink) writeText(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// read returns the next frame payload. Control frames are handled by gorilla
// (pings answered, pongs refresh the read deadline).
func (l *wsLink) read() ([]byte, error) {
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	_, data, err := l.conn.ReadMessage()
	return data, err
}

// pingLoop sends WebSocket-level pings until ctx is cancelled. Venues with
// application-level heartbeats (kraken, crypto.com) layer those on top.
func (l *wsLink) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.writeMu.Lock()
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := l.conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// close sends a close frame and tears the connection down.
func (l *wsLink) close() {
	l.writeMu.Lock()
	_ = l.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	l.writeMu.Unlock()
	_ = l.conn.Close()
}
