package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn abstracts the WebSocket connection methods the session uses,
// enabling test mocks.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or a close/error.
	ReadMessage() ([]byte, error)
	// WriteJSON sends one JSON-encoded frame.
	WriteJSON(v any) error
	// Close writes a close frame with the given code, then releases the socket.
	Close(code int, reason string) error
}

// Dialer abstracts connection establishment, enabling test mocks.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production Dialer backed by gorilla/websocket.
type wsDialer struct{}

// NewDialer returns the production WebSocket dialer.
func NewDialer() Dialer {
	return wsDialer{}
}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// wsConn wraps *websocket.Conn to implement Conn. gorilla/websocket allows
// only one concurrent writer, so writeMu serializes the heartbeat goroutine
// and SendMessage over the same socket.
type wsConn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	// Best-effort close handshake; the socket is torn down regardless.
	w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.c.Close()
}

// closeCode extracts the closure code from a read error. Returns ok=false
// for transport errors that carried no close frame.
func closeCode(err error) (int, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// isTerminalClose reports whether a read error represents a closure after
// which no reconnect should be attempted.
func isTerminalClose(err error) bool {
	code, ok := closeCode(err)
	return ok && terminalCloseCodes[code]
}
