// ABOUTME: WebSocket implementation of the Transport and Conn interfaces
// ABOUTME: Text frames over gorilla/websocket with a clean close handshake

package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/loom/internal/auth"
)

// wsTransport dials real websocket endpoints.
type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates the production transport. The
// handshake timeout bounds the TCP+TLS+upgrade portion of a dial; the
// manager's connect timeout bounds the attempt as a whole.
func NewWebSocketTransport(handshakeTimeout time.Duration) Transport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultConnectTimeout
	}
	return &wsTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	return &wsConn{c: c}, nil
}

// wsConn wraps a gorilla connection. Write serialization is the
// manager's job; this type only adapts the interface.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) Close() error {
	// Best effort close frame; the peer may already be gone.
	_ = w.c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.c.Close()
}

// isAuthRejection reports whether a read error represents the backend
// refusing our credentials. The backend signals this with a policy
// violation close code; the test transport wraps auth.ErrAuthRejected.
func isAuthRejection(err error) bool {
	if errors.Is(err, auth.ErrAuthRejected) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.ClosePolicyViolation
	}
	return false
}
