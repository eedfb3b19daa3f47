package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket is a request/reply transport over a single persistent
// websocket connection. Sends are serialized: one request is answered
// before the next is written.
type WebSocket struct {
	url    string
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// DialWebSocket connects to a ws:// or wss:// endpoint.
func DialWebSocket(url string, opts Options) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSendFailed, url, err)
	}
	logger := opts.logger()
	logger.Info("websocket transport connected", "url", url)
	return &WebSocket{url: url, conn: conn, logger: logger}, nil
}

// Send writes the envelope and blocks for the matching reply frame.
func (t *WebSocket) Send(ctx context.Context, text, sessionID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", fmt.Errorf("%w: transport closed", ErrSendFailed)
	}
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
		t.conn.SetReadDeadline(deadline)
	} else {
		// Deadlines stick to the connection; clear any left over from
		// an earlier deadline-bearing context.
		t.conn.SetWriteDeadline(time.Time{})
		t.conn.SetReadDeadline(time.Time{})
	}

	if err := t.conn.WriteJSON(envelope{SessionID: sessionID, Message: text}); err != nil {
		return "", fmt.Errorf("%w: write: %v", ErrSendFailed, err)
	}

	var env envelope
	if err := t.conn.ReadJSON(&env); err != nil {
		return "", fmt.Errorf("%w: read: %v", ErrSendFailed, err)
	}
	if env.Error != "" {
		return "", fmt.Errorf("%w: remote error: %s", ErrSendFailed, env.Error)
	}
	return env.Reply, nil
}

// Close sends a close frame and drops the connection.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.logger.Info("websocket transport closed", "url", t.url)
	return err
}
