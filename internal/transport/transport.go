// Package transport holds the opaque outbound boundaries: the remote
// webhook that answers user text, and the proof-of-identity ceremony.
// The core only sees success/failure and a reply string.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSendFailed wraps every transport-level send failure.
var ErrSendFailed = errors.New("transport send failed")

// Transport delivers one outbound text and returns the remote reply.
type Transport interface {
	// Send blocks until the remote end answers or fails. Timeouts are
	// the transport's own concern and surface as ordinary errors.
	Send(ctx context.Context, text, sessionID string) (string, error)
	Close() error
}

// Authenticator is the opaque biometric ceremony. On success it returns
// the attributes proven about the user.
type Authenticator interface {
	RequestProof(ctx context.Context) (map[string]any, error)
}

// envelope is the request/reply wire shape shared by both transports.
type envelope struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Dial picks a transport by URL scheme: ws:// and wss:// get the
// websocket transport, everything else the HTTP webhook.
func Dial(url string, opts Options) (Transport, error) {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return DialWebSocket(url, opts)
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return NewWebhook(url, opts), nil
	}
	return nil, fmt.Errorf("unsupported transport url %q", url)
}
