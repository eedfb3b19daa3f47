package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Options configures a transport.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

// Webhook posts each outbound text to a remote HTTP endpoint and reads
// the reply from the response body.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhook creates an HTTP transport for the given endpoint.
func NewWebhook(url string, opts Options) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: opts.timeout()},
		logger:     opts.logger(),
	}
}

// Send posts {sessionId, message} and returns the reply string.
func (w *Webhook) Send(ctx context.Context, text, sessionID string) (string, error) {
	payload, err := json.Marshal(envelope{SessionID: sessionID, Message: text})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrSendFailed, err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s - %s", ErrSendFailed, resp.Status, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrSendFailed, err)
	}
	if env.Error != "" {
		return "", fmt.Errorf("%w: remote error: %s", ErrSendFailed, env.Error)
	}

	w.logger.Info("webhook reply received", "session_id", sessionID, "bytes", len(env.Reply))
	return env.Reply, nil
}

// Close is a no-op; the webhook holds no connection state.
func (w *Webhook) Close() error {
	return nil
}
