package netmon

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/possync/internal/config"
	"github.com/TheMichaelB/possync/internal/events"
)

// WSMonitor derives connectivity from a lightweight websocket held
// open against the server's presence endpoint. An established
// connection means online; a dial or read failure means offline,
// followed by reconnect attempts with capped backoff.
type WSMonitor struct {
	*Manual

	url       string
	token     string
	logger    *events.Logger
	reconnMin time.Duration
	reconnMax time.Duration
}

// NewWSMonitor creates a websocket-backed monitor. The state starts
// offline until the first successful dial.
func NewWSMonitor(cfg *config.Config, logger *events.Logger) *WSMonitor {
	url := cfg.API.BaseURL
	if len(url) > 4 && url[:4] == "http" {
		url = "ws" + url[4:] // Convert http(s) to ws(s)
	}

	return &WSMonitor{
		Manual:    NewManual(false),
		url:       url + cfg.API.PresencePath,
		token:     cfg.API.Token,
		logger:    logger.WithField("component", "ws_monitor"),
		reconnMin: cfg.Sync.ReconnectMin,
		reconnMax: cfg.Sync.ReconnectMax,
	}
}

// Run maintains the presence connection until ctx is cancelled.
func (m *WSMonitor) Run(ctx context.Context) {
	delay := m.reconnMin

	for {
		if err := m.connectAndRead(ctx); err != nil {
			m.logger.WithError(err).Debug("Presence connection lost")
		}

		// A completed connection resets the backoff.
		if m.IsOnline() {
			delay = m.reconnMin
		}

		m.SetOnline(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > m.reconnMax {
			delay = m.reconnMax
		}
	}
}

// connectAndRead dials the presence endpoint and blocks reading until
// the connection drops. A successful dial resets the backoff via the
// caller observing online state.
func (m *WSMonitor) connectAndRead(ctx context.Context) error {
	headers := http.Header{}
	if m.token != "" {
		headers.Set("Authorization", "Bearer "+m.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, m.url, headers)
	if err != nil {
		if resp != nil {
			m.logger.WithField("status", resp.StatusCode).Debug("Presence dial rejected")
		}
		return err
	}
	defer conn.Close()

	m.logger.Info("Presence connection established")
	m.SetOnline(true)

	// Close the connection when ctx is cancelled so ReadMessage returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		// Presence frames carry no payload the client acts on; the
		// read only detects disconnection.
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}
