package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
)

// EventConnectionLost is emitted locally once reconnection gives up. It never
// travels over the wire.
const EventConnectionLost entities.EventType = "connection_lost"

const (
	defaultDialTimeout   = 5 * time.Second
	defaultReconnectBase = time.Second
	defaultMaxReconnects = 5
	writeWait            = 10 * time.Second
	eventQueueSize       = 256
)

var (
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrClosed             = errors.New("transport closed")
	ErrNotConnected       = errors.New("transport not connected")
)

// TransportConfig controls dialing and reconnection
type TransportConfig struct {
	URL                  string
	DialTimeout          time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
}

func (c *TransportConfig) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
}

type outboundMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

// Transport keeps one logical connection to the voice server. Abnormal
// closes are retried with linear backoff; Close and a normal close from the
// server end the transport for good.
type Transport struct {
	config TransportConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	// events is owned by whichever read loop is current and closed by the
	// last one.
	events chan entities.Event
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	err    error
}

// Dial connects to the server. The first connection is not retried.
func Dial(ctx context.Context, config TransportConfig, logger *zap.Logger) (*Transport, error) {
	config.setDefaults()
	t := &Transport{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.DialTimeout},
		logger: logger,
		events: make(chan entities.Event, eventQueueSize),
		done:   make(chan struct{}),
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	go t.readLoop(conn)

	logger.Info("Connected to voice server", zap.String("url", config.URL))
	return t, nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.config.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// Events delivers server events in arrival order. The channel closes when
// the transport ends; Err reports why.
func (t *Transport) Events() <-chan entities.Event {
	return t.events
}

// Err returns ErrReconnectExhausted after reconnection gave up, nil otherwise.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transport) StartRecording() error {
	return t.send(outboundMessage{Type: "start_recording"})
}

func (t *Transport) SendAudio(chunk []byte) error {
	return t.send(outboundMessage{Type: "audio_chunk", Audio: base64.StdEncoding.EncodeToString(chunk)})
}

func (t *Transport) StopRecording() error {
	return t.send(outboundMessage{Type: "stop_recording"})
}

func (t *Transport) Ping() error {
	return t.send(outboundMessage{Type: "ping"})
}

func (t *Transport) send(msg outboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.err != nil {
		return t.err
	}
	if t.conn == nil {
		return ErrNotConnected
	}

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// Close performs a deliberate close. No reconnect follows.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	var err error
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return err
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event entities.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.logger.Warn("Failed to parse server event", zap.Error(err))
			continue
		}

		select {
		case t.events <- event:
		case <-t.done:
			close(t.events)
			conn.Close()
			return
		}
	}
}

func (t *Transport) handleDisconnect(conn *websocket.Conn, cause error) {
	conn.Close()

	t.mu.Lock()
	t.conn = nil
	closed := t.closed
	t.mu.Unlock()

	if closed || websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		t.logger.Info("Connection closed", zap.Bool("deliberate", closed))
		close(t.events)
		return
	}

	t.logger.Warn("Connection lost", zap.Error(cause))
	t.reconnect()
}

func (t *Transport) reconnect() {
	for attempt := 1; attempt <= t.config.MaxReconnectAttempts; attempt++ {
		delay := t.config.ReconnectBase * time.Duration(attempt)
		t.logger.Info("Reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.config.MaxReconnectAttempts),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-t.done:
			close(t.events)
			return
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			t.logger.Warn("Reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			close(t.events)
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.logger.Info("Reconnected", zap.Int("attempt", attempt))
		go t.readLoop(conn)
		return
	}

	t.mu.Lock()
	t.err = ErrReconnectExhausted
	t.mu.Unlock()

	t.logger.Error("Giving up on connection", zap.Int("attempts", t.config.MaxReconnectAttempts))
	select {
	case t.events <- entities.Event{Type: EventConnectionLost, Message: ErrReconnectExhausted.Error()}:
	case <-t.done:
	}
	close(t.events)
}
