package websocket

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/internal/metrics"
	"github.com/satriahrh/flightvoice/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per connection before senders block.
	sendQueueSize = 256

	defaultMaxMessageBytes = 1 << 20
	defaultPipelineTimeout = 2 * time.Minute
)

// Client-facing messages for session-level rejections.
const (
	msgBusy             = "Already processing a previous request"
	msgInvalidAudio     = "Invalid audio payload"
	msgAudioTooLarge    = "Recording exceeds the maximum audio size"
	msgRecordingExpired = "Recording exceeded the maximum duration"
	msgPipelineFailed   = "Failed to process audio"
)

// UtteranceProcessor runs the pipeline for one recording
type UtteranceProcessor interface {
	ProcessUtterance(ctx context.Context, audio []byte, emit usecase.Emitter) error
}

// HubConfig tunes per-connection limits
type HubConfig struct {
	MaxMessageBytes        int64
	MaxAudioBytes          int
	MaxConcurrentPipelines int // 0 = unlimited
	PipelineTimeout        time.Duration
	AllowedOrigins         []string // empty = any origin
}

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	processor UtteranceProcessor
	pipelines *semaphore.Weighted
	config    HubConfig
	upgrader  websocket.Upgrader
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// ctx is the parent of every connection context; set by Run.
	ctx  context.Context
	done chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(processor UtteranceProcessor, config HubConfig, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaultMaxMessageBytes
	}
	if config.PipelineTimeout <= 0 {
		config.PipelineTimeout = defaultPipelineTimeout
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		processor:  processor,
		config:     config,
		metrics:    m,
		logger:     logger,
		ctx:        context.Background(),
		done:       make(chan struct{}),
	}
	if config.MaxConcurrentPipelines > 0 {
		h.pipelines = semaphore.NewWeighted(int64(config.MaxConcurrentPipelines))
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// Run starts the hub's main loop. It returns once ctx is done, after
// cancelling every connection.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.session.ID] = client
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered", zap.String("sessionID", client.session.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.session.ID]; ok {
				delete(h.clients, client.session.ID)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			client.cancel()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.session.ID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.cancel()
				delete(h.clients, id)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ActiveClients returns the number of registered connections
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.config.AllowedOrigins, origin)
}

// WriteData is one outbound frame
type WriteData struct {
	// Type is websocket.TextMessage or websocket.CloseMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. It is never closed; writers
	// stop on ctx instead.
	send chan WriteData

	session *entities.Session

	// ctx ends when the connection goes away.
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	h.mu.RLock()
	parent := h.ctx
	h.mu.RUnlock()
	ctx, cancel := context.WithCancel(parent)

	session := entities.NewSession(uuid.NewString(), h.config.MaxAudioBytes)
	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan WriteData, sendQueueSize),
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		logger:  h.logger.With(zap.String("sessionID", session.ID)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.hub.metrics.RecordInvalidMessage()
			c.logger.Warn("Ignoring non-text frame", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// emit queues one event for delivery. It blocks while the queue is full and
// fails once ctx or the connection is done.
func (c *Client) emit(ctx context.Context, event entities.Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Client) reply(event entities.Event) {
	if err := c.emit(c.ctx, event); err != nil {
		c.logger.Debug("Dropped reply on closed connection", zap.String("type", string(event.Type)))
	}
}

// processMessage applies one client message to the session state machine.
func (c *Client) processMessage(data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		c.hub.metrics.RecordInvalidMessage()
		if errors.Is(err, ErrInvalidAudio) {
			c.reply(entities.ErrorEvent(msgInvalidAudio))
			return
		}
		c.logger.Warn("Ignoring message", zap.Error(err))
		return
	}
	c.hub.metrics.RecordMessage(string(msg.Type))

	switch msg.Type {
	case MessageTypePing:
		c.reply(entities.Event{Type: entities.EventPong})
	case MessageTypeStartRecording:
		c.handleStartRecording()
	case MessageTypeAudioChunk:
		c.handleAudioChunk(msg)
	case MessageTypeStopRecording:
		c.handleStopRecording()
	}
}

func (c *Client) handleStartRecording() {
	if err := c.session.StartRecording(); err != nil {
		c.rejectBusy(err)
		return
	}
	c.logger.Debug("Recording started")
	c.reply(entities.Event{Type: entities.EventRecordingStarted})
}

func (c *Client) handleAudioChunk(msg ClientMessage) {
	audio, err := msg.AudioBytes()
	if err != nil {
		c.hub.metrics.RecordInvalidMessage()
		c.logger.Warn("Invalid audio chunk", zap.Error(err))
		c.reply(entities.ErrorEvent(msgInvalidAudio))
		return
	}

	switch err := c.session.AppendChunk(audio); {
	case err == nil:
	case errors.Is(err, entities.ErrNotRecording):
		c.logger.Debug("Ignoring audio chunk outside a recording", zap.Int("size", len(audio)))
	case errors.Is(err, entities.ErrAudioTooLarge):
		c.logger.Warn("Recording aborted", zap.Error(err))
		c.reply(entities.ErrorEvent(msgAudioTooLarge))
	default:
		c.logger.Error("Failed to buffer audio chunk", zap.Error(err))
	}
}

func (c *Client) handleStopRecording() {
	audio, err := c.session.StopRecording()
	switch {
	case err == nil:
	case errors.Is(err, entities.ErrSessionBusy):
		c.rejectBusy(err)
		return
	default:
		c.logger.Debug("Nothing to process", zap.Error(err))
		return
	}

	c.logger.Info("Recording stopped", zap.Int("audioSize", len(audio)))
	if err := c.emit(c.ctx, entities.Event{Type: entities.EventProcessingStarted}); err != nil {
		c.session.Finish()
		return
	}
	go c.runPipeline(audio)
}

func (c *Client) rejectBusy(err error) {
	c.hub.metrics.RecordBusyRejection()
	c.logger.Info("Rejected request while busy", zap.Error(err))
	c.reply(entities.ErrorEvent(msgBusy))
}

// runPipeline processes one utterance and always returns the session to idle.
func (c *Client) runPipeline(audio []byte) {
	defer c.session.Finish()

	if sem := c.hub.pipelines; sem != nil {
		if err := sem.Acquire(c.ctx, 1); err != nil {
			c.logger.Info("Connection closed while waiting for a pipeline slot")
			return
		}
		defer sem.Release(1)
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.hub.config.PipelineTimeout)
	defer cancel()

	err := c.hub.processor.ProcessUtterance(ctx, audio, c.emit)
	var pipelineErr *usecase.PipelineError
	switch {
	case err == nil:
	case errors.As(err, &pipelineErr):
		c.logger.Warn("Utterance failed", zap.Error(err))
	case c.ctx.Err() != nil:
		c.logger.Info("Connection closed during processing")
	default:
		// the run ended without a terminal event, typically on timeout
		c.logger.Error("Utterance abandoned", zap.Error(err))
		c.reply(entities.ErrorEvent(msgPipelineFailed))
	}
}

// expireRecordings aborts recordings older than maxDuration and tells the
// clients. It returns the number of sessions reset.
func (h *Hub) expireRecordings(maxDuration time.Duration) int {
	cutoff := time.Now().Add(-maxDuration)
	expired := 0
	for _, c := range h.snapshot() {
		if !c.session.ExpireRecording(cutoff) {
			continue
		}
		expired++
		c.logger.Warn("Recording expired", zap.Duration("maxDuration", maxDuration))
		go c.reply(entities.ErrorEvent(msgRecordingExpired))
	}
	return expired
}
