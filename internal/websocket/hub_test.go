package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
	"github.com/satriahrh/flightvoice/internal/metrics"
	"github.com/satriahrh/flightvoice/usecase"
)

// fakeProcessor records each utterance and replays canned events.
type fakeProcessor struct {
	mu      sync.Mutex
	audios  [][]byte
	started chan struct{}
	release chan struct{}
	events  []entities.Event
}

func (p *fakeProcessor) ProcessUtterance(ctx context.Context, audio []byte, emit usecase.Emitter) error {
	p.mu.Lock()
	p.audios = append(p.audios, audio)
	p.mu.Unlock()

	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, event := range p.events {
		if err := emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProcessor) calls() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.audios...)
}

func setupTestHub(t *testing.T, processor UtteranceProcessor, config HubConfig, m *metrics.Metrics) (*Hub, string) {
	t.Helper()
	// connection goroutines may still log after the test returns
	hub := NewHub(processor, config, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		cancel()
		<-hub.done
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		t.Fatalf("Failed to send %s: %v", message, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Invalid event %s: %v", data, err)
	}
	return event
}

func expectEvent(t *testing.T, conn *websocket.Conn, eventType entities.EventType) map[string]any {
	t.Helper()
	event := readEvent(t, conn)
	if event["type"] != string(eventType) {
		t.Fatalf("Expected %s event, got %v", eventType, event)
	}
	return event
}

func expectError(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	event := expectEvent(t, conn, entities.EventError)
	if event["message"] != message {
		t.Errorf("Expected error %q, got %v", message, event["message"])
	}
}

func waitIdle(t *testing.T, hub *Hub) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		idle := true
		for _, c := range hub.snapshot() {
			if c.session.State() != entities.SessionStateIdle {
				idle = false
			}
		}
		if idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Sessions did not return to idle")
}

func TestHub_PingPong(t *testing.T) {
	_, url := setupTestHub(t, &fakeProcessor{}, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"ping"}`)
	expectEvent(t, conn, entities.EventPong)
}

func TestHub_RecordingFlow(t *testing.T) {
	processor := &fakeProcessor{events: []entities.Event{
		{Type: entities.EventTranscription, Data: "Hello"},
		{Type: entities.EventAudioChunk, Audio: []byte("mp3")},
		{Type: entities.EventProcessingComplete},
	}}
	hub, url := setupTestHub(t, processor, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)

	send(t, conn, `{"type":"audio_chunk","audio":"SGVs"}`)
	send(t, conn, `{"type":"audio_chunk","audio":"bG8="}`)
	send(t, conn, `{"type":"stop_recording"}`)

	expectEvent(t, conn, entities.EventProcessingStarted)
	if event := expectEvent(t, conn, entities.EventTranscription); event["data"] != "Hello" {
		t.Errorf("Expected transcription Hello, got %v", event["data"])
	}
	if event := expectEvent(t, conn, entities.EventAudioChunk); event["audio"] != "bXAz" {
		t.Errorf("Expected base64 audio, got %v", event["audio"])
	}
	expectEvent(t, conn, entities.EventProcessingComplete)

	calls := processor.calls()
	if len(calls) != 1 || string(calls[0]) != "Hello" {
		t.Errorf("Expected one utterance with concatenated audio, got %q", calls)
	}
	waitIdle(t, hub)
}

func TestHub_StopWithoutAudio(t *testing.T) {
	processor := &fakeProcessor{}
	_, url := setupTestHub(t, processor, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"stop_recording"}`)
	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)
	send(t, conn, `{"type":"stop_recording"}`)

	send(t, conn, `{"type":"ping"}`)
	expectEvent(t, conn, entities.EventPong)

	if len(processor.calls()) != 0 {
		t.Error("Expected no pipeline run without audio")
	}
}

func TestHub_StrayChunkIgnored(t *testing.T) {
	processor := &fakeProcessor{}
	_, url := setupTestHub(t, processor, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)
	send(t, conn, `{"type":"audio_chunk","audio":"bG8="}`)
	send(t, conn, `{"type":"stop_recording"}`)
	expectEvent(t, conn, entities.EventProcessingStarted)

	send(t, conn, `{"type":"ping"}`)
	expectEvent(t, conn, entities.EventPong)

	calls := processor.calls()
	if len(calls) != 1 || string(calls[0]) != "lo" {
		t.Errorf("Expected only the recorded chunk, got %q", calls)
	}
}

func TestHub_BusyRejected(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	processor := &fakeProcessor{
		release: make(chan struct{}),
		events:  []entities.Event{{Type: entities.EventProcessingComplete}},
	}
	hub, url := setupTestHub(t, processor, HubConfig{}, m)
	conn := dial(t, url)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)
	send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
	send(t, conn, `{"type":"stop_recording"}`)
	expectEvent(t, conn, entities.EventProcessingStarted)

	send(t, conn, `{"type":"stop_recording"}`)
	expectError(t, conn, msgBusy)
	send(t, conn, `{"type":"start_recording"}`)
	expectError(t, conn, msgBusy)

	close(processor.release)
	expectEvent(t, conn, entities.EventProcessingComplete)
	waitIdle(t, hub)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)

	if got := testutil.ToFloat64(m.BusyRejections); got != 2 {
		t.Errorf("Expected 2 busy rejections, got %v", got)
	}
	if len(processor.calls()) != 1 {
		t.Errorf("Expected a single pipeline run, got %d", len(processor.calls()))
	}
}

func TestHub_IgnoresMalformedMessages(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	_, url := setupTestHub(t, &fakeProcessor{}, HubConfig{}, m)
	conn := dial(t, url)

	send(t, conn, `not json`)
	send(t, conn, `{"type":"listening_start"}`)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Failed to send binary frame: %v", err)
	}

	send(t, conn, `{"type":"ping"}`)
	expectEvent(t, conn, entities.EventPong)

	if got := testutil.ToFloat64(m.InvalidMessages); got != 3 {
		t.Errorf("Expected 3 invalid messages, got %v", got)
	}
}

func TestHub_InvalidAudio(t *testing.T) {
	_, url := setupTestHub(t, &fakeProcessor{}, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)

	send(t, conn, `{"type":"audio_chunk","audio":"***"}`)
	expectError(t, conn, msgInvalidAudio)
	send(t, conn, `{"type":"audio_chunk"}`)
	expectError(t, conn, msgInvalidAudio)
}

func TestHub_AudioTooLarge(t *testing.T) {
	processor := &fakeProcessor{}
	_, url := setupTestHub(t, processor, HubConfig{MaxAudioBytes: 4}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)
	send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
	expectError(t, conn, msgAudioTooLarge)

	send(t, conn, `{"type":"stop_recording"}`)
	send(t, conn, `{"type":"ping"}`)
	expectEvent(t, conn, entities.EventPong)

	if len(processor.calls()) != 0 {
		t.Error("Expected no pipeline run after an oversized recording")
	}
}

func TestHub_ConnectionsAreIndependent(t *testing.T) {
	processor := &fakeProcessor{release: make(chan struct{})}
	defer close(processor.release)
	_, url := setupTestHub(t, processor, HubConfig{}, nil)

	first := dial(t, url)
	second := dial(t, url)

	for _, conn := range []*websocket.Conn{first, second} {
		send(t, conn, `{"type":"start_recording"}`)
		expectEvent(t, conn, entities.EventRecordingStarted)
		send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
		send(t, conn, `{"type":"stop_recording"}`)
		expectEvent(t, conn, entities.EventProcessingStarted)
	}
}

func TestHub_PipelineCap(t *testing.T) {
	processor := &fakeProcessor{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	_, url := setupTestHub(t, processor, HubConfig{MaxConcurrentPipelines: 1}, nil)

	first := dial(t, url)
	second := dial(t, url)

	for _, conn := range []*websocket.Conn{first, second} {
		send(t, conn, `{"type":"start_recording"}`)
		expectEvent(t, conn, entities.EventRecordingStarted)
		send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
		send(t, conn, `{"type":"stop_recording"}`)
		expectEvent(t, conn, entities.EventProcessingStarted)
	}

	<-processor.started
	select {
	case <-processor.started:
		t.Fatal("Second pipeline started before the first released its slot")
	case <-time.After(200 * time.Millisecond):
	}

	close(processor.release)
	select {
	case <-processor.started:
	case <-time.After(3 * time.Second):
		t.Fatal("Second pipeline never started")
	}
}

func TestRecordingJanitor_ExpiresStaleRecording(t *testing.T) {
	hub, url := setupTestHub(t, &fakeProcessor{}, HubConfig{}, nil)
	conn := dial(t, url)

	send(t, conn, `{"type":"start_recording"}`)
	expectEvent(t, conn, entities.EventRecordingStarted)
	send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)

	janitor := NewRecordingJanitor(hub, 20*time.Millisecond, 10*time.Millisecond, zap.NewNop())
	janitor.Start()
	defer janitor.Stop()

	expectError(t, conn, msgRecordingExpired)
	waitIdle(t, hub)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(&fakeProcessor{}, HubConfig{AllowedOrigins: []string{"http://localhost:3000"}}, nil, zaptest.NewLogger(t))

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := hub.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// blockingSpeechToText holds the transcription until the run's context ends
type blockingSpeechToText struct{}

func (blockingSpeechToText) TranscribeAudio(ctx context.Context, audio []byte, config repositories.AudioConfig) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHub_PipelineTimeoutEndsWithError(t *testing.T) {
	service := usecase.NewConversationService(
		usecase.Stages{SpeechToText: blockingSpeechToText{}},
		repositories.AudioConfig{},
		nil,
		zap.NewNop(),
	)
	hub, url := setupTestHub(t, service, HubConfig{PipelineTimeout: 100 * time.Millisecond}, nil)

	for i := 0; i < 10; i++ {
		conn := dial(t, url)
		send(t, conn, `{"type":"start_recording"}`)
		expectEvent(t, conn, entities.EventRecordingStarted)
		send(t, conn, `{"type":"audio_chunk","audio":"SGVsbG8="}`)
		send(t, conn, `{"type":"stop_recording"}`)
		expectEvent(t, conn, entities.EventProcessingStarted)

		event := expectEvent(t, conn, entities.EventError)
		if msg := event["message"]; msg != msgPipelineFailed && msg != "Failed to transcribe audio" {
			t.Errorf("Unexpected error message %v", msg)
		}

		// exactly one terminal event; the next reply is the pong
		send(t, conn, `{"type":"ping"}`)
		expectEvent(t, conn, entities.EventPong)
	}
	waitIdle(t, hub)
}
