package entities

// EventType names a server-to-client message.
type EventType string

const (
	EventRecordingStarted   EventType = "recording_started"
	EventProcessingStarted  EventType = "processing_started"
	EventTranscription      EventType = "transcription"
	EventIntent             EventType = "intent"
	EventQueryResult        EventType = "query_result"
	EventResponseChunk      EventType = "response_chunk"
	EventResponse           EventType = "response"
	EventAudioChunk         EventType = "audio_chunk_response"
	EventAudioResponse      EventType = "audio_response"
	EventProcessingComplete EventType = "processing_complete"
	EventPong               EventType = "pong"
	EventError              EventType = "error"
)

// Event is one unit of pipeline output. Audio travels base64 encoded on the
// wire, so it is kept raw here and encoded by the transport.
type Event struct {
	Type    EventType `json:"type"`
	Data    any       `json:"data,omitempty"`
	Audio   []byte    `json:"audio,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ErrorEvent builds the client-facing error envelope.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
