package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/flightvoice/domain/entities"
)

// MessageType is the type of a client to server message
type MessageType string

// Supported client message types
const (
	MessageTypeStartRecording MessageType = "start_recording"
	MessageTypeAudioChunk     MessageType = "audio_chunk"
	MessageTypeStopRecording  MessageType = "stop_recording"
	MessageTypePing           MessageType = "ping"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrInvalidAudio     = errors.New("invalid audio payload")
)

// ClientMessage is the envelope every client message arrives in. Audio is
// only set on audio_chunk and carries standard base64.
type ClientMessage struct {
	Type  MessageType `json:"type"`
	Audio string      `json:"audio,omitempty"`
}

// DecodeClientMessage parses and validates one inbound envelope
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case MessageTypeStartRecording, MessageTypeStopRecording, MessageTypePing:
		return msg, nil
	case MessageTypeAudioChunk:
		if msg.Audio == "" {
			return ClientMessage{}, fmt.Errorf("%w: audio is required", ErrInvalidAudio)
		}
		return msg, nil
	case "":
		return ClientMessage{}, fmt.Errorf("%w: type is required", ErrMalformedMessage)
	default:
		return ClientMessage{}, fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
}

// AudioBytes decodes the base64 audio payload
func (m ClientMessage) AudioBytes() ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(m.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return audio, nil
}

// EncodeEvent renders a server event as a JSON text frame. Audio is
// base64-encoded by encoding/json.
func EncodeEvent(event entities.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return data, nil
}
