package speech

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	// Mock transcription based on audio size
	switch {
	case len(audioData) > 10000:
		return "Which flights are leaving Chicago for San Francisco today?", nil
	case len(audioData) > 5000:
		return "What gate is flight UA1214 departing from?", nil
	case len(audioData) > 1000:
		return "Is flight UA1214 on time?", nil
	default:
		return "Hello", nil
	}
}

// mockAudioHeader marks every fragment so clients can tell mock audio apart.
var mockAudioHeader = []byte("MOCKMP3")

// MockTextToSpeech is a placeholder implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// SynthesizeSpeech implements repositories.TextToSpeech
func (t *MockTextToSpeech) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.logger.Debug("Processing text-to-speech", zap.String("text", text))

	// Mock audio data - generate based on text length
	mockAudio := make([]byte, len(mockAudioHeader)+len(text)*100)
	copy(mockAudio, mockAudioHeader)
	for i := len(mockAudioHeader); i < len(mockAudio); i++ {
		mockAudio[i] = byte(i % 256)
	}

	return mockAudio, nil
}
