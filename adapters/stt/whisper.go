package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/repositories"
)

// WhisperConfig holds configuration for the OpenAI transcription adapter
type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// WhisperSpeechToText implements SpeechToText with OpenAI transcriptions
type WhisperSpeechToText struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

// NewWhisperSpeechToText creates a transcription client
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	model := config.Model
	if model == "" {
		model = openai.AudioModelWhisper1
	}

	return &WhisperSpeechToText{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// TranscribeAudio uploads the recording as a single file
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	filename, contentType := audioFile(config.Encoding)
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audioData), filename, contentType),
		Model: w.model,
	}
	if config.Language != "" {
		params.Language = openai.String(baseLanguage(config.Language))
	}

	transcription, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	w.logger.Debug("Whisper transcription finished",
		zap.Int("audioSize", len(audioData)),
		zap.String("filename", filename))
	return strings.TrimSpace(transcription.Text), nil
}

// audioFile names the upload so the API can detect the container.
func audioFile(encoding string) (filename, contentType string) {
	switch encoding {
	case "OGG_OPUS":
		return "audio.ogg", "audio/ogg"
	case "WAV", "LINEAR16":
		return "audio.wav", "audio/wav"
	case "FLAC":
		return "audio.flac", "audio/flac"
	case "MP3":
		return "audio.mp3", "audio/mpeg"
	default:
		return "audio.webm", "audio/webm"
	}
}

// baseLanguage reduces a regional tag such as en-US to its ISO-639-1 code.
func baseLanguage(language string) string {
	if i := strings.IndexAny(language, "-_"); i > 0 {
		return language[:i]
	}
	return language
}
