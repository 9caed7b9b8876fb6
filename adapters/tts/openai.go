package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/repositories"
)

// OpenAIConfig holds configuration for the OpenAI speech adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAITTS implements TextToSpeech with the OpenAI speech endpoint. Each
// call returns one complete MP3 file.
type OpenAITTS struct {
	client openai.Client
	model  string
	voice  string
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

// NewOpenAITTS creates a speech client
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	model := config.Model
	if model == "" {
		model = openai.SpeechModelTTS1
	}
	voice := config.Voice
	if voice == "" {
		voice = "nova"
	}

	return &OpenAITTS{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voice,
		logger: logger,
	}, nil
}

// SynthesizeSpeech implements repositories.TextToSpeech
func (o *OpenAITTS) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          o.model,
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	o.logger.Debug("OpenAI speech synthesized",
		zap.Int("textLength", len(text)),
		zap.Int("bytes", len(audio)))
	return audio, nil
}
