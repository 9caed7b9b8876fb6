package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultOutputFormat = "mp3_44100_128"          // every fragment decodes on its own
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5                      // Default voice stability
	defaultClarity      = 0.75                     // Default voice clarity/similarity_boost
	defaultTimeout      = 60 * time.Second
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter
// Required fields:
// - APIKey: Your Eleven Labs API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the Eleven Labs API (default: "https://api.elevenlabs.io/v1")
// - VoiceID: The voice ID to use (default: "21m00Tcm4TlvDq8ikWAM" - Rachel voice)
// - ModelID: The model ID to use (default: "eleven_multilingual_v2")
// - OutputFormat: The output format (default: "mp3_44100_128")
// - Stability: Voice stability value between 0 and 1 (default: 0.5)
// - Clarity: Voice clarity/similarity boost value between 0 and 1 (default: 0.75)
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Stability    float64
	Clarity      float64
}

// ElevenLabsTTS implements TextToSpeech interface using Eleven Labs API
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	stability    float64
	clarity      float64
	httpClient   *http.Client
	logger       *zap.Logger
}

// Ensure ElevenLabsTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}

	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}

	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}

	if strings.HasPrefix(config.OutputFormat, "pcm") || strings.HasPrefix(config.OutputFormat, "ulaw") {
		return fmt.Errorf("output format %s is not playable as standalone fragments", config.OutputFormat)
	}

	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	// Apply defaults where needed
	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", modelID))
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
		logger.Info("Using default output format", zap.String("outputFormat", outputFormat))
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	return &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   strings.TrimSuffix(apiBaseURL, "/"),
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		stability:    stability,
		clarity:      clarity,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger,
	}, nil
}

// SynthesizeSpeech converts one speakable unit into a complete audio fragment
func (e *ElevenLabsTTS) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	e.logger.Debug("Converting text to speech",
		zap.String("text", text),
		zap.String("voiceID", e.voiceID),
		zap.String("modelID", e.modelID))

	request := ElevenLabsRequest{
		Text:                   text,
		ModelID:                e.modelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s&enable_logging=false",
		e.apiBaseURL, e.voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("eleven labs API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	e.logger.Debug("Received audio from Eleven Labs",
		zap.String("contentType", resp.Header.Get("Content-Type")),
		zap.Int("bytes", len(audio)))
	return audio, nil
}

// NewElevenLabsConfigFromEnv creates a new ElevenLabsConfig from environment variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}

	if stabilityStr := os.Getenv("ELEVEN_LABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}

	if clarityStr := os.Getenv("ELEVEN_LABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}

	return config
}
