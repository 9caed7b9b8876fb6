package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds configuration for the Gemini adapter
type GeminiConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// GeminiLLM implements intent extraction and response generation using
// Google's Gemini API
type GeminiLLM struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	maxOutputTokens int32
	timeout         time.Duration
}

var (
	_ repositories.IntentExtractor   = (*GeminiLLM)(nil)
	_ repositories.ResponseGenerator = (*GeminiLLM)(nil)
)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = ResponseMaxTokens
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiLLM{
		client:          client,
		logger:          logger,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// ExtractIntent implements repositories.IntentExtractor
func (g *GeminiLLM) ExtractIntent(ctx context.Context, text string) (entities.Intent, error) {
	if err := requireText(text); err != nil {
		return entities.Intent{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(intentSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(IntentTemperature)),
		ResponseMIMEType:  "application/json",
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return entities.Intent{}, fmt.Errorf("failed to extract intent: %w", err)
	}

	intent, err := parseIntent(response.Text())
	if err != nil {
		return entities.Intent{}, err
	}

	g.logger.Debug("Gemini intent extracted",
		zap.String("intent", intent.Intent),
		zap.String("sql", intent.SQL))
	return intent, nil
}

// GenerateResponseStream implements repositories.ResponseGenerator
func (g *GeminiLLM) GenerateResponseStream(ctx context.Context, rows []entities.Row, text string, intent entities.Intent) (repositories.TextStream, error) {
	prompt, err := buildResponsePrompt(rows, text, intent)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(responseSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(ResponseTemperature)),
		MaxOutputTokens:   g.maxOutputTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	seq := g.client.Models.GenerateContentStream(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)

	return newSeqStream(seq, cancel), nil
}

// seqStream adapts a genai response iterator to repositories.TextStream.
type seqStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
	closed bool
}

func newSeqStream(seq iter.Seq2[*genai.GenerateContentResponse, error], cancel context.CancelFunc) *seqStream {
	next, stop := iter.Pull2(seq)
	return &seqStream{next: next, stop: stop, cancel: cancel}
}

func (s *seqStream) Next() (string, error) {
	if s.closed {
		return "", io.EOF
	}
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("failed to stream response: %w", err)
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *seqStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	s.cancel()
	return nil
}

// errEmptyText is returned when a caller asks to generate from blank input.
var errEmptyText = errors.New("text cannot be empty")

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyText
	}
	return nil
}
