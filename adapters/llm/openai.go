package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
)

// OpenAIConfig holds configuration for the OpenAI chat adapter
type OpenAIConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	IntentTemperature   float64
	ResponseTemperature float64
	MaxResponseTokens   int64
}

// OpenAILLM implements intent extraction and response generation with the
// chat completions API
type OpenAILLM struct {
	client              openai.Client
	model               string
	intentTemperature   float64
	responseTemperature float64
	maxResponseTokens   int64
	logger              *zap.Logger
}

var (
	_ repositories.IntentExtractor   = (*OpenAILLM)(nil)
	_ repositories.ResponseGenerator = (*OpenAILLM)(nil)
)

// NewOpenAILLM creates a chat client
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	model := config.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	intentTemperature := config.IntentTemperature
	if intentTemperature == 0 {
		intentTemperature = IntentTemperature
	}
	responseTemperature := config.ResponseTemperature
	if responseTemperature == 0 {
		responseTemperature = ResponseTemperature
	}
	maxTokens := config.MaxResponseTokens
	if maxTokens == 0 {
		maxTokens = ResponseMaxTokens
	}

	return &OpenAILLM{
		client:              openai.NewClient(opts...),
		model:               model,
		intentTemperature:   intentTemperature,
		responseTemperature: responseTemperature,
		maxResponseTokens:   maxTokens,
		logger:              logger,
	}, nil
}

// ExtractIntent implements repositories.IntentExtractor
func (o *OpenAILLM) ExtractIntent(ctx context.Context, text string) (entities.Intent, error) {
	if err := requireText(text); err != nil {
		return entities.Intent{}, err
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(intentSystemPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(o.intentTemperature),
	})
	if err != nil {
		return entities.Intent{}, fmt.Errorf("failed to extract intent: %w", err)
	}
	if len(completion.Choices) == 0 {
		return entities.Intent{}, fmt.Errorf("intent completion returned no choices")
	}

	intent, err := parseIntent(completion.Choices[0].Message.Content)
	if err != nil {
		return entities.Intent{}, err
	}

	o.logger.Debug("OpenAI intent extracted",
		zap.String("intent", intent.Intent),
		zap.String("sql", intent.SQL))
	return intent, nil
}

// GenerateResponseStream implements repositories.ResponseGenerator
func (o *OpenAILLM) GenerateResponseStream(ctx context.Context, rows []entities.Row, text string, intent entities.Intent) (repositories.TextStream, error) {
	prompt, err := buildResponsePrompt(rows, text, intent)
	if err != nil {
		return nil, err
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(responseSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.responseTemperature),
		MaxTokens:   openai.Int(o.maxResponseTokens),
	})
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start response stream: %w", err)
	}

	return &chunkStream{stream: stream}, nil
}

// chunkStream adapts a chat completion SSE stream to repositories.TextStream.
type chunkStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	closed bool
}

func (c *chunkStream) Next() (string, error) {
	if c.closed {
		return "", io.EOF
	}
	for c.stream.Next() {
		chunk := c.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
	if err := c.stream.Err(); err != nil {
		return "", fmt.Errorf("failed to stream response: %w", err)
	}
	return "", io.EOF
}

func (c *chunkStream) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.stream.Close()
}
