package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/adapters/llm"
	"github.com/satriahrh/flightvoice/adapters/speech"
	"github.com/satriahrh/flightvoice/adapters/stt"
	"github.com/satriahrh/flightvoice/adapters/tts"
	"github.com/satriahrh/flightvoice/domain/repositories"
	"github.com/satriahrh/flightvoice/internal/config"
	"github.com/satriahrh/flightvoice/usecase"
)

// buildStages wires the configured provider behind each pipeline stage. The
// returned closers release provider clients on shutdown.
func buildStages(ctx context.Context, cfg *config.Config, flights repositories.FlightRepository, logger *zap.Logger) (usecase.Stages, []io.Closer, error) {
	stages := usecase.Stages{Flights: flights}
	var closers []io.Closer

	switch cfg.Providers.SpeechToText {
	case config.ProviderOpenAI:
		whisper, err := stt.NewWhisperSpeechToText(stt.WhisperConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.TranscriptionModel,
		}, logger)
		if err != nil {
			return stages, closers, fmt.Errorf("failed to create whisper client: %w", err)
		}
		stages.SpeechToText = whisper
	case config.ProviderGoogle:
		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return stages, closers, err
		}
		closers = append(closers, google)
		stages.SpeechToText = google
	case config.ProviderMock:
		stages.SpeechToText = speech.NewMockSpeechToText(logger)
	default:
		return stages, closers, fmt.Errorf("unsupported speech-to-text provider %q", cfg.Providers.SpeechToText)
	}

	switch cfg.Providers.LLM {
	case config.ProviderOpenAI:
		chat, err := llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:              cfg.OpenAI.APIKey,
			BaseURL:             cfg.OpenAI.BaseURL,
			Model:               cfg.OpenAI.ChatModel,
			IntentTemperature:   cfg.OpenAI.IntentTemperature,
			ResponseTemperature: cfg.OpenAI.ResponseTemperature,
			MaxResponseTokens:   cfg.OpenAI.MaxResponseTokens,
		}, logger)
		if err != nil {
			return stages, closers, fmt.Errorf("failed to create openai chat client: %w", err)
		}
		stages.Intents, stages.Generator = chat, chat
	case config.ProviderGemini:
		gemini, err := llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		}, logger)
		if err != nil {
			return stages, closers, fmt.Errorf("failed to create gemini client: %w", err)
		}
		stages.Intents, stages.Generator = gemini, gemini
	case config.ProviderMock:
		mock := llm.NewMockLLM()
		stages.Intents, stages.Generator = mock, mock
	default:
		return stages, closers, fmt.Errorf("unsupported llm provider %q", cfg.Providers.LLM)
	}

	switch cfg.Providers.TextToSpeech {
	case config.ProviderOpenAI:
		voice, err := tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.SpeechModel,
			Voice:   cfg.OpenAI.Voice,
		}, logger)
		if err != nil {
			return stages, closers, fmt.Errorf("failed to create openai speech client: %w", err)
		}
		stages.TextToSpeech = voice
	case config.ProviderElevenLabs:
		voice, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			APIBaseURL:   cfg.ElevenLabs.APIBaseURL,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
		}, logger)
		if err != nil {
			return stages, closers, fmt.Errorf("failed to create elevenlabs client: %w", err)
		}
		stages.TextToSpeech = voice
	case config.ProviderMock:
		stages.TextToSpeech = speech.NewMockTextToSpeech(logger)
	default:
		return stages, closers, fmt.Errorf("unsupported text-to-speech provider %q", cfg.Providers.TextToSpeech)
	}

	return stages, closers, nil
}
