package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
	"github.com/satriahrh/flightvoice/internal/metrics"
)

// Client-facing messages for fatal pipeline failures.
const (
	msgTranscriptionFailed = "Failed to transcribe audio"
	msgNoSpeech            = "No speech detected"
	msgIntentFailed        = "Failed to understand the request"
	msgGenerationFailed    = "Failed to generate a response"
)

// synthesisQueueSize bounds how many speakable units may wait for the
// synthesizer while generation keeps producing text.
const synthesisQueueSize = 8

// Emitter delivers one pipeline event to the client. It must be safe for
// concurrent use and returns an error once delivery is no longer possible.
type Emitter func(ctx context.Context, event entities.Event) error

// PipelineError is returned when a run ended with a fatal stage failure.
// The matching error event has already been emitted.
type PipelineError struct {
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Stages bundles the capability providers a pipeline run calls into.
type Stages struct {
	SpeechToText repositories.SpeechToText
	Intents      repositories.IntentExtractor
	Flights      repositories.FlightRepository
	Generator    repositories.ResponseGenerator
	TextToSpeech repositories.TextToSpeech
}

// ConversationService orchestrates the conversation flow for one utterance
type ConversationService struct {
	stages      Stages
	audioConfig repositories.AudioConfig
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stages Stages,
	audioConfig repositories.AudioConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		stages:      stages,
		audioConfig: audioConfig,
		metrics:     m,
		logger:      logger,
	}
}

// ProcessUtterance runs the full pipeline for one recording and emits its
// events in order. A successful run ends with processing_complete; a fatal
// stage failure ends with a single error event and a *PipelineError. Any
// other error means events could no longer be delivered.
func (s *ConversationService) ProcessUtterance(ctx context.Context, audio []byte, emit Emitter) (err error) {
	started := time.Now()
	utterance := &entities.Utterance{Audio: audio}
	s.metrics.PipelineStarted(len(audio))

	defer func() {
		utterance.Audio = nil
		utterance.Rows = nil

		outcome := metrics.OutcomeSuccess
		var pipelineErr *PipelineError
		switch {
		case errors.As(err, &pipelineErr):
			outcome = metrics.OutcomeFailed
		case err != nil:
			outcome = metrics.OutcomeAbandoned
		}
		s.metrics.PipelineFinished(outcome, time.Since(started))
	}()

	// 1. transcribe
	stageStart := time.Now()
	utterance.Transcription, err = s.stages.SpeechToText.TranscribeAudio(ctx, utterance.Audio, s.audioConfig)
	s.metrics.ObserveStage("transcribe", time.Since(stageStart))
	if err != nil {
		return s.fail(ctx, emit, msgTranscriptionFailed, err)
	}
	if strings.TrimSpace(utterance.Transcription) == "" {
		return s.fail(ctx, emit, msgNoSpeech, nil)
	}
	s.logger.Info("Transcription completed", zap.String("text", utterance.Transcription))
	if err := emit(ctx, entities.Event{Type: entities.EventTranscription, Data: utterance.Transcription}); err != nil {
		return err
	}

	// 2. intent
	stageStart = time.Now()
	utterance.Intent, err = s.stages.Intents.ExtractIntent(ctx, utterance.Transcription)
	s.metrics.ObserveStage("intent", time.Since(stageStart))
	if err != nil {
		return s.fail(ctx, emit, msgIntentFailed, err)
	}
	s.logger.Info("Intent extracted",
		zap.String("intent", utterance.Intent.Intent),
		zap.Float64("confidence", utterance.Intent.Confidence),
		zap.Bool("hasQuery", utterance.Intent.HasQuery()))
	if err := emit(ctx, entities.Event{Type: entities.EventIntent, Data: utterance.Intent}); err != nil {
		return err
	}

	// 3. query, degraded to an empty result on failure
	stageStart = time.Now()
	utterance.Rows = s.queryFlights(ctx, utterance.Intent)
	s.metrics.ObserveStage("query", time.Since(stageStart))
	if err := emit(ctx, entities.Event{Type: entities.EventQueryResult, Data: utterance.Rows}); err != nil {
		return err
	}

	// 4-8. generate and speak
	stageStart = time.Now()
	if err := s.respond(ctx, utterance, emit); err != nil {
		return err
	}
	s.metrics.ObserveStage("respond", time.Since(stageStart))

	s.logger.Info("Utterance processed",
		zap.Int("responseLength", len(utterance.Response)),
		zap.Duration("elapsed", time.Since(started)))

	return emit(ctx, entities.Event{Type: entities.EventProcessingComplete})
}

// queryFlights runs the intent's query. It never returns nil so the client
// always receives an array.
func (s *ConversationService) queryFlights(ctx context.Context, intent entities.Intent) []entities.Row {
	rows := []entities.Row{}
	if !intent.HasQuery() || s.stages.Flights == nil {
		return rows
	}

	result, err := s.stages.Flights.Query(ctx, intent.SQL)
	if err != nil {
		s.metrics.RecordQueryFailure()
		s.logger.Warn("Flight query failed, continuing with empty result",
			zap.String("sql", intent.SQL),
			zap.Error(err))
		return rows
	}
	if result == nil {
		return rows
	}
	return result
}

// respond streams the generated answer to the client while synthesizing
// speakable units in parallel, then flushes what is left.
func (s *ConversationService) respond(ctx context.Context, utterance *entities.Utterance, emit Emitter) error {
	stream, err := s.stages.Generator.GenerateResponseStream(ctx, utterance.Rows, utterance.Transcription, utterance.Intent)
	if err != nil {
		return s.fail(ctx, emit, msgGenerationFailed, err)
	}
	defer stream.Close()

	var (
		full      strings.Builder
		pending   strings.Builder
		flushed   int
		remainder string
	)

	g, gctx := errgroup.WithContext(ctx)
	increments := make(chan string)
	units := make(chan string, synthesisQueueSize)

	// generation
	g.Go(func() error {
		defer close(increments)
		for {
			text, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return &PipelineError{Message: msgGenerationFailed, Err: err}
			}
			if text == "" {
				continue
			}
			select {
			case increments <- text:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// segmentation
	g.Go(func() error {
		defer close(units)
		for text := range increments {
			full.WriteString(text)
			if err := emit(gctx, entities.Event{Type: entities.EventResponseChunk, Data: text}); err != nil {
				return err
			}

			pending.WriteString(text)
			if !IsSpeakable(pending.String()) {
				continue
			}
			unit := pending.String()
			pending.Reset()
			flushed++
			s.metrics.RecordSpeakableUnit()

			select {
			case units <- unit:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		remainder = pending.String()
		pending.Reset()
		return nil
	})

	// synthesis
	g.Go(func() error {
		for unit := range units {
			if err := s.speak(gctx, unit, entities.EventAudioChunk, emit); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		var pipelineErr *PipelineError
		if errors.As(err, &pipelineErr) {
			return s.fail(ctx, emit, pipelineErr.Message, pipelineErr.Err)
		}
		return err
	}

	utterance.Response = full.String()
	if err := emit(ctx, entities.Event{Type: entities.EventResponse, Data: utterance.Response}); err != nil {
		return err
	}

	if flushed == 0 {
		if strings.TrimSpace(utterance.Response) == "" {
			return nil
		}
		s.metrics.RecordFallback()
		return s.speak(ctx, utterance.Response, entities.EventAudioResponse, emit)
	}

	if strings.TrimSpace(remainder) != "" {
		return s.speak(ctx, remainder, entities.EventAudioChunk, emit)
	}
	return nil
}

// speak synthesizes text and emits it as eventType. Synthesis failures are
// logged and skipped; only delivery failures are returned.
func (s *ConversationService) speak(ctx context.Context, text string, eventType entities.EventType, emit Emitter) error {
	audio, err := s.stages.TextToSpeech.SynthesizeSpeech(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.RecordSynthesisFailure()
		s.logger.Warn("Speech synthesis failed, skipping fragment",
			zap.String("text", text),
			zap.Error(err))
		return nil
	}
	if len(audio) == 0 {
		s.logger.Warn("Speech synthesis returned no audio", zap.String("text", text))
		return nil
	}
	return emit(ctx, entities.Event{Type: eventType, Audio: audio})
}

// fail emits the single error event of a failed run.
func (s *ConversationService) fail(ctx context.Context, emit Emitter, message string, cause error) error {
	s.logger.Error(message, zap.Error(cause))
	if err := emit(ctx, entities.ErrorEvent(message)); err != nil {
		return err
	}
	return &PipelineError{Message: message, Err: cause}
}
