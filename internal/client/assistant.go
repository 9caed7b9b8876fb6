package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
)

var ErrNoAudio = errors.New("no audio captured")

// Answer collects what the server produced for one utterance
type Answer struct {
	Transcription string `json:"transcription"`
	Intent        any    `json:"intent,omitempty"`
	Rows          []any  `json:"rows,omitempty"`
	Response      string `json:"response"`
	Fragments     int    `json:"fragments"`
}

// Assistant runs one question at a time over a shared transport, feeding
// synthesized speech to the playback scheduler as it arrives.
type Assistant struct {
	transport *Transport
	recorder  *Recorder
	playback  *PlaybackScheduler
	logger    *zap.Logger

	// OnEvent, when set, observes every server event in arrival order.
	OnEvent func(entities.Event)
}

func NewAssistant(transport *Transport, recorder *Recorder, playback *PlaybackScheduler, logger *zap.Logger) *Assistant {
	return &Assistant{
		transport: transport,
		recorder:  recorder,
		playback:  playback,
		logger:    logger,
	}
}

// Ask records src as one utterance and waits for processing_complete. A
// server error event is returned as an error; playback of received
// fragments has finished when Ask returns.
func (a *Assistant) Ask(ctx context.Context, src io.Reader) (*Answer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		answer *Answer
		err    error
	}
	results := make(chan result, 1)
	go func() {
		answer, err := a.collect(ctx)
		results <- result{answer, err}
	}()

	chunks, err := a.recorder.Record(ctx, src)
	if err != nil {
		return nil, err
	}
	if chunks == 0 {
		return nil, ErrNoAudio
	}

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.playback.Wait()
	return res.answer, res.err
}

func (a *Assistant) collect(ctx context.Context) (*Answer, error) {
	answer := &Answer{}
	var streamed strings.Builder

	for {
		var event entities.Event
		var ok bool
		select {
		case event, ok = <-a.transport.Events():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !ok {
			if err := a.transport.Err(); err != nil {
				return nil, err
			}
			return nil, ErrClosed
		}

		if a.OnEvent != nil {
			a.OnEvent(event)
		}

		switch event.Type {
		case entities.EventTranscription:
			answer.Transcription, _ = event.Data.(string)
		case entities.EventIntent:
			answer.Intent = event.Data
		case entities.EventQueryResult:
			answer.Rows, _ = event.Data.([]any)
		case entities.EventResponseChunk:
			chunk, _ := event.Data.(string)
			streamed.WriteString(chunk)
		case entities.EventResponse:
			answer.Response, _ = event.Data.(string)
		case entities.EventAudioChunk, entities.EventAudioResponse:
			answer.Fragments++
			a.playback.Enqueue(event.Audio)
		case entities.EventProcessingComplete:
			if answer.Response == "" {
				answer.Response = streamed.String()
			}
			return answer, nil
		case entities.EventError:
			return answer, fmt.Errorf("server error: %s", event.Message)
		case EventConnectionLost:
			return nil, a.transport.Err()
		default:
			a.logger.Debug("Ignoring event", zap.String("type", string(event.Type)))
		}
	}
}
