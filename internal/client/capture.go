package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultChunkInterval    = 100 * time.Millisecond
	DefaultSilenceThreshold = 600 * time.Millisecond
	defaultChunkBytes       = 4096
)

var ErrAlreadyRecording = errors.New("already recording")

// Sender is the outbound half of the transport used by a recording.
type Sender interface {
	StartRecording() error
	SendAudio(chunk []byte) error
	StopRecording() error
}

// CaptureConfig controls chunking and silence handling. A zero ChunkInterval
// streams the source as fast as it can be read.
type CaptureConfig struct {
	ChunkInterval    time.Duration
	ChunkBytes       int
	SilenceThreshold time.Duration
	AutoStop         bool
}

// DefaultCaptureConfig mirrors a microphone recorder: 100 ms slices and a
// 600 ms silence window before auto-stop.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		ChunkInterval:    DefaultChunkInterval,
		ChunkBytes:       defaultChunkBytes,
		SilenceThreshold: DefaultSilenceThreshold,
		AutoStop:         true,
	}
}

// Recorder streams an audio source to the server as one utterance. Speech
// boundaries come from an external detector through SpeechStarted and
// SpeechEnded.
type Recorder struct {
	sender Sender
	config CaptureConfig
	logger *zap.Logger

	mu        sync.Mutex
	recording bool
	stop      chan struct{}
	stopOnce  *sync.Once
	silence   *time.Timer
}

func NewRecorder(sender Sender, config CaptureConfig, logger *zap.Logger) *Recorder {
	if config.ChunkBytes <= 0 {
		config.ChunkBytes = defaultChunkBytes
	}
	return &Recorder{sender: sender, config: config, logger: logger}
}

// Record sends start_recording, then the source in chunks until EOF, Stop,
// or ctx cancellation, then stop_recording. It returns the number of chunks
// sent.
func (r *Recorder) Record(ctx context.Context, src io.Reader) (int, error) {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return 0, ErrAlreadyRecording
	}
	r.recording = true
	r.stop = make(chan struct{})
	r.stopOnce = &sync.Once{}
	stop := r.stop
	r.mu.Unlock()

	defer r.finish()

	if err := r.sender.StartRecording(); err != nil {
		return 0, fmt.Errorf("failed to start recording: %w", err)
	}

	var tick <-chan time.Time
	if r.config.ChunkInterval > 0 {
		ticker := time.NewTicker(r.config.ChunkInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	chunks := 0
	buf := make([]byte, r.config.ChunkBytes)
	for {
		if tick != nil {
			select {
			case <-tick:
			case <-stop:
				return chunks, r.sendStop(chunks)
			case <-ctx.Done():
				return chunks, r.sendStop(chunks)
			}
		} else {
			select {
			case <-stop:
				return chunks, r.sendStop(chunks)
			case <-ctx.Done():
				return chunks, r.sendStop(chunks)
			default:
			}
		}

		n, err := io.ReadFull(src, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := r.sender.SendAudio(chunk); sendErr != nil {
				return chunks, fmt.Errorf("failed to send audio chunk %d: %w", chunks+1, sendErr)
			}
			chunks++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return chunks, r.sendStop(chunks)
		}
		if err != nil {
			return chunks, fmt.Errorf("failed to read audio source: %w", err)
		}
	}
}

func (r *Recorder) sendStop(chunks int) error {
	r.logger.Debug("Stopping recording", zap.Int("chunks", chunks))
	if err := r.sender.StopRecording(); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	return nil
}

func (r *Recorder) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	if r.silence != nil {
		r.silence.Stop()
		r.silence = nil
	}
}

// Stop ends the current recording. It is a no-op when idle.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	if !r.recording {
		return
	}
	stop := r.stop
	r.stopOnce.Do(func() { close(stop) })
}

// Recording reports whether Record is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// SpeechStarted cancels a pending silence auto-stop.
func (r *Recorder) SpeechStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.silence != nil {
		r.silence.Stop()
		r.silence = nil
	}
}

// SpeechEnded arms the auto-stop. Recording stops once the silence lasts
// SilenceThreshold without another SpeechStarted.
func (r *Recorder) SpeechEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.config.AutoStop || !r.recording {
		return
	}
	if r.silence != nil {
		r.silence.Stop()
	}
	threshold := r.config.SilenceThreshold
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	var timer *time.Timer
	timer = time.AfterFunc(threshold, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.silence != timer {
			return
		}
		r.silence = nil
		r.logger.Info("Silence detected, stopping recording", zap.Duration("threshold", threshold))
		r.stopLocked()
	})
	r.silence = timer
}
