package client

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Player renders one synthesized fragment and returns once it has finished.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// PlaybackScheduler plays fragments strictly in enqueue order, one at a
// time. A fragment that fails to play is skipped.
type PlaybackScheduler struct {
	ctx    context.Context
	player Player
	logger *zap.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	queue   [][]byte
	playing bool
	played  int
	skipped int
}

func NewPlaybackScheduler(ctx context.Context, player Player, logger *zap.Logger) *PlaybackScheduler {
	s := &PlaybackScheduler{
		ctx:    ctx,
		player: player,
		logger: logger,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends a fragment and starts playback when nothing is playing.
func (s *PlaybackScheduler) Enqueue(audio []byte) {
	if len(audio) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, audio)
	if s.playing {
		return
	}
	s.playing = true
	go s.drain()
}

func (s *PlaybackScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.ctx.Err() != nil {
			s.queue = nil
			s.playing = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		fragment := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		err := s.player.Play(s.ctx, fragment)

		s.mu.Lock()
		if err != nil {
			s.skipped++
		} else {
			s.played++
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("Skipping audio fragment", zap.Int("bytes", len(fragment)), zap.Error(err))
		}
	}
}

// Clear drops fragments that have not started playing.
func (s *PlaybackScheduler) Clear() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
}

// Wait blocks until the queue is empty and nothing is playing.
func (s *PlaybackScheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.playing || len(s.queue) > 0 {
		s.idle.Wait()
	}
}

// Pending returns the number of queued fragments, excluding the one playing.
func (s *PlaybackScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats returns how many fragments were played and skipped so far.
func (s *PlaybackScheduler) Stats() (played, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played, s.skipped
}

// WriterPlayer appends each fragment to w. MP3 frames concatenate cleanly,
// so the result is one playable file.
type WriterPlayer struct {
	w io.Writer
}

func NewWriterPlayer(w io.Writer) *WriterPlayer {
	return &WriterPlayer{w: w}
}

func (p *WriterPlayer) Play(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.w.Write(audio); err != nil {
		return fmt.Errorf("failed to write audio fragment: %w", err)
	}
	return nil
}
