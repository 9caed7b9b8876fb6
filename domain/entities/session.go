package entities

import (
	"errors"
	"sync"
	"time"
)

// SessionState is the recording state of one connection.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRecording  SessionState = "recording"
	SessionStateProcessing SessionState = "processing"
)

var (
	ErrSessionBusy    = errors.New("session is still processing the previous request")
	ErrNotRecording   = errors.New("session is not recording")
	ErrNoAudio        = errors.New("no audio was recorded")
	ErrAudioTooLarge  = errors.New("recording exceeds the maximum audio size")
	ErrSessionExpired = errors.New("recording exceeded the maximum duration")
)

// Session tracks one client connection. It is created on connect and
// discarded on disconnect; nothing in it outlives the connection.
type Session struct {
	ID          string
	ConnectedAt time.Time

	mu             sync.Mutex
	state          SessionState
	chunks         [][]byte
	size           int
	maxSize        int
	recordingSince time.Time
}

// NewSession creates an idle session. maxAudioBytes <= 0 disables the cap.
func NewSession(id string, maxAudioBytes int) *Session {
	return &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		state:       SessionStateIdle,
		maxSize:     maxAudioBytes,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartRecording clears any buffered audio and begins a new recording.
// A session that is still processing rejects the request.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionStateProcessing {
		return ErrSessionBusy
	}
	s.resetLocked()
	s.state = SessionStateRecording
	s.recordingSince = time.Now()
	return nil
}

// AppendChunk buffers one audio chunk. Chunks that arrive while not
// recording return ErrNotRecording and are dropped.
func (s *Session) AppendChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateRecording {
		return ErrNotRecording
	}
	if s.maxSize > 0 && s.size+len(chunk) > s.maxSize {
		s.resetLocked()
		s.state = SessionStateIdle
		return ErrAudioTooLarge
	}
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
	return nil
}

// StopRecording ends the recording and hands back the concatenated audio.
// On success the session moves to processing and the caller must call
// Finish once the pipeline is done. With no buffered audio the session
// returns to idle and ErrNoAudio is returned.
func (s *Session) StopRecording() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionStateProcessing:
		return nil, ErrSessionBusy
	case SessionStateIdle:
		return nil, ErrNotRecording
	}

	if len(s.chunks) == 0 {
		s.resetLocked()
		s.state = SessionStateIdle
		return nil, ErrNoAudio
	}

	audio := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		audio = append(audio, c...)
	}
	s.resetLocked()
	s.state = SessionStateProcessing
	return audio, nil
}

// Finish returns a processing session to idle.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.state = SessionStateIdle
}

// ExpireRecording aborts a recording that started before cutoff. It reports
// whether the session was reset.
func (s *Session) ExpireRecording(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateRecording || !s.recordingSince.Before(cutoff) {
		return false
	}
	s.resetLocked()
	s.state = SessionStateIdle
	return true
}

// BufferedBytes returns the size of the audio buffered so far.
func (s *Session) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Session) resetLocked() {
	s.chunks = nil
	s.size = 0
	s.recordingSince = time.Time{}
}
