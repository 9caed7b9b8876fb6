package websocket

import (
	"time"

	"go.uber.org/zap"
)

// RecordingJanitor aborts recordings that were started but never stopped,
// so an abandoned start_recording cannot pin audio in memory.
type RecordingJanitor struct {
	hub         *Hub
	maxDuration time.Duration
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewRecordingJanitor creates a janitor that checks every interval
func NewRecordingJanitor(hub *Hub, maxDuration, interval time.Duration, logger *zap.Logger) *RecordingJanitor {
	if interval <= 0 {
		interval = maxDuration / 4
	}
	return &RecordingJanitor{
		hub:         hub,
		maxDuration: maxDuration,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process. A zero maxDuration disables it.
func (j *RecordingJanitor) Start() {
	if j.maxDuration <= 0 {
		j.logger.Info("Recording janitor disabled")
		return
	}
	go j.cleanupLoop()
	j.logger.Info("Recording janitor started", zap.Duration("maxDuration", j.maxDuration))
}

// Stop stops the cleanup loop
func (j *RecordingJanitor) Stop() {
	close(j.stopChan)
	j.logger.Info("Recording janitor stopped")
}

func (j *RecordingJanitor) cleanupLoop() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			if n := j.hub.expireRecordings(j.maxDuration); n > 0 {
				j.logger.Info("Expired stale recordings", zap.Int("count", n))
			}
		}
	}
}
