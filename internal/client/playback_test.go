package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// recordingPlayer records play order and flags overlapping calls. Each play
// takes a per-fragment duration so completion timing varies.
type recordingPlayer struct {
	mu       sync.Mutex
	active   int
	overlap  bool
	order    []string
	delays   map[string]time.Duration
	failures map[string]bool
}

func (p *recordingPlayer) Play(ctx context.Context, audio []byte) error {
	name := string(audio)

	p.mu.Lock()
	p.active++
	if p.active > 1 {
		p.overlap = true
	}
	delay := p.delays[name]
	fail := p.failures[name]
	p.mu.Unlock()

	time.Sleep(delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if fail {
		return errors.New("decode failed")
	}
	p.order = append(p.order, name)
	return nil
}

func TestPlaybackScheduler_PlaysInEnqueueOrder(t *testing.T) {
	player := &recordingPlayer{
		delays: map[string]time.Duration{"A": 30 * time.Millisecond, "B": time.Millisecond, "C": 10 * time.Millisecond},
	}
	scheduler := NewPlaybackScheduler(context.Background(), player, zaptest.NewLogger(t))

	scheduler.Enqueue([]byte("A"))
	scheduler.Enqueue([]byte("B"))
	scheduler.Enqueue([]byte("C"))
	scheduler.Wait()

	if got := join(player.order); got != "ABC" {
		t.Errorf("Expected ABC, got %s", got)
	}
	if player.overlap {
		t.Error("Expected no overlapping playback")
	}
	if played, skipped := scheduler.Stats(); played != 3 || skipped != 0 {
		t.Errorf("Expected 3 played 0 skipped, got %d %d", played, skipped)
	}
}

func TestPlaybackScheduler_SkipsFailedFragment(t *testing.T) {
	player := &recordingPlayer{
		delays:   map[string]time.Duration{"A": 5 * time.Millisecond},
		failures: map[string]bool{"B": true},
	}
	scheduler := NewPlaybackScheduler(context.Background(), player, zaptest.NewLogger(t))

	for _, name := range []string{"A", "B", "C"} {
		scheduler.Enqueue([]byte(name))
	}
	scheduler.Wait()

	if got := join(player.order); got != "AC" {
		t.Errorf("Expected AC, got %s", got)
	}
	if played, skipped := scheduler.Stats(); played != 2 || skipped != 1 {
		t.Errorf("Expected 2 played 1 skipped, got %d %d", played, skipped)
	}
}

func TestPlaybackScheduler_EnqueueWhilePlaying(t *testing.T) {
	player := &recordingPlayer{
		delays: map[string]time.Duration{"A": 20 * time.Millisecond},
	}
	scheduler := NewPlaybackScheduler(context.Background(), player, zaptest.NewLogger(t))

	scheduler.Enqueue([]byte("A"))
	time.Sleep(5 * time.Millisecond)
	scheduler.Enqueue([]byte("B"))
	if scheduler.Pending() != 1 {
		t.Errorf("Expected B to wait behind A, pending %d", scheduler.Pending())
	}
	scheduler.Wait()

	// idle again, the next fragment starts a fresh drain
	scheduler.Enqueue([]byte("C"))
	scheduler.Wait()

	if got := join(player.order); got != "ABC" {
		t.Errorf("Expected ABC, got %s", got)
	}
}

func TestPlaybackScheduler_IgnoresEmptyFragments(t *testing.T) {
	player := &recordingPlayer{}
	scheduler := NewPlaybackScheduler(context.Background(), player, zaptest.NewLogger(t))

	scheduler.Enqueue(nil)
	scheduler.Wait()

	if played, skipped := scheduler.Stats(); played != 0 || skipped != 0 {
		t.Errorf("Expected nothing played, got %d %d", played, skipped)
	}
}

func TestPlaybackScheduler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	player := &recordingPlayer{
		delays: map[string]time.Duration{"A": 20 * time.Millisecond},
	}
	scheduler := NewPlaybackScheduler(ctx, player, zaptest.NewLogger(t))

	scheduler.Enqueue([]byte("A"))
	scheduler.Enqueue([]byte("B"))
	time.Sleep(5 * time.Millisecond)
	cancel()
	scheduler.Wait()

	if got := join(player.order); got != "A" {
		t.Errorf("Expected only A to play, got %s", got)
	}
}

func TestWriterPlayer(t *testing.T) {
	var buf bytes.Buffer
	scheduler := NewPlaybackScheduler(context.Background(), NewWriterPlayer(&buf), zaptest.NewLogger(t))

	scheduler.Enqueue([]byte("one "))
	scheduler.Enqueue([]byte("two"))
	scheduler.Wait()

	if buf.String() != "one two" {
		t.Errorf("Expected fragments in order, got %q", buf.String())
	}
}

func join(parts []string) string {
	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.String()
}
