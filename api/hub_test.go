package api

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type fakeListener struct {
	frames   [][]byte
	writeErr error
	closed   bool
}

func (f *fakeListener) WriteMessage(messageType int, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeListener) Close() error {
	f.closed = true
	return nil
}

func TestBroadcastSurvivesFailedListener(t *testing.T) {
	hub := NewHub(log.New(io.Discard))

	l1 := &fakeListener{writeErr: errors.New("connection reset")}
	l2 := &fakeListener{}
	hub.Add(l1)
	hub.Add(l2)

	hub.Broadcast(1, []byte("hello"))

	if len(l2.frames) != 1 || string(l2.frames[0]) != "hello" {
		t.Errorf("healthy listener missed the frame: %v", l2.frames)
	}
	if !l1.closed {
		t.Error("failed listener should have been closed")
	}
	if hub.Count() != 1 {
		t.Errorf("failed listener should be evicted, %d remain", hub.Count())
	}

	// The evicted listener stays gone on the next broadcast.
	hub.Broadcast(1, []byte("again"))
	if len(l2.frames) != 2 {
		t.Errorf("expected second frame delivered, got %d", len(l2.frames))
	}
}

// overlapListener records whether two writes ever ran at the same time,
// which a websocket connection does not tolerate.
type overlapListener struct {
	inflight  atomic.Int32
	overlap   atomic.Bool
	delivered atomic.Int32
}

func (o *overlapListener) WriteMessage(messageType int, data []byte) error {
	if o.inflight.Add(1) > 1 {
		o.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	o.inflight.Add(-1)
	o.delivered.Add(1)
	return nil
}

func (o *overlapListener) Close() error { return nil }

func TestConcurrentBroadcastsNeverOverlapWrites(t *testing.T) {
	hub := NewHub(log.New(io.Discard))

	l := &overlapListener{}
	hub.Add(l)

	// Two speakers finishing at once publish from independent goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(1, []byte("frame"))
		}()
	}
	wg.Wait()

	if l.overlap.Load() {
		t.Error("two broadcasts wrote to the same listener concurrently")
	}
	if got := l.delivered.Load(); got != 2 {
		t.Errorf("expected both frames delivered, got %d", got)
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	hub.Broadcast(1, []byte("into the void")) // must not panic
}
