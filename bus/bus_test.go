package bus

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestBus() *Bus {
	return New(log.New(io.Discard))
}

func TestPublishNoSubscribers(t *testing.T) {
	b := newTestBus()

	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), LogNotice{Message: "nobody home"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish with zero subscribers did not return immediately")
	}
}

func TestPublishInvokesAllHandlersConcurrently(t *testing.T) {
	b := newTestBus()

	const n = 5
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	var completed atomic.Int32

	for i := 0; i < n; i++ {
		b.Subscribe(TypeLogNotice, func(ctx context.Context, ev Event) {
			started.Done()
			// Block until every handler has started, proving they run in
			// parallel rather than one after another.
			<-release
			completed.Add(1)
		})
	}

	go func() {
		started.Wait()
		close(release)
	}()

	b.Publish(context.Background(), LogNotice{Message: "fan out"})

	if got := completed.Load(); got != n {
		t.Errorf("expected %d handlers completed before Publish returned, got %d", n, got)
	}
}

func TestPublishWaitsForSlowHandler(t *testing.T) {
	b := newTestBus()

	var finished atomic.Bool
	b.Subscribe(TypeLogNotice, func(ctx context.Context, ev Event) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	b.Publish(context.Background(), LogNotice{Message: "slow"})

	if !finished.Load() {
		t.Error("Publish returned before its handler finished")
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := newTestBus()

	var survived atomic.Bool
	b.Subscribe(TypeLogNotice, func(ctx context.Context, ev Event) {
		panic("handler blew up")
	})
	b.Subscribe(TypeLogNotice, func(ctx context.Context, ev Event) {
		survived.Store(true)
	})

	b.Publish(context.Background(), LogNotice{Message: "boom"})

	if !survived.Load() {
		t.Error("sibling handler did not complete after a panic in another handler")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	b := newTestBus()

	b.Subscribe(TypeTranscriptionRequest, func(ctx context.Context, ev Event) {
		req := ev.(TranscriptionRequest)
		req.Reply.Resolve("hello world")
	})

	reply := NewFuture[string]()
	b.Publish(context.Background(), TranscriptionRequest{
		Audio: []byte{0x01},
		Reply: reply,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	text, err := reply.Await(ctx)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", text)
	}
}

func TestSingleHandlerConvention(t *testing.T) {
	// The bus does not enforce a single handler per request type; the wiring
	// does. This pins down that each request type ends up with exactly one
	// subscriber in a representative registration pass.
	b := newTestBus()
	for _, typ := range []Type{
		TypeTranscriptionRequest,
		TypeGenerationRequest,
		TypePlaybackRequest,
	} {
		b.Subscribe(typ, func(ctx context.Context, ev Event) {})
	}

	for _, typ := range []Type{
		TypeTranscriptionRequest,
		TypeGenerationRequest,
		TypePlaybackRequest,
	} {
		if got := b.HandlerCount(typ); got != 1 {
			t.Errorf("expected exactly one handler for %s, got %d", typ, got)
		}
	}
}
