package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[string]()

	if !f.Resolve("first") {
		t.Fatal("first Resolve should win")
	}
	if f.Resolve("second") {
		t.Error("second Resolve should be a no-op")
	}
	if f.Fail(errors.New("late failure")) {
		t.Error("Fail after Resolve should be a no-op")
	}

	got, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if got != "first" {
		t.Errorf("settled value changed: expected %q, got %q", "first", got)
	}
}

func TestFutureFail(t *testing.T) {
	f := NewFuture[int]()
	want := errors.New("engine unavailable")

	f.Fail(want)

	_, err := f.Await(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestFutureAwaitTimeout(t *testing.T) {
	f := NewFuture[string]()

	ctx, cancel := context.WithTimeout(
		context.Background(),
		20*time.Millisecond,
	)
	defer cancel()

	start := time.Now()
	_, err := f.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Await blocked well past its deadline: %v", elapsed)
	}

	// A resolution arriving after the timeout is recorded, but the timeout
	// outcome the awaiter already returned with is not altered; the late
	// value is simply never observed by that caller.
	if !f.Resolve("too late") {
		t.Error("late resolution should still be recorded")
	}
	got, err := f.Await(context.Background())
	if err != nil || got != "too late" {
		t.Errorf("late settlement not recorded: got %q, %v", got, err)
	}
}

func TestFutureSettled(t *testing.T) {
	f := NewFuture[struct{}]()
	if f.Settled() {
		t.Error("fresh future should be pending")
	}
	f.Resolve(struct{}{})
	if !f.Settled() {
		t.Error("resolved future should report settled")
	}
}

func TestFutureConcurrentSettlers(t *testing.T) {
	f := NewFuture[int]()

	const n = 16
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			wins <- f.Resolve(i)
		}(i)
	}

	winners := 0
	for i := 0; i < n; i++ {
		if <-wins {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winning Resolve, got %d", winners)
	}
}
