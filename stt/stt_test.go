package stt

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"penny.bot/bus"
)

type fakeEngine struct {
	text string
	err  error
	got  []byte
}

func (f *fakeEngine) Transcribe(
	ctx context.Context,
	wav []byte,
) (string, error) {
	f.got = wav
	return f.text, f.err
}

func publishAndAwait(
	t *testing.T,
	b *bus.Bus,
	audio []byte,
) (string, error) {
	t.Helper()
	reply := bus.NewFuture[string]()
	b.Publish(context.Background(), bus.TranscriptionRequest{
		Audio: audio,
		Reply: reply,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return reply.Await(ctx)
}

func TestServiceResolvesTranscript(t *testing.T) {
	b := bus.New(log.New(io.Discard))
	engine := &fakeEngine{text: "  hello there  "}
	svc := NewService(b, engine, log.New(io.Discard), 2)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	text, err := publishAndAwait(t, b, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected trimmed transcript, got %q", text)
	}
	if len(engine.got) != 2 {
		t.Errorf("engine received %d bytes, expected 2", len(engine.got))
	}
}

func TestServiceFailsReplyOnEngineError(t *testing.T) {
	b := bus.New(log.New(io.Discard))
	engineErr := errors.New("model crashed")
	svc := NewService(b, &fakeEngine{err: engineErr}, log.New(io.Discard), 1)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := publishAndAwait(t, b, []byte{0x01})
	if !errors.Is(err, engineErr) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
}

func TestServiceWithoutEngine(t *testing.T) {
	b := bus.New(log.New(io.Discard))
	svc := NewService(b, nil, log.New(io.Discard), 1)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := publishAndAwait(t, b, []byte{0x01})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}
}
