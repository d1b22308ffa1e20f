// Package stt owns the speech-to-text side of the bus: the Transcriber
// contract and the service that answers TranscriptionRequest events.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"penny.bot/bus"
)

var ErrEngineUnavailable = errors.New("transcription engine not available")

// Transcriber turns a WAV clip into text. Implementations may block; the
// service keeps them off the dispatching path and bounds their concurrency.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Service is the sole bus subscriber for TranscriptionRequest events.
type Service struct {
	bus    *bus.Bus
	engine Transcriber
	log    *log.Logger
	sem    *semaphore.Weighted
}

func NewService(
	b *bus.Bus,
	engine Transcriber,
	logger *log.Logger,
	maxConcurrent int64,
) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		bus:    b,
		engine: engine,
		log:    logger,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}
}

// Start registers the service on the bus. Call before any publish.
func (s *Service) Start(ctx context.Context) error {
	s.bus.Subscribe(bus.TypeTranscriptionRequest, s.handleRequest)
	s.bus.Publish(ctx, bus.LogNotice{
		Message: "transcription service ready",
		Level:   bus.LevelInfo,
	})
	return nil
}

func (s *Service) handleRequest(ctx context.Context, ev bus.Event) {
	req := ev.(bus.TranscriptionRequest)

	if s.engine == nil {
		req.Reply.Fail(ErrEngineUnavailable)
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		req.Reply.Fail(fmt.Errorf("transcription queue: %w", err))
		return
	}
	defer s.sem.Release(1)

	text, err := s.engine.Transcribe(ctx, req.Audio)
	if err != nil {
		s.log.Error("transcription failed", "error", err, "bytes", len(req.Audio))
		req.Reply.Fail(fmt.Errorf("transcribe: %w", err))
		return
	}

	req.Reply.Resolve(strings.TrimSpace(text))
}
