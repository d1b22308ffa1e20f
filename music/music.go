// Package music answers GenerationRequest events with generated audio.
package music

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"penny.bot/bus"
)

var ErrEngineUnavailable = errors.New("generation engine not available")

// Generator produces a WAV clip for a text prompt. Generation is slow and
// GPU-bound on the far side; callers go through the bus and await with a
// deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string, seconds int) ([]byte, error)
}

// Service is the sole bus subscriber for GenerationRequest events.
type Service struct {
	bus    *bus.Bus
	engine Generator
	log    *log.Logger
	sem    *semaphore.Weighted
}

func NewService(
	b *bus.Bus,
	engine Generator,
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

func (s *Service) Start(ctx context.Context) error {
	s.bus.Subscribe(bus.TypeGenerationRequest, s.handleRequest)
	s.bus.Publish(ctx, bus.LogNotice{
		Message: "music generation service ready",
		Level:   bus.LevelInfo,
	})
	return nil
}

func (s *Service) handleRequest(ctx context.Context, ev bus.Event) {
	req := ev.(bus.GenerationRequest)

	if s.engine == nil {
		req.Reply.Fail(ErrEngineUnavailable)
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		req.Reply.Fail(fmt.Errorf("generation queue: %w", err))
		return
	}
	defer s.sem.Release(1)

	wav, err := s.engine.Generate(ctx, req.Prompt, req.Duration)
	if err != nil {
		s.log.Error(
			"music generation failed",
			"error", err,
			"prompt", req.Prompt,
		)
		req.Reply.Fail(fmt.Errorf("generate: %w", err))
		return
	}

	req.Reply.Resolve(wav)
}
