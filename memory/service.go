package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"penny.bot/bus"
)

var ErrStoreUnavailable = errors.New("memory store not available")

// Recaller is the store contract the service depends on. *PostgresStore
// satisfies it; tests substitute a stub.
type Recaller interface {
	Add(ctx context.Context, text string, metadata map[string]string) (string, error)
	Query(ctx context.Context, query string, limit int) ([]bus.MemoryEntry, error)
	Delete(ctx context.Context, id string) error
}

// Service answers the three memory request event types.
type Service struct {
	bus   *bus.Bus
	store Recaller
	log   *log.Logger
}

func NewService(b *bus.Bus, store Recaller, logger *log.Logger) *Service {
	return &Service{bus: b, store: store, log: logger}
}

func (s *Service) Start(ctx context.Context) error {
	s.bus.Subscribe(bus.TypeMemoryAddRequest, s.handleAdd)
	s.bus.Subscribe(bus.TypeMemoryQueryRequest, s.handleQuery)
	s.bus.Subscribe(bus.TypeMemoryDeleteRequest, s.handleDelete)
	s.bus.Publish(ctx, bus.LogNotice{
		Message: "memory service ready",
		Level:   bus.LevelInfo,
	})
	return nil
}

func (s *Service) handleAdd(ctx context.Context, ev bus.Event) {
	req := ev.(bus.MemoryAddRequest)
	if s.store == nil {
		req.Reply.Fail(ErrStoreUnavailable)
		return
	}

	id, err := s.store.Add(ctx, req.Text, req.Metadata)
	if err != nil {
		s.log.Error("memory add failed", "error", err)
		req.Reply.Fail(fmt.Errorf("add memory: %w", err))
		return
	}
	req.Reply.Resolve(id)
}

func (s *Service) handleQuery(ctx context.Context, ev bus.Event) {
	req := ev.(bus.MemoryQueryRequest)
	if s.store == nil {
		req.Reply.Fail(ErrStoreUnavailable)
		return
	}

	entries, err := s.store.Query(ctx, req.Query, req.Limit)
	if err != nil {
		s.log.Error("memory query failed", "error", err, "query", req.Query)
		req.Reply.Fail(fmt.Errorf("query memory: %w", err))
		return
	}
	req.Reply.Resolve(entries)
}

func (s *Service) handleDelete(ctx context.Context, ev bus.Event) {
	req := ev.(bus.MemoryDeleteRequest)
	if s.store == nil {
		req.Reply.Fail(ErrStoreUnavailable)
		return
	}

	if err := s.store.Delete(ctx, req.ID); err != nil {
		s.log.Error("memory delete failed", "error", err, "id", req.ID)
		req.Reply.Fail(fmt.Errorf("delete memory: %w", err))
		return
	}
	req.Reply.Resolve(struct{}{})
}
