package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/orderflow/orderflow/internal/domain/event"
)

// InProcessBus implements event.Bus with synchronous in-process delivery.
// Handlers run on the publisher's goroutine in subscription order, which
// makes delivery deterministic for single-binary setups and tests.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *slog.Logger
}

// InProcessOption configures an InProcessBus.
type InProcessOption func(*InProcessBus)

// WithInProcessLogger sets the logger for the in-process bus.
func WithInProcessLogger(logger *slog.Logger) InProcessOption {
	return func(b *InProcessBus) {
		b.logger = logger
	}
}

// NewInProcessBus creates a new in-process event bus.
func NewInProcessBus(opts ...InProcessOption) *InProcessBus {
	b := &InProcessBus{
		handlers: make(map[string][]EventHandler),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers an event handler for a specific event type.
func (b *InProcessBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	return nil
}

// Publish delivers a domain event to all handlers subscribed to its type.
// The first handler error aborts delivery and is returned to the caller,
// so the publisher can retry the whole event.
func (b *InProcessBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers[evt.EventType()]))
	copy(handlers, b.handlers[evt.EventType()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			b.logger.WarnContext(ctx, "event handler failed",
				slog.String("event_type", evt.EventType()),
				slog.String("aggregate_id", evt.AggregateID()),
				slog.Int("handler_index", i),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	b.logger.DebugContext(ctx, "event delivered",
		slog.String("event_type", evt.EventType()),
		slog.String("aggregate_id", evt.AggregateID()),
		slog.Int("sequence", evt.Sequence()),
		slog.Int("handler_count", len(handlers)),
	)

	return nil
}

// HandlerCount returns the number of handlers registered for an event type.
func (b *InProcessBus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

var _ event.Bus = (*InProcessBus)(nil)
