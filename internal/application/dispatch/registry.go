// Package dispatch routes commands to their handlers and executes them
// against the write store.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/order"
)

// Handler executes the business logic of one command type against the
// loaded aggregate. A handler mutates the aggregate through its domain
// methods only; persistence is owned by the dispatcher.
type Handler interface {
	Handle(ctx context.Context, agg *order.Aggregate, cmd appcore.Command) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, agg *order.Aggregate, cmd appcore.Command) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, agg *order.Aggregate, cmd appcore.Command) error {
	return f(ctx, agg, cmd)
}

// Registry maps command names to handlers. It is populated once at startup
// and read-only afterwards; there is no runtime re-registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a command name. Exactly one handler per
// command type is allowed; a second registration fails with
// ErrDuplicateHandler.
func (r *Registry) Register(commandName string, handler Handler) error {
	if commandName == "" {
		return fmt.Errorf("register: empty command name")
	}
	if handler == nil {
		return fmt.Errorf("register %s: nil handler", commandName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[commandName]; exists {
		return fmt.Errorf("%w: %s", appcore.ErrDuplicateHandler, commandName)
	}
	r.handlers[commandName] = handler

	return nil
}

// MustRegister registers a handler and panics on error. Intended for
// process startup where a duplicate registration is a programming error.
func (r *Registry) MustRegister(commandName string, handler Handler) {
	if err := r.Register(commandName, handler); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for a command name or ErrUnknownCommand.
func (r *Registry) Resolve(commandName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[commandName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", appcore.ErrUnknownCommand, commandName)
	}

	return handler, nil
}
