package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/errs"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// Repository loads and saves order aggregates. Save must persist the
// aggregate's uncommitted events and the matching outbox entries in one
// transaction so that a crash cannot separate the commit from delivery.
type Repository interface {
	// Load reconstructs an aggregate from its event history.
	// Returns errs.ErrNotFound if the aggregate has no events.
	Load(ctx context.Context, id uuid.UUID) (*order.Aggregate, error)

	// Save appends the aggregate's uncommitted events under the optimistic
	// version check and enqueues them for projection delivery.
	// Returns errs.ErrConcurrentModification on a version conflict.
	Save(ctx context.Context, agg *order.Aggregate) error
}

// Result is returned by a successful dispatch. The write took effect; the
// read side catches up asynchronously.
type Result struct {
	AggregateID uuid.UUID
	Version     int
}

// Dispatcher resolves a command's handler, executes it against the write
// store, and hands the committed events to the delivery channel. The call
// returns only after the write-store commit; projection happens after.
type Dispatcher struct {
	registry *Registry
	repo     Repository
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over the given registry and repository.
func NewDispatcher(registry *Registry, repo Repository, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		repo:     repo,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch executes a command.
//
// Commands implementing appcore.AggregateCommand address an existing
// aggregate; others are creation commands and get a fresh id. Commands
// implementing appcore.VersionedCommand additionally carry the version the
// caller last observed; a mismatch fails with ErrConcurrencyConflict and
// the caller must reload and retry.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd appcore.Command) (Result, error) {
	if cmd == nil {
		return Result{}, appcore.NewValidationError("command", "must not be nil")
	}

	handler, err := d.registry.Resolve(cmd.CommandName())
	if err != nil {
		return Result{}, err
	}

	agg, err := d.loadTarget(ctx, cmd)
	if err != nil {
		return Result{}, err
	}

	if versioned, ok := cmd.(appcore.VersionedCommand); ok {
		if versioned.ExpectedVersion() != agg.Version() {
			d.logger.WarnContext(ctx, "expected version mismatch",
				slog.String("command", cmd.CommandName()),
				slog.String("aggregate_id", agg.ID().String()),
				slog.Int("expected_version", versioned.ExpectedVersion()),
				slog.Int("current_version", agg.Version()),
			)
			return Result{}, appcore.ErrConcurrencyConflict
		}
	}

	if handleErr := handler.Handle(ctx, agg, cmd); handleErr != nil {
		return Result{}, d.classifyHandlerError(cmd, handleErr)
	}

	// No events means the command was an idempotent no-op; nothing to
	// persist or deliver.
	if len(agg.UncommittedEvents()) == 0 {
		return Result{AggregateID: agg.ID(), Version: agg.Version()}, nil
	}

	if saveErr := d.repo.Save(ctx, agg); saveErr != nil {
		if errors.Is(saveErr, errs.ErrConcurrentModification) {
			return Result{}, appcore.ErrConcurrencyConflict
		}
		return Result{}, fmt.Errorf("failed to save aggregate %s: %w", agg.ID(), saveErr)
	}

	d.logger.DebugContext(ctx, "command dispatched",
		slog.String("command", cmd.CommandName()),
		slog.String("aggregate_id", agg.ID().String()),
		slog.Int("version", agg.Version()),
	)

	return Result{AggregateID: agg.ID(), Version: agg.Version()}, nil
}

// loadTarget loads the addressed aggregate or constructs a new one for
// creation commands.
func (d *Dispatcher) loadTarget(ctx context.Context, cmd appcore.Command) (*order.Aggregate, error) {
	target, ok := cmd.(appcore.AggregateCommand)
	if !ok {
		return order.NewOrderAggregate(uuid.NewUUID()), nil
	}

	id, err := uuid.ParseUUID(target.TargetID())
	if err != nil {
		return nil, appcore.NewValidationError("aggregate_id", "must be a valid UUID")
	}

	agg, err := d.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, appcore.ErrAggregateNotFound
		}
		return nil, fmt.Errorf("failed to load aggregate %s: %w", id, err)
	}

	return agg, nil
}

// classifyHandlerError maps domain failures to the application error
// taxonomy. Business-rule failures become rejections with no side effect.
func (d *Dispatcher) classifyHandlerError(cmd appcore.Command, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return appcore.ErrAggregateNotFound
	case errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrInvalidTransition),
		errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrInvalidState),
		errors.Is(err, errs.ErrDeleted):
		return appcore.NewRejectionError(cmd.CommandName(), err.Error())
	default:
		return fmt.Errorf("handler for %s failed: %w", cmd.CommandName(), err)
	}
}
