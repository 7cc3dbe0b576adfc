package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default engine configuration values.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultBackoffFactor  = 2.0
	defaultBufferLimit    = 64
)

// EngineConfig configures the projection engine.
type EngineConfig struct {
	// MaxAttempts is the number of attempts for transiently failing events
	// before the engine gives up and routes the event to the dead letter
	// store for the repair worker to recover.
	MaxAttempts int

	// InitialBackoff is the delay before the first transient retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to the backoff per retry.
	BackoffFactor float64

	// BufferLimit caps the number of out-of-order events buffered per
	// aggregate. Events beyond the cap are dropped and recovered by
	// rebuild.
	BufferLimit int
}

// DefaultEngineConfig returns sensible default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
		BufferLimit:    defaultBufferLimit,
	}
}

// Engine feeds events from the bus into the registered projectors. It
// enforces per-aggregate ordering by buffering events that arrive ahead of
// their turn, retries transient failures with exponential backoff, and
// routes events the projectors cannot apply to the dead letter store.
// Projectors run sequentially in registration order for every event.
//
// Event application is serialized across the whole engine. The bus delivers
// messages concurrently, and projections like the customer summary
// read-modify-write a document shared by several aggregates; interleaved
// applies would lose updates.
type Engine struct {
	projectors  []appcore.ReadModelProjector
	deadLetters appcore.DeadLetterStore
	logger      *slog.Logger
	config      EngineConfig
	metrics     *metrics.ProjectionMetrics

	applyMu sync.Mutex

	mu      sync.Mutex
	pending map[string]map[int]event.DomainEvent
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineConfig sets the engine configuration.
func WithEngineConfig(config EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = config
	}
}

// WithEngineMetrics sets the Prometheus metrics for the engine.
func WithEngineMetrics(m *metrics.ProjectionMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a projection engine over the given projectors.
func NewEngine(
	deadLetters appcore.DeadLetterStore,
	projectors []appcore.ReadModelProjector,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		projectors:  projectors,
		deadLetters: deadLetters,
		logger:      slog.Default(),
		config:      DefaultEngineConfig(),
		pending:     make(map[string]map[int]event.DomainEvent),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// HandleEvent is the bus-facing entry point. A returned error means the
// event was neither applied, buffered nor dead-lettered, and should be
// redelivered.
func (e *Engine) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	start := time.Now()
	err := e.applyWithRetry(ctx, evt)
	if e.metrics != nil {
		e.metrics.ApplyDuration.WithLabelValues(evt.EventType()).Observe(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		e.observe(evt, "applied")
		e.drainPending(ctx, evt.AggregateID())
		return nil

	case errors.Is(err, ErrSequenceGap):
		e.bufferEvent(ctx, evt)
		e.observe(evt, "buffered")
		return nil

	case appcore.IsTransient(err):
		// The bus has no redelivery once its own retries run out, so an
		// exhausted event must land in the dead letter store where the
		// repair worker schedules a rebuild.
		e.logger.WarnContext(ctx, "projection attempts exhausted, routing to dead letter store",
			slog.String("event_type", evt.EventType()),
			slog.String("aggregate_id", evt.AggregateID()),
			slog.Int("sequence", evt.Sequence()),
			slog.String("error", err.Error()),
		)
		return e.routeDeadLetter(ctx, evt, err)

	default:
		return e.routeDeadLetter(ctx, evt, err)
	}
}

// RebuildAll rebuilds every registered projector and clears the ordering
// buffer afterwards.
func (e *Engine) RebuildAll(ctx context.Context) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	for _, p := range e.projectors {
		if err := p.RebuildAll(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.pending = make(map[string]map[int]event.DomainEvent)
	e.mu.Unlock()
	e.updateBufferGauge()

	return nil
}

// RebuildOne rebuilds a single aggregate across every registered projector
// and drops its buffered events.
func (e *Engine) RebuildOne(ctx context.Context, aggregateID uuid.UUID) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	for _, p := range e.projectors {
		if err := p.RebuildOne(ctx, aggregateID); err != nil {
			return err
		}
	}

	e.mu.Lock()
	delete(e.pending, aggregateID.String())
	e.mu.Unlock()
	e.updateBufferGauge()

	return nil
}

// BufferedCount returns the number of buffered out-of-order events.
func (e *Engine) BufferedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for _, bySeq := range e.pending {
		total += len(bySeq)
	}
	return total
}

// applyWithRetry runs all projectors over the event, retrying transient
// failures with exponential backoff. Projectors are idempotent, so the
// whole event is retried even if some projectors already applied it.
func (e *Engine) applyWithRetry(ctx context.Context, evt event.DomainEvent) error {
	backoff := e.config.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := e.applyProjectors(ctx, evt)
		if err == nil || !appcore.IsTransient(err) {
			return err
		}
		if attempt >= e.config.MaxAttempts {
			return err
		}

		if e.metrics != nil {
			e.metrics.RetryTotal.WithLabelValues(evt.EventType()).Inc()
		}
		e.logger.DebugContext(ctx, "retrying projection after transient failure",
			slog.String("event_type", evt.EventType()),
			slog.String("aggregate_id", evt.AggregateID()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return appcore.MarkTransient(ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * e.config.BackoffFactor)
		if backoff > e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
		}
	}
}

func (e *Engine) applyProjectors(ctx context.Context, evt event.DomainEvent) error {
	for _, p := range e.projectors {
		if err := p.ProcessEvent(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// bufferEvent stores an out-of-order event until the missing sequences
// arrive. The buffer is bounded; overflow drops the event, to be recovered
// by redelivery or rebuild.
func (e *Engine) bufferEvent(ctx context.Context, evt event.DomainEvent) {
	e.mu.Lock()
	bySeq, ok := e.pending[evt.AggregateID()]
	if !ok {
		bySeq = make(map[int]event.DomainEvent)
		e.pending[evt.AggregateID()] = bySeq
	}
	if len(bySeq) >= e.config.BufferLimit {
		e.mu.Unlock()
		e.logger.ErrorContext(ctx, "ordering buffer full, dropping event",
			slog.String("event_type", evt.EventType()),
			slog.String("aggregate_id", evt.AggregateID()),
			slog.Int("sequence", evt.Sequence()),
			slog.Int("buffer_limit", e.config.BufferLimit),
		)
		return
	}
	bySeq[evt.Sequence()] = evt
	e.mu.Unlock()

	e.updateBufferGauge()
	e.logger.DebugContext(ctx, "buffered out-of-order event",
		slog.String("event_type", evt.EventType()),
		slog.String("aggregate_id", evt.AggregateID()),
		slog.Int("sequence", evt.Sequence()),
	)
}

// drainPending replays buffered events for an aggregate in sequence order
// after a successful apply advanced its position.
func (e *Engine) drainPending(ctx context.Context, aggregateID string) {
	for {
		evt, ok := e.takeNextPending(aggregateID)
		if !ok {
			return
		}

		err := e.applyWithRetry(ctx, evt)
		switch {
		case err == nil:
			e.observe(evt, "applied")
			continue

		case errors.Is(err, ErrSequenceGap):
			// Still ahead of its turn, put it back.
			e.bufferEvent(ctx, evt)
			return

		case appcore.IsTransient(err):
			e.logger.WarnContext(ctx, "projection attempts exhausted while draining buffer",
				slog.String("aggregate_id", aggregateID),
				slog.Int("sequence", evt.Sequence()),
				slog.String("error", err.Error()),
			)
			if dlErr := e.routeDeadLetter(ctx, evt, err); dlErr != nil {
				e.bufferEvent(ctx, evt)
				return
			}

		default:
			if dlErr := e.routeDeadLetter(ctx, evt, err); dlErr != nil {
				e.bufferEvent(ctx, evt)
				return
			}
		}
	}
}

// takeNextPending removes and returns the lowest buffered sequence for an
// aggregate.
func (e *Engine) takeNextPending(aggregateID string) (event.DomainEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bySeq, ok := e.pending[aggregateID]
	if !ok || len(bySeq) == 0 {
		return nil, false
	}

	minSeq := 0
	for seq := range bySeq {
		if minSeq == 0 || seq < minSeq {
			minSeq = seq
		}
	}

	evt := bySeq[minSeq]
	delete(bySeq, minSeq)
	if len(bySeq) == 0 {
		delete(e.pending, aggregateID)
	}

	return evt, true
}

// routeDeadLetter records an event the projectors could not apply. The
// aggregate's projection stalls at this sequence until the repair worker or
// an operator rebuilds it. A store failure is returned so the event gets
// redelivered instead of lost.
func (e *Engine) routeDeadLetter(ctx context.Context, evt event.DomainEvent, cause error) error {
	payload, err := eventPayload(evt)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to capture dead letter payload",
			slog.String("event_type", evt.EventType()),
			slog.String("error", err.Error()),
		)
		payload = nil
	}

	letter := appcore.DeadLetter{
		ID:            uuid.NewUUID().String(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		EventType:     evt.EventType(),
		Sequence:      evt.Sequence(),
		Payload:       payload,
		Reason:        cause.Error(),
		FailedAt:      time.Now(),
		Attempts:      e.config.MaxAttempts,
	}

	if addErr := e.deadLetters.Add(ctx, letter); addErr != nil {
		e.logger.ErrorContext(ctx, "failed to store dead letter",
			slog.String("event_type", evt.EventType()),
			slog.String("aggregate_id", evt.AggregateID()),
			slog.String("error", addErr.Error()),
		)
		return fmt.Errorf("failed to store dead letter: %w", addErr)
	}

	if e.metrics != nil {
		e.metrics.DeadLetterTotal.Inc()
	}
	e.observe(evt, "dead_letter")
	e.logger.ErrorContext(ctx, "event routed to dead letter store",
		slog.String("event_type", evt.EventType()),
		slog.String("aggregate_id", evt.AggregateID()),
		slog.Int("sequence", evt.Sequence()),
		slog.String("reason", cause.Error()),
	)

	return nil
}

func (e *Engine) observe(evt event.DomainEvent, status string) {
	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(evt.EventType(), status).Inc()
	}
}

func (e *Engine) updateBufferGauge() {
	if e.metrics != nil {
		e.metrics.BufferedEvents.Set(float64(e.BufferedCount()))
	}
}

// eventPayload extracts the raw JSON payload of an event, marshalling typed
// events when no carrier payload is available.
func eventPayload(evt event.DomainEvent) ([]byte, error) {
	if carrier, ok := evt.(interface{ Payload() []byte }); ok {
		return carrier.Payload(), nil
	}
	return json.Marshal(evt)
}
