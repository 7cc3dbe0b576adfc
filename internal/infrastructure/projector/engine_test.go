package projector_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
	"github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/deadletter"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	"github.com/orderflow/orderflow/internal/infrastructure/projector"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/inmemory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastEngineConfig() projector.EngineConfig {
	config := projector.DefaultEngineConfig()
	config.MaxAttempts = 2
	config.InitialBackoff = time.Millisecond
	config.MaxBackoff = 2 * time.Millisecond
	return config
}

// orderHistory builds a committed three-event history: created, item added,
// shipped.
func orderHistory(t *testing.T) (*order.Aggregate, []event.DomainEvent) {
	t.Helper()

	agg := order.NewOrderAggregate(uuid.NewUUID())
	actor := uuid.NewUUID()
	require.NoError(t, agg.Create(uuid.NewUUID(), []order.Item{{SKU: "SKU-A", Quantity: 2}}, actor))
	require.NoError(t, agg.AddItem(order.Item{SKU: "SKU-B", Quantity: 1}, actor))
	require.NoError(t, agg.Ship(actor))

	events := agg.UncommittedEvents()
	require.Len(t, events, 3)

	return agg, events
}

// fakeProjector tracks applied sequences per aggregate and injects failures
// for specific sequences.
type fakeProjector struct {
	mu         sync.Mutex
	lastSeq    map[string]int
	failOnce   map[int]error
	failAlways map[int]error
	attempts   map[int]int
	rebuilt    []string
}

func newFakeProjector() *fakeProjector {
	return &fakeProjector{
		lastSeq:    make(map[string]int),
		failOnce:   make(map[int]error),
		failAlways: make(map[int]error),
		attempts:   make(map[int]int),
	}
}

func (p *fakeProjector) ProcessEvent(_ context.Context, evt event.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq := evt.Sequence()
	p.attempts[seq]++

	if err, ok := p.failOnce[seq]; ok {
		delete(p.failOnce, seq)
		return err
	}
	if err, ok := p.failAlways[seq]; ok {
		return err
	}

	last := p.lastSeq[evt.AggregateID()]
	if seq <= last {
		return nil
	}
	if seq > last+1 {
		return projector.ErrSequenceGap
	}

	p.lastSeq[evt.AggregateID()] = seq
	return nil
}

func (p *fakeProjector) RebuildOne(_ context.Context, aggregateID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebuilt = append(p.rebuilt, aggregateID.String())
	return nil
}

func (p *fakeProjector) RebuildAll(_ context.Context) error { return nil }

func (p *fakeProjector) VerifyConsistency(_ context.Context, _ uuid.UUID) (bool, error) {
	return true, nil
}

func (p *fakeProjector) appliedSeq(aggregateID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeq[aggregateID]
}

func (p *fakeProjector) attemptCount(seq int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[seq]
}

type failingDeadLetterStore struct{}

func (failingDeadLetterStore) Add(context.Context, appcore.DeadLetter) error {
	return errors.New("store unavailable")
}

func (failingDeadLetterStore) List(context.Context, int) ([]appcore.DeadLetter, error) {
	return nil, nil
}

func (failingDeadLetterStore) ListAggregateIDs(context.Context) ([]string, error) {
	return nil, nil
}

func (failingDeadLetterStore) Remove(context.Context, string) error { return nil }

func (failingDeadLetterStore) Count(context.Context) (int64, error) { return 0, nil }

func TestEngine_BuffersAndDrainsOutOfOrderEvents(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(fastEngineConfig()),
	)
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, events[0]))
	assert.Equal(t, 1, fake.appliedSeq(agg.ID().String()))

	// Sequence 3 arrives before 2 and must wait in the buffer.
	require.NoError(t, engine.HandleEvent(ctx, events[2]))
	assert.Equal(t, 1, fake.appliedSeq(agg.ID().String()))
	assert.Equal(t, 1, engine.BufferedCount())

	// The missing sequence releases the buffered one.
	require.NoError(t, engine.HandleEvent(ctx, events[1]))
	assert.Equal(t, 3, fake.appliedSeq(agg.ID().String()))
	assert.Equal(t, 0, engine.BufferedCount())
}

func TestEngine_RedeliveredEventIsNoOp(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
	)
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, events[0]))
	require.NoError(t, engine.HandleEvent(ctx, events[0]))

	assert.Equal(t, 1, fake.appliedSeq(agg.ID().String()))
}

func TestEngine_TransientFailureRetriesAndSucceeds(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	fake.failOnce[1] = appcore.MarkTransient(errors.New("read store timeout"))

	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(fastEngineConfig()),
	)

	require.NoError(t, engine.HandleEvent(context.Background(), events[0]))
	assert.Equal(t, 1, fake.appliedSeq(agg.ID().String()))
	assert.Equal(t, 2, fake.attemptCount(1))
}

func TestEngine_TransientExhaustionRoutesToDeadLetter(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	fake.failAlways[1] = appcore.MarkTransient(errors.New("read store down"))

	deadLetters := deadletter.NewInMemoryStore()
	engine := projector.NewEngine(
		deadLetters,
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(fastEngineConfig()),
	)

	// The bus drops the message after its own retries, so the event must be
	// consumed and recorded rather than returned for a redelivery that will
	// never come.
	require.NoError(t, engine.HandleEvent(context.Background(), events[0]))
	assert.Equal(t, 2, fake.attemptCount(1))

	letters, err := deadLetters.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, agg.ID().String(), letters[0].AggregateID)
	assert.Equal(t, 1, letters[0].Sequence)
	assert.Contains(t, letters[0].Reason, "read store down")
}

func TestEngine_SemanticFailureRoutesToDeadLetterAndStalls(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	fake.failAlways[2] = errors.New("unknown event type")

	deadLetters := deadletter.NewInMemoryStore()
	engine := projector.NewEngine(
		deadLetters,
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(fastEngineConfig()),
	)
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, events[0]))

	// The poisoned event is consumed, not redelivered.
	require.NoError(t, engine.HandleEvent(ctx, events[1]))

	letters, err := deadLetters.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, agg.ID().String(), letters[0].AggregateID)
	assert.Equal(t, order.AggregateType, letters[0].AggregateType)
	assert.Equal(t, order.EventTypeItemAdded, letters[0].EventType)
	assert.Equal(t, 2, letters[0].Sequence)
	assert.Contains(t, letters[0].Reason, "unknown event type")

	// The aggregate stalls at sequence 1; later events only buffer.
	require.NoError(t, engine.HandleEvent(ctx, events[2]))
	assert.Equal(t, 1, fake.appliedSeq(agg.ID().String()))
	assert.Equal(t, 1, engine.BufferedCount())
}

func TestEngine_DeadLetterStoreFailureKeepsEventOnBus(t *testing.T) {
	_, events := orderHistory(t)
	fake := newFakeProjector()
	fake.failAlways[1] = errors.New("corrupt payload")

	engine := projector.NewEngine(
		failingDeadLetterStore{},
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(fastEngineConfig()),
	)

	err := engine.HandleEvent(context.Background(), events[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestEngine_BufferOverflowDropsEvent(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()

	config := fastEngineConfig()
	config.BufferLimit = 1
	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
		projector.WithEngineConfig(config),
	)
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, events[1]))
	require.NoError(t, engine.HandleEvent(ctx, events[2]))
	assert.Equal(t, 1, engine.BufferedCount())

	// Sequence 1 drains the surviving buffered event. Sequence 3 was
	// dropped and needs redelivery or a rebuild.
	require.NoError(t, engine.HandleEvent(ctx, events[0]))
	assert.Equal(t, 2, fake.appliedSeq(agg.ID().String()))
	assert.Equal(t, 0, engine.BufferedCount())
}

func TestEngine_RebuildOneClearsBufferForAggregate(t *testing.T) {
	agg, events := orderHistory(t)
	fake := newFakeProjector()
	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{fake},
		projector.WithEngineLogger(newTestLogger()),
	)
	ctx := context.Background()

	require.NoError(t, engine.HandleEvent(ctx, events[2]))
	require.Equal(t, 1, engine.BufferedCount())

	require.NoError(t, engine.RebuildOne(ctx, agg.ID()))
	assert.Equal(t, 0, engine.BufferedCount())
	assert.Contains(t, fake.rebuilt, agg.ID().String())
}

func TestEngine_ConcurrentDeliveriesKeepSummaryComplete(t *testing.T) {
	store := eventstore.NewInMemoryEventStore()
	reads := inmemory.NewOrderReadRepository()
	engine := projector.NewEngine(
		deadletter.NewInMemoryStore(),
		[]appcore.ReadModelProjector{
			projector.NewOrderProjector(reads, store, newTestLogger()),
			projector.NewCustomerSummaryProjector(reads, store, newTestLogger()),
		},
		projector.WithEngineLogger(newTestLogger()),
	)

	customerID := uuid.NewUUID()
	const orderCount = 32

	events := make([]event.DomainEvent, 0, orderCount)
	for n := 0; n < orderCount; n++ {
		agg := order.NewOrderAggregate(uuid.NewUUID())
		require.NoError(t, agg.Create(customerID,
			[]order.Item{{SKU: "SKU-A", Quantity: 1}}, uuid.NewUUID()))
		events = append(events, agg.UncommittedEvents()...)
	}

	// One goroutine per delivery, the way the bus dispatches messages. The
	// summary document is shared by every order of the customer, so
	// interleaved read-modify-write applies would lose contributions.
	var wg sync.WaitGroup
	for _, evt := range events {
		evt := evt
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, engine.HandleEvent(context.Background(), evt))
		}()
	}
	wg.Wait()

	summary, err := reads.GetSummary(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, orderCount, summary.OrderCount)
	assert.Equal(t, orderCount, summary.TotalItems)
}
