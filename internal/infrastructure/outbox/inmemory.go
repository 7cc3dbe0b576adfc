package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
)

// InMemoryOutbox implements appcore.Outbox in memory for tests and
// single-process wiring.
type InMemoryOutbox struct {
	mu      sync.Mutex
	entries []appcore.OutboxEntry
}

// NewInMemoryOutbox creates an in-memory outbox.
func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{}
}

// Add inserts an event into the outbox.
func (o *InMemoryOutbox) Add(_ context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	entry, err := newEntry(evt)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)

	return nil
}

// AddBatch inserts multiple events atomically.
func (o *InMemoryOutbox) AddBatch(_ context.Context, events []event.DomainEvent) error {
	batch := make([]appcore.OutboxEntry, 0, len(events))
	for i, evt := range events {
		if evt == nil {
			return fmt.Errorf("event at index %d cannot be nil", i)
		}
		entry, err := newEntry(evt)
		if err != nil {
			return err
		}
		batch = append(batch, entry)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, batch...)

	return nil
}

// Poll retrieves unprocessed entries up to batchSize in insertion order.
func (o *InMemoryOutbox) Poll(_ context.Context, batchSize int) ([]appcore.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := make([]appcore.OutboxEntry, 0, batchSize)
	for _, entry := range o.entries {
		if entry.ProcessedAt != nil {
			continue
		}
		result = append(result, entry)
		if batchSize > 0 && len(result) >= batchSize {
			break
		}
	}

	return result, nil
}

// MarkProcessed marks an entry as successfully published.
func (o *InMemoryOutbox) MarkProcessed(_ context.Context, entryID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].ID == entryID {
			now := time.Now()
			o.entries[i].ProcessedAt = &now
			return nil
		}
	}

	return fmt.Errorf("outbox entry %s not found", entryID)
}

// MarkFailed records a publishing failure for retry.
func (o *InMemoryOutbox) MarkFailed(_ context.Context, entryID string, failure error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].ID == entryID {
			o.entries[i].RetryCount++
			o.entries[i].LastError = failure.Error()
			return nil
		}
	}

	return fmt.Errorf("outbox entry %s not found", entryID)
}

// Cleanup removes processed entries older than the given duration.
func (o *InMemoryOutbox) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.entries[:0]
	var deleted int64
	for _, entry := range o.entries {
		if entry.ProcessedAt != nil && entry.ProcessedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	o.entries = kept

	return deleted, nil
}

// Count returns the number of unprocessed entries.
func (o *InMemoryOutbox) Count(_ context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var count int64
	for _, entry := range o.entries {
		if entry.ProcessedAt == nil {
			count++
		}
	}

	return count, nil
}

// Stats returns the unprocessed count and the oldest entry timestamp.
func (o *InMemoryOutbox) Stats(_ context.Context) (int64, time.Time, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var count int64
	var oldest time.Time
	for _, entry := range o.entries {
		if entry.ProcessedAt != nil {
			continue
		}
		count++
		if oldest.IsZero() || entry.CreatedAt.Before(oldest) {
			oldest = entry.CreatedAt
		}
	}

	return count, oldest, nil
}

func newEntry(evt event.DomainEvent) (appcore.OutboxEntry, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return appcore.OutboxEntry{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return appcore.OutboxEntry{
		ID:            uuid.New().String(),
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		Sequence:      evt.Sequence(),
		Payload:       payload,
		Metadata:      evt.Metadata(),
		OccurredAt:    evt.OccurredAt(),
		CreatedAt:     time.Now(),
	}, nil
}
