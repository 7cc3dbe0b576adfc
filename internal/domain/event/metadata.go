package event

import "time"

// Metadata carries tracing context for an event.
type Metadata struct {
	ActorID       string    `json:"actor_id,omitempty"       bson:"actor_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"   bson:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"      bson:"timestamp,omitempty"`
}

// NewMetadata creates metadata for a new event.
func NewMetadata(actorID, correlationID, causationID string) Metadata {
	return Metadata{
		ActorID:       actorID,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Timestamp:     time.Now(),
	}
}
