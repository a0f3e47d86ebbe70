package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
)

// Event is an immutable domain fact. Kind is the variant tag consumers
// switch on; Version is the aggregate version the event produced.
type Event struct {
	Kind          string          `json:"kind"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Version       int64           `json:"version"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

func (e Event) Envelope() messaging.Envelope {
	return messaging.Envelope{
		ID:            uuid.NewString(),
		Type:          e.Kind,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Version:       e.Version,
		Payload:       e.Payload,
		OccurredAt:    e.OccurredAt,
	}
}

// Root carries identity, version and the events of the mutation in flight.
// Embed it in every aggregate.
type Root struct {
	AggregateID      string `json:"id"`
	AggregateVersion int64  `json:"version"`

	pending []Event
}

func (r *Root) Base() *Root {
	return r
}

func (r *Root) ID() string {
	return r.AggregateID
}

func (r *Root) Version() int64 {
	return r.AggregateVersion
}

func (r *Root) PendingEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)

	return out
}

func (r *Root) ClearPendingEvents() {
	r.pending = nil
}

func (r *Root) CheckVersion(expected int64) error {
	if expected != r.AggregateVersion {
		return fmt.Errorf(
			"%w: %s expected version %d, stored %d",
			ErrConcurrencyConflict,
			r.AggregateID,
			expected,
			r.AggregateVersion,
		)
	}

	return nil
}

// Record bumps the version by one and appends the matching event.
func (r *Root) Record(aggregateType, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	r.AggregateVersion++
	r.pending = append(r.pending, Event{
		Kind:          kind,
		AggregateType: aggregateType,
		AggregateID:   r.AggregateID,
		Version:       r.AggregateVersion,
		Payload:       data,
		OccurredAt:    time.Now().UTC(),
	})

	return nil
}
