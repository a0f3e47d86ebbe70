package aggregate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/messaging"
)

// Snapshot is the stored form of an aggregate: its latest state plus the
// version column that backs optimistic concurrency.
type Snapshot struct {
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Version       int64           `json:"version"`
	State         json.RawMessage `json:"state"`
	Archived      bool            `json:"archived"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Mutation is committed atomically: the snapshot (when present) is written
// only if the stored version equals ExpectedVersion, the messages land in the
// outbox, and IdempotencyKey is remembered together with those messages.
type Mutation struct {
	Snapshot        *Snapshot
	ExpectedVersion int64
	IdempotencyKey  string
	MessageID       string
	Messages        []messaging.Message
}

type Processed struct {
	IdempotencyKey string
	MessageID      string
	Replies        []messaging.Message
	ProcessedAt    time.Time
}

type Store interface {
	Load(ctx context.Context, aggregateType, id string) (*Snapshot, error)
	List(ctx context.Context, aggregateType string, includeArchived bool) ([]Snapshot, error)
	Commit(ctx context.Context, m Mutation) error
	Processed(ctx context.Context, idempotencyKey string) (*Processed, error)
}
