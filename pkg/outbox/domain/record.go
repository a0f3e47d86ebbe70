package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/messaging"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
)

// OutboxRecord pairs one outgoing message with its delivery state. Records
// sharing AggregateType and AggregateID are delivered in ID order.
type OutboxRecord struct {
	ID            int64           `db:"id"`
	MessageID     string          `db:"message_id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Topic         string          `db:"topic"`
	Payload       json.RawMessage `db:"payload"`
	Status        Status          `db:"status"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	CreatedAt     time.Time       `db:"created_at"`
	DeliveredAt   *time.Time      `db:"delivered_at"`
}

func NewRecord(msg messaging.Message) (*OutboxRecord, error) {
	payload, err := messaging.Marshal(msg.Envelope)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}

	now := time.Now().UTC()

	return &OutboxRecord{
		MessageID:     msg.Envelope.ID,
		AggregateType: msg.Envelope.AggregateType,
		AggregateID:   msg.Envelope.AggregateID,
		EventType:     msg.Envelope.Type,
		Topic:         msg.Topic,
		Payload:       payload,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

func (r *OutboxRecord) OrderingKey() string {
	return r.AggregateType + "/" + r.AggregateID
}

func (r *OutboxRecord) Envelope() (messaging.Envelope, error) {
	return messaging.Unmarshal(r.Payload)
}
