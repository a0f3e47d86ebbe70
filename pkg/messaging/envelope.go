package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the wire shape of every command, reply and domain event.
// Version is zero for commands and for replies that did not change aggregate state.
type Envelope struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	AggregateID    string          `json:"aggregateId"`
	AggregateType  string          `json:"aggregateType,omitempty"`
	Version        int64           `json:"version,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	CausationID    string          `json:"causationId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// Message is an envelope addressed to a topic.
type Message struct {
	Topic    string   `json:"topic"`
	Envelope Envelope `json:"envelope"`
}

func NewEnvelope(messageType, aggregateID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", messageType, err)
	}

	return Envelope{
		ID:          uuid.NewString(),
		Type:        messageType,
		AggregateID: aggregateID,
		Payload:     data,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// CausedBy links e to the message that triggered it.
func (e Envelope) CausedBy(parent Envelope) Envelope {
	e.CorrelationID = parent.CorrelationID
	e.CausationID = parent.ID

	return e
}

func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has empty payload", ErrMalformed, e.Type)
	}

	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}

	return nil
}

// DedupKey is the idempotency key, or the message id for producers that
// did not supply one.
func (e Envelope) DedupKey() string {
	if e.IdempotencyKey != "" {
		return e.IdempotencyKey
	}

	return e.ID
}

// IsEvent reports whether the envelope carries a versioned domain event.
func (e Envelope) IsEvent() bool {
	return e.Version > 0
}

func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if e.ID == "" || e.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing id or type", ErrMalformed)
	}

	return e, nil
}
