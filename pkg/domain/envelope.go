package domain

import (
	"github.com/sakashimaa/fulfillment/pkg/messaging"
)

// NewCommand addresses a command to the aggregate that must handle it. The
// outbox orders commands per target aggregate.
func NewCommand(topic, messageType, aggregateType, aggregateID, sagaID, idempotencyKey string, payload any) (messaging.Message, error) {
	env, err := messaging.NewEnvelope(messageType, aggregateID, payload)
	if err != nil {
		return messaging.Message{}, err
	}

	env.AggregateType = aggregateType
	env.CorrelationID = sagaID
	env.IdempotencyKey = idempotencyKey

	return messaging.Message{Topic: topic, Envelope: env}, nil
}

// NewReply builds a reply that did not change aggregate state. It carries
// version zero so read models skip it.
func NewReply(topic, messageType, aggregateType, aggregateID string, payload any) (messaging.Message, error) {
	env, err := messaging.NewEnvelope(messageType, aggregateID, payload)
	if err != nil {
		return messaging.Message{}, err
	}

	env.AggregateType = aggregateType

	return messaging.Message{Topic: topic, Envelope: env}, nil
}
