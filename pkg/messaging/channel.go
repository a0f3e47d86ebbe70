package messaging

import "context"

type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type Handler func(ctx context.Context, env Envelope) error

type Subscriber interface {
	// Subscribe consumes topics as a member of group until ctx is done.
	// Messages of one aggregate are handed to handler in publication order.
	Subscribe(ctx context.Context, group string, topics []string, handler Handler) error
}

type PublisherFunc func(ctx context.Context, topic string, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, env Envelope) error {
	return f(ctx, topic, env)
}

func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}
