package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

var ErrGroupBusy = errors.New("consumer group already has an active member")

// Bus is an in-process channel. Every topic is an append-only log; each
// consumer group tracks a committed offset per topic, so a group that
// resubscribes resumes after the last handled message.
type Bus struct {
	mu           sync.Mutex
	logs         map[string][]messaging.Envelope
	groups       map[string]*group
	policy       messaging.RetryPolicy
	logger       *zap.Logger
	onDeadLetter func(topic string)
}

type group struct {
	topics  map[string]bool
	offsets map[string]int
	member  *member
}

type member struct {
	queue  []messaging.Message
	notify chan struct{}
}

func NewBus(policy messaging.RetryPolicy, logger *zap.Logger) *Bus {
	return &Bus{
		logs:   make(map[string][]messaging.Envelope),
		groups: make(map[string]*group),
		policy: policy,
		logger: logger,
	}
}

func (b *Bus) OnDeadLetter(fn func(topic string)) {
	b.onDeadLetter = fn
}

func (b *Bus) Publish(ctx context.Context, topic string, env messaging.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.logs[topic] = append(b.logs[topic], env)
	for _, g := range b.groups {
		if g.member != nil && g.topics[topic] {
			g.member.enqueue(messaging.Message{Topic: topic, Envelope: env})
		}
	}

	return nil
}

func (b *Bus) Subscribe(ctx context.Context, groupName string, topics []string, handler messaging.Handler) error {
	m, err := b.join(groupName, topics)
	if err != nil {
		return err
	}
	defer b.leave(groupName)

	dispatcher := messaging.NewDispatcher(b.policy, b, b.logger)
	dispatcher.OnDeadLetter(b.onDeadLetter)

	for {
		msg, ok := b.next(ctx, m)
		if !ok {
			return nil
		}

		if err := dispatcher.Deliver(ctx, msg.Topic, msg.Envelope, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			mylogger.Error(
				ctx,
				b.logger,
				"Memory bus delivery failed",
				zap.String("group", groupName),
				zap.String("topic", msg.Topic),
				zap.Error(err),
			)
		}

		b.commit(groupName, msg.Topic)
	}
}

// Published returns a copy of everything ever published to topic.
func (b *Bus) Published(topic string) []messaging.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]messaging.Envelope, len(b.logs[topic]))
	copy(out, b.logs[topic])

	return out
}

func (b *Bus) join(groupName string, topics []string) (*member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupName]
	if !ok {
		g = &group{
			topics:  make(map[string]bool),
			offsets: make(map[string]int),
		}
		b.groups[groupName] = g
	}

	if g.member != nil {
		return nil, fmt.Errorf("%w: %s", ErrGroupBusy, groupName)
	}

	m := &member{notify: make(chan struct{}, 1)}
	g.topics = make(map[string]bool, len(topics))
	for _, topic := range topics {
		g.topics[topic] = true
		for _, env := range b.logs[topic][g.offsets[topic]:] {
			m.enqueue(messaging.Message{Topic: topic, Envelope: env})
		}
	}
	g.member = m

	return m, nil
}

func (b *Bus) leave(groupName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g, ok := b.groups[groupName]; ok {
		g.member = nil
	}
}

func (b *Bus) commit(groupName, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.groups[groupName].offsets[topic]++
}

func (b *Bus) next(ctx context.Context, m *member) (messaging.Message, bool) {
	for {
		b.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			b.mu.Unlock()

			return msg, true
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return messaging.Message{}, false
		case <-m.notify:
		}
	}
}

func (m *member) enqueue(msg messaging.Message) {
	m.queue = append(m.queue, msg)

	select {
	case m.notify <- struct{}{}:
	default:
	}
}
