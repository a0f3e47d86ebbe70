package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SentLog remembers which notifications went out. Claim reports false when
// key was already claimed; Release gives a claim back after a failed send.
type SentLog interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type memorySentLog struct {
	mu   sync.Mutex
	sent map[string]bool
}

func NewMemorySentLog() SentLog {
	return &memorySentLog{sent: make(map[string]bool)}
}

func (l *memorySentLog) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sent[key] {
		return false, nil
	}
	l.sent[key] = true

	return true, nil
}

func (l *memorySentLog) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.sent, key)
	return nil
}

type redisSentLog struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisSentLog claims keys with SET NX. Claims expire after ttl.
func NewRedisSentLog(redisClient *redis.Client, ttl time.Duration) SentLog {
	return &redisSentLog{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (l *redisSentLog) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := l.redisClient.SetNX(ctx, sentKey(key), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}

	return ok, nil
}

func (l *redisSentLog) Release(ctx context.Context, key string) error {
	if err := l.redisClient.Del(ctx, sentKey(key)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}

	return nil
}

func sentKey(key string) string {
	return fmt.Sprintf("notification_sent:%s", key)
}
