package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards one schedule occurrence across scheduler replicas. Acquire
// reports false when another replica holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// NoopLocker always grants the lock. The conditional claim in the schedule
// repository still prevents duplicate fires.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

const lockPrefix = "stepflow:schedule-lock:"

// RedisLocker takes short-lived SET NX locks. Locks are never released
// explicitly; they expire after ttl, and keys include the occurrence time so
// a new occurrence never waits on an old lock.
type RedisLocker struct {
	client redis.Cmdable
	owner  string
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client, owner: uuid.New().String()}
}

// NewRedisLockerFromURL connects to a redis:// URL and checks the connection.
func NewRedisLockerFromURL(ctx context.Context, url string) (*RedisLocker, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisLocker(client), client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return ok, nil
}
