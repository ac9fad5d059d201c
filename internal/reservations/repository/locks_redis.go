package repository

import (
	"context"
	"errors"
	"fmt"
	reservationserrors "loanbook/internal/reservations/errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "loanbook:"

// releaseScript deletes the key only while it still belongs to owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisItemLocker struct {
	client       *redis.Client
	writeTimeout time.Duration
}

func NewRedisItemLocker(client *redis.Client, writeTimeout time.Duration) ItemLocker {
	return &redisItemLocker{client: client, writeTimeout: writeTimeout}
}

func (l *redisItemLocker) key(itemID int64) string {
	return redisLockPrefix + LockKey(itemID)
}

func (l *redisItemLocker) Lock(ctx context.Context, itemID int64, owner string, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ctx, cancel := withTimeout(ctx, l.writeTimeout)
	defer cancel()

	_, err := l.client.SetArgs(ctx, l.key(itemID), owner, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: item %d", reservationserrors.ErrLockBusy, itemID)
	}
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (l *redisItemLocker) Unlock(ctx context.Context, itemID int64, owner string) error {
	ctx, cancel := withTimeout(ctx, l.writeTimeout)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{l.key(itemID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
