package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another caller holds the lock.
var ErrLockHeld = errors.New("lock held by another caller")

// DefaultLockTTL bounds how long a crashed holder can block a claim.
const DefaultLockTTL = 10 * time.Second

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimLocker serializes reward claims across service instances with
// SET NX PX locks.
type RedisClaimLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClaimLocker creates a locker. A non-positive ttl uses DefaultLockTTL.
func NewRedisClaimLocker(client *redis.Client, ttl time.Duration) *RedisClaimLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisClaimLocker{client: client, ttl: ttl}
}

// Lock takes the lock for rewardID. The returned func releases it.
func (l *RedisClaimLocker) Lock(ctx context.Context, rewardID string) (func(context.Context) error, error) {
	key := "referralnet:claim:" + rewardID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release claim lock: %w", err)
		}
		return nil
	}, nil
}
