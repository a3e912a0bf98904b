// Package lock provides a small Redis-backed mutual exclusion primitive used
// to serialize payment attempts that share an idempotency key.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock is held by another request")

const keyPrefix = "tenantflow:lock:"

// releaseScript deletes the key only when it still carries our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires named locks in Redis.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lock for name for at most ttl. It does not wait: a held
// lock yields ErrHeld immediately.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	key := keyPrefix + name

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
