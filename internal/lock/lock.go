// Package lock implements per-key mutual exclusion
// with a TTL and a bounded acquisition wait, backed by Redis. Holder crashes
// are recovered by TTL expiry; release after expiry is a safe no-op.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orbitalcx/convoy/internal/store"
)

// Service acquires and releases named locks over a shared Redis keyspace.
type Service struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client) *Service {
	return &Service{rdb: rdb, prefix: "lock:"}
}

// Lease is the token returned by Acquire; Release and Extend require it to
// match the value still stored in Redis.
type Lease struct {
	Key   string
	Token string
}

// releaseScript is the standard go-redis compare-and-delete idiom: only
// delete the key if its value still matches the lease token we hold.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// extendScript bumps the TTL only if the lease is still held.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire attempts SET NX EX in a poll loop until ttl grabs the lock or
// maxWait elapses, returning a nil Lease and a LockTimeout error in the
// latter case. The caller never blocks indefinitely: maxWait is required.
func (s *Service) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Lease, error) {
	redisKey := s.prefix + key
	token := randomToken()
	deadline := time.Now().Add(maxWait)

	const pollInterval = 50 * time.Millisecond
	for {
		ok, err := s.rdb.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, store.ErrTransientUpstream("lock backend unavailable", err)
		}
		if ok {
			return &Lease{Key: redisKey, Token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, store.ErrLockTimeout("could not acquire lock within max_wait", nil)
		}
		select {
		case <-ctx.Done():
			return nil, store.ErrLockTimeout("context cancelled while waiting for lock", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Release deletes the key only if it still holds this lease's token. A
// mismatched or already-expired lease is a safe no-op.
func (s *Service) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	err := releaseScript.Run(ctx, s.rdb, []string{lease.Key}, lease.Token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return store.ErrTransientUpstream("lock release failed", err)
	}
	return nil
}

// Extend heartbeats the lease's TTL, returning false (no error) if the lease
// was already lost (expired or stolen).
func (s *Service) Extend(ctx context.Context, lease *Lease, ttl time.Duration) (bool, error) {
	if lease == nil {
		return false, nil
	}
	res, err := extendScript.Run(ctx, s.rdb, []string{lease.Key}, lease.Token, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, store.ErrTransientUpstream("lock extend failed", err)
	}
	return res == 1, nil
}

// WithLock acquires key, runs fn, and always releases, regardless of
// whether fn returns an error: no failure inside the critical section may
// leave the lock held until TTL expiry.
func WithLock(ctx context.Context, s *Service, key string, ttl, maxWait time.Duration, fn func(ctx context.Context) error) error {
	lease, err := s.Acquire(ctx, key, ttl, maxWait)
	if err != nil {
		return err
	}
	defer func() { _ = s.Release(context.WithoutCancel(ctx), lease) }()
	return fn(ctx)
}
