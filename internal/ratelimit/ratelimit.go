package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Limiter provides short-lived mutual exclusion and per-user action throttles.
// Without redis it falls back to process-local state.
type Limiter struct {
	rdb *redis.Client

	mu        sync.Mutex
	local     map[string]localEntry
	now       func() time.Time
	lastSweep time.Time
}

// sweepInterval bounds how often setLocal scans the local map for expired keys.
const sweepInterval = time.Minute

type localEntry struct {
	token   string
	expires time.Time
}

func New(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:   rdb,
		local: make(map[string]localEntry),
		now:   time.Now,
	}
}

// Lock is a held key. Release is safe to call more than once.
type Lock struct {
	l     *Limiter
	key   string
	token string
	once  sync.Once
}

// TryLock acquires key for ttl. It returns false when another holder owns it.
func (l *Limiter) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	key = "lock:" + key
	token := uuid.NewString()

	if l.rdb == nil {
		if !l.setLocal(key, token, ttl) {
			return nil, false, nil
		}
		return &Lock{l: l, key: key, token: token}, true, nil
	}

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock in redis: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{l: l, key: key, token: token}, true, nil
}

func (lk *Lock) Release(ctx context.Context) error {
	var err error
	lk.once.Do(func() {
		if lk.l.rdb == nil {
			lk.l.deleteLocal(lk.key, lk.token)
			return
		}
		err = releaseScript.Run(ctx, lk.l.rdb, []string{lk.key}, lk.token).Err()
	})
	return err
}

// Allow reports whether userID may perform action now, and blocks the action
// for window if so.
func (l *Limiter) Allow(ctx context.Context, userID uuid.UUID, action string, window time.Duration) (bool, error) {
	key := fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), action)

	if l.rdb == nil {
		return l.setLocal(key, "locked", window), nil
	}

	wasSet, err := l.rdb.SetNX(ctx, key, "locked", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}
	return wasSet, nil
}

// RetryAfter returns how long until action is allowed again.
func (l *Limiter) RetryAfter(ctx context.Context, userID uuid.UUID, action string) (time.Duration, error) {
	key := fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), action)

	if l.rdb == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.local[key]; ok {
			if d := e.expires.Sub(l.now()); d > 0 {
				return d, nil
			}
			delete(l.local, key)
		}
		return 0, nil
	}
	return l.rdb.TTL(ctx, key).Result()
}

func (l *Limiter) setLocal(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		for k, e := range l.local {
			if !now.Before(e.expires) {
				delete(l.local, k)
			}
		}
		l.lastSweep = now
	}
	if e, ok := l.local[key]; ok && now.Before(e.expires) {
		return false
	}
	l.local[key] = localEntry{token: token, expires: now.Add(ttl)}
	return true
}

func (l *Limiter) deleteLocal(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.local[key]; ok && e.token == token {
		delete(l.local, key)
	}
}
