package durable

import (
	"context"
	"errors"
	"sync"
	"time"

	perr "signalroom/internal/platform/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrAlreadyRunning signals the workflow identity is held by a live execution
var ErrAlreadyRunning = perr.New(perr.ErrorCodeConflict, "workflow already running")

// Lock is a held workflow identity
type Lock interface {
	// Refresh extends the hold; a lost lock returns ErrAlreadyRunning
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out workflow identities. Acquire returns ErrAlreadyRunning
// when id is held
type Locker interface {
	Acquire(ctx context.Context, id string, ttl time.Duration) (Lock, error)
}

// RedisLocker holds identities as SET NX PX keys carrying a random token,
// so only the holder can refresh or release
type RedisLocker struct {
	c      redis.UniversalClient
	prefix string
}

// NewRedisLocker builds a locker; prefix namespaces the keys
func NewRedisLocker(c redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "signalroom:workflow:"
	}
	return &RedisLocker{c: c, prefix: prefix}
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Acquire satisfies Locker
func (l *RedisLocker) Acquire(ctx context.Context, id string, ttl time.Duration) (Lock, error) {
	key := l.prefix + id
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "acquire %s", id)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return &redisLock{c: l.c, key: key, token: token}, nil
}

// Holder returns the token holding id, "" when free
func (l *RedisLocker) Holder(ctx context.Context, id string) (string, error) {
	v, err := l.c.Get(ctx, l.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, perr.WrapIf(err, perr.ErrorCodeUnavailable, "lock holder")
}

type redisLock struct {
	c     redis.UniversalClient
	key   string
	token string
}

func (l *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.c, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "refresh %s", l.key)
	}
	if n == 0 {
		return ErrAlreadyRunning
	}
	return nil
}

func (l *redisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.c, []string{l.key}, l.token).Result()
	return perr.WrapIf(err, perr.ErrorCodeUnavailable, "release "+l.key)
}

// LocalLocker holds identities in process memory. Expired holds are
// reclaimed on the next Acquire
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	clock func() time.Time
}

type localHold struct {
	token   string
	expires time.Time
}

// NewLocalLocker builds an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localHold{}, clock: time.Now}
}

// Acquire satisfies Locker
func (l *LocalLocker) Acquire(_ context.Context, id string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if h, ok := l.held[id]; ok && (h.expires.IsZero() || now.Before(h.expires)) {
		return nil, ErrAlreadyRunning
	}
	h := localHold{token: uuid.NewString()}
	if ttl > 0 {
		h.expires = now.Add(ttl)
	}
	l.held[id] = h
	return &localLock{l: l, id: id, token: h.token}, nil
}

// Held reports whether id is currently held
func (l *LocalLocker) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.held[id]
	return ok && (h.expires.IsZero() || l.clock().Before(h.expires))
}

type localLock struct {
	l     *LocalLocker
	id    string
	token string
}

func (k *localLock) Refresh(_ context.Context, ttl time.Duration) error {
	k.l.mu.Lock()
	defer k.l.mu.Unlock()
	h, ok := k.l.held[k.id]
	if !ok || h.token != k.token {
		return ErrAlreadyRunning
	}
	if ttl > 0 {
		h.expires = k.l.clock().Add(ttl)
	}
	k.l.held[k.id] = h
	return nil
}

func (k *localLock) Release(context.Context) error {
	k.l.mu.Lock()
	defer k.l.mu.Unlock()
	if h, ok := k.l.held[k.id]; ok && h.token == k.token {
		delete(k.l.held, k.id)
	}
	return nil
}
