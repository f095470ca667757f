package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker grants exclusive use of a scenario key across compute-and-write sequences.
// The returned release func must be called on every exit path; it is safe to call twice.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NopLocker grants every request immediately (single writer per scenario assumed).
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// LocalLocker serializes holders of the same key inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{locks: map[string]*keyLock{}} }

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl := l.locks[key]
	if kl == nil {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, kl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.drop(key, kl)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

var ErrLockTimeout = errors.New("lock not acquired")

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a token lock over SET NX PX shared by every process using the same Redis.
// TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	rdb   *redis.Client
	TTL   time.Duration
	Retry time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, TTL: 2 * time.Hour, Retry: 100 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k := "cflp:lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-time.After(l.Retry):
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
		})
	}, nil
}
