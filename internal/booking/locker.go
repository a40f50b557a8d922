package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

const lockScope = "booking_item"

// ReleaseFunc gives up a lock obtained from an ItemLocker. It is safe to
// call more than once.
type ReleaseFunc func(ctx context.Context) error

// ItemLocker serializes the check-then-insert sequence per item.
type ItemLocker interface {
	Acquire(ctx context.Context, itemID uuid.UUID) (ReleaseFunc, error)
}

// lockTimeout is returned when the lock could not be obtained in time.
func lockTimeout(itemID uuid.UUID, wait time.Duration) error {
	return pkgerrors.New(pkgerrors.CodeConcurrencyConflict,
		fmt.Sprintf("item %s is busy, gave up after %s", itemID, wait))
}

type redisLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisItemLocker holds SET NX PX keys with a random owner token so every
// API instance shares one lock per item. The TTL bounds how long a crashed
// holder can block an item.
type RedisItemLocker struct {
	store redisLockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

func NewRedisItemLocker(store redisLockStore, ttl, wait, poll time.Duration) (*RedisItemLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for item locker")
	}
	if ttl <= 0 || wait <= 0 {
		return nil, errors.New("item lock ttl and wait must be positive")
	}
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &RedisItemLocker{store: store, ttl: ttl, wait: wait, poll: poll}, nil
}

func (l *RedisItemLocker) Acquire(ctx context.Context, itemID uuid.UUID) (ReleaseFunc, error) {
	key := l.store.LockKey(lockScope, itemID.String())
	owner := uuid.NewString()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire item lock")
		}
		if ok {
			var once sync.Once
			return func(ctx context.Context) error {
				var releaseErr error
				once.Do(func() {
					if _, err := l.store.ReleaseIfOwner(ctx, key, owner); err != nil {
						releaseErr = fmt.Errorf("release item lock: %w", err)
					}
				})
				return releaseErr
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, ctx.Err(), "item lock wait cancelled")
		case <-deadline.C:
			return nil, lockTimeout(itemID, l.wait)
		case <-ticker.C:
		}
	}
}

// LocalItemLocker is an in-process keyed mutex for single-instance
// deployments and tests.
type LocalItemLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
	wait  time.Duration
}

func NewLocalItemLocker(wait time.Duration) *LocalItemLocker {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &LocalItemLocker{slots: make(map[uuid.UUID]chan struct{}), wait: wait}
}

func (l *LocalItemLocker) slot(itemID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[itemID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[itemID] = ch
	}
	return ch
}

func (l *LocalItemLocker) Acquire(ctx context.Context, itemID uuid.UUID) (ReleaseFunc, error) {
	ch := l.slot(itemID)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, ctx.Err(), "item lock wait cancelled")
	case <-timer.C:
		return nil, lockTimeout(itemID, l.wait)
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
