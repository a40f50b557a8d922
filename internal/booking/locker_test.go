package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

type stubLockStore struct {
	mu      sync.Mutex
	values  map[string]string
	setErr  error
	setnxes int
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{values: map[string]string{}}
}

func (s *stubLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setnxes++
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] != owner {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *stubLockStore) LockKey(scope, id string) string {
	return "rental:lock:" + scope + ":" + id
}

func (s *stubLockStore) holder(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func TestRedisItemLockerWaitsForRelease(t *testing.T) {
	store := newStubLockStore()
	locker, err := NewRedisItemLocker(store, time.Second, 500*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	itemID := uuid.New()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, itemID)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		second, err := locker.Acquire(ctx, itemID)
		if err == nil {
			err = second(ctx)
		}
		acquired <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, release(ctx))

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
	_, held := store.holder(store.LockKey(lockScope, itemID.String()))
	assert.False(t, held)
	assert.Greater(t, store.setnxes, 2, "second caller should have polled")
}

func TestRedisItemLockerTimesOut(t *testing.T) {
	store := newStubLockStore()
	locker, err := NewRedisItemLocker(store, time.Second, 30*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	itemID := uuid.New()

	_, err = locker.Acquire(context.Background(), itemID)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), itemID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))
}

func TestRedisItemLockerReleaseKeepsForeignOwner(t *testing.T) {
	store := newStubLockStore()
	locker, err := NewRedisItemLocker(store, time.Second, 30*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	itemID := uuid.New()
	key := store.LockKey(lockScope, itemID.String())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, itemID)
	require.NoError(t, err)

	// simulate expiry followed by another instance taking the lock
	store.mu.Lock()
	store.values[key] = "other-instance"
	store.mu.Unlock()

	require.NoError(t, release(ctx))
	owner, held := store.holder(key)
	assert.True(t, held)
	assert.Equal(t, "other-instance", owner)
}

func TestRedisItemLockerStoreFailure(t *testing.T) {
	store := newStubLockStore()
	store.setErr = errors.New("connection reset")
	locker, err := NewRedisItemLocker(store, time.Second, 30*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewRedisItemLockerValidates(t *testing.T) {
	_, err := NewRedisItemLocker(nil, time.Second, time.Second, 0)
	assert.Error(t, err)
	_, err = NewRedisItemLocker(newStubLockStore(), 0, time.Second, 0)
	assert.Error(t, err)
}

func TestLocalItemLockerIsPerItem(t *testing.T) {
	locker := NewLocalItemLocker(20 * time.Millisecond)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	releaseA, err := locker.Acquire(ctx, a)
	require.NoError(t, err)
	releaseB, err := locker.Acquire(ctx, b)
	require.NoError(t, err, "different items must not contend")

	_, err = locker.Acquire(ctx, a)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))

	require.NoError(t, releaseA(ctx))
	require.NoError(t, releaseA(ctx), "double release is a no-op")
	again, err := locker.Acquire(ctx, a)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
	require.NoError(t, releaseB(ctx))
}

func TestLocalItemLockerHonoursContext(t *testing.T) {
	locker := NewLocalItemLocker(time.Second)
	itemID := uuid.New()
	release, err := locker.Acquire(context.Background(), itemID)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, itemID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))
}
