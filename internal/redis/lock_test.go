package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

func newTestStore(t *testing.T) (*SlotLockStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSlotLockStore(client), mr
}

func testKey() schedule.SlotKey {
	return schedule.SlotKey{DoctorID: uuid.New(), Date: "2025-03-10", StartTime: "10:30"}
}

func TestSlotLockStore_AcquireConflictAndExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	a, b := uuid.New(), uuid.New()

	lock, err := store.Acquire(ctx, key, a, time.Second)
	require.NoError(t, err)
	assert.Equal(t, a, lock.HolderID)
	assert.True(t, mr.Exists("lock:slot:"+key.String()))

	_, err = store.Acquire(ctx, key, b, time.Second)
	assert.ErrorIs(t, err, slotlock.ErrSlotConflict)

	mr.FastForward(1100 * time.Millisecond)

	lock, err = store.Acquire(ctx, key, b, time.Second)
	require.NoError(t, err)
	assert.Equal(t, b, lock.HolderID)
}

func TestSlotLockStore_SameHolderRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	holder := uuid.New()

	_, err := store.Acquire(ctx, key, holder, time.Second)
	require.NoError(t, err)

	_, err = store.Acquire(ctx, key, holder, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("lock:slot:"+key.String()))
}

func TestSlotLockStore_ConcurrentAcquire(t *testing.T) {
	store, _ := newTestStore(t)
	key := testKey()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		errs atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Acquire(context.Background(), key, uuid.New(), time.Minute)
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, slotlock.ErrSlotConflict) {
				errs.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Zero(t, errs.Load())
}

func TestSlotLockStore_ReleaseHeld(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	holder := uuid.New()

	_, err := store.Acquire(ctx, key, holder, time.Minute)
	require.NoError(t, err)

	ok, err := store.ReleaseHeld(ctx, key, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ReleaseHeld(ctx, key, holder)
	require.NoError(t, err)
	assert.True(t, ok)

	lock, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, lock)

	require.NoError(t, store.Release(ctx, key))
}

func TestSlotLockStore_GetMany(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	doctorID := uuid.New()
	held := schedule.SlotKey{DoctorID: doctorID, Date: "2025-03-10", StartTime: "09:00"}
	free := schedule.SlotKey{DoctorID: doctorID, Date: "2025-03-10", StartTime: "09:30"}
	holder := uuid.New()

	_, err := store.Acquire(ctx, held, holder, time.Minute)
	require.NoError(t, err)

	locks, err := store.GetMany(ctx, []schedule.SlotKey{held, free})
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, holder, locks[held].HolderID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), locks[held].ExpiresAt, 2*time.Second)

	empty, err := store.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSlotLockStore_WithManager(t *testing.T) {
	store, _ := newTestStore(t)
	m := slotlock.NewManager(store, nil, nil, time.Minute, nil)
	key := testKey()

	_, err := m.Acquire(context.Background(), key, uuid.New(), 0)
	require.NoError(t, err)

	free, lock, err := m.Check(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, free)
	assert.NotNil(t, lock)
}
