package slotlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

// MemoryStore is a process-local Store. A single mutex stands in for the
// atomicity Redis gives the distributed store.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[schedule.SlotKey]Lock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[schedule.SlotKey]Lock), now: time.Now}
}

// WithClock replaces the time source used to evaluate expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) live(key schedule.SlotKey, now time.Time) (Lock, bool) {
	l, ok := s.locks[key]
	if !ok {
		return Lock{}, false
	}
	if !l.ExpiresAt.After(now) {
		delete(s.locks, key)
		return Lock{}, false
	}
	return l, true
}

func (s *MemoryStore) Acquire(_ context.Context, key schedule.SlotKey, holderID uuid.UUID, ttl time.Duration) (Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.live(key, now); ok && cur.HolderID != holderID {
		return Lock{}, ErrSlotConflict
	}

	l := Lock{Key: key, HolderID: holderID, ExpiresAt: now.Add(ttl)}
	s.locks[key] = l
	return l, nil
}

func (s *MemoryStore) Release(_ context.Context, key schedule.SlotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, key)
	return nil
}

func (s *MemoryStore) ReleaseHeld(_ context.Context, key schedule.SlotKey, holderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.live(key, s.now())
	if !ok || cur.HolderID != holderID {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key schedule.SlotKey) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.live(key, s.now())
	if !ok {
		return nil, nil
	}
	return &cur, nil
}

func (s *MemoryStore) GetMany(_ context.Context, keys []schedule.SlotKey) (map[schedule.SlotKey]Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[schedule.SlotKey]Lock)
	for _, k := range keys {
		if cur, ok := s.live(k, now); ok {
			out[k] = cur
		}
	}
	return out, nil
}

// Sweep drops expired locks. Expiry is already evaluated on every access,
// so this only bounds memory.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, l := range s.locks {
		if !l.ExpiresAt.After(now) {
			delete(s.locks, k)
			n++
		}
	}
	return n
}
