package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

// Manager grants exclusive, expiring claims on slots. It never blocks on a
// conflicting claim; the caller gets ErrSlotConflict immediately.
type Manager struct {
	store      Store
	occupancy  OccupancyChecker
	notifier   realtime.Notifier
	logger     *zerolog.Logger
	defaultTTL time.Duration
}

func NewManager(store Store, occupancy OccupancyChecker, notifier realtime.Notifier, defaultTTL time.Duration, logger *zerolog.Logger) *Manager {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{
		store:      store,
		occupancy:  occupancy,
		notifier:   notifier,
		logger:     logger,
		defaultTTL: defaultTTL,
	}
}

func (m *Manager) DefaultTTL() time.Duration { return m.defaultTTL }

func validKey(key schedule.SlotKey) error {
	if key.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: missing doctor", ErrInvalidKey)
	}
	if _, err := schedule.ParseDate(key.Date, time.UTC); err != nil {
		return err
	}
	if _, err := schedule.ParseClock(key.StartTime); err != nil {
		return err
	}
	return nil
}

// Acquire claims key for holderID. A slot already taken by a live
// appointment, or locked by another holder, yields ErrSlotConflict.
// ttl is capped at the manager's default; zero or negative means default.
func (m *Manager) Acquire(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID, ttl time.Duration) (Lock, error) {
	if err := validKey(key); err != nil {
		return Lock{}, err
	}
	if holderID == uuid.Nil {
		return Lock{}, fmt.Errorf("%w: missing holder", ErrInvalidKey)
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl > m.defaultTTL {
		m.logger.Debug().Dur("requested", ttl).Dur("granted", m.defaultTTL).Str("slot", key.String()).Msg("lock ttl capped")
		ttl = m.defaultTTL
	}

	if m.occupancy != nil {
		taken, err := m.occupancy.IsTaken(ctx, key)
		if err != nil {
			metrics.IncLockAcquisition("error")
			return Lock{}, fmt.Errorf("check slot occupancy: %w", err)
		}
		if taken {
			metrics.IncLockAcquisition("booked")
			return Lock{}, ErrSlotConflict
		}
	}

	lock, err := m.store.Acquire(ctx, key, holderID, ttl)
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			metrics.IncLockAcquisition("conflict")
			return Lock{}, err
		}
		metrics.IncLockAcquisition("error")
		return Lock{}, fmt.Errorf("acquire slot lock: %w", err)
	}

	metrics.IncLockAcquisition("acquired")
	m.emit(ctx, realtime.EventSlotLocked, key, &lock)
	return lock, nil
}

// Release drops the lock whoever holds it. Releasing a free slot is a no-op.
func (m *Manager) Release(ctx context.Context, key schedule.SlotKey) error {
	if err := m.store.Release(ctx, key); err != nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	m.emit(ctx, realtime.EventSlotUnlocked, key, nil)
	return nil
}

// ReleaseHeld drops the lock only if holderID holds it.
func (m *Manager) ReleaseHeld(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID) (bool, error) {
	released, err := m.store.ReleaseHeld(ctx, key, holderID)
	if err != nil {
		return false, fmt.Errorf("release slot lock: %w", err)
	}
	if released {
		m.emit(ctx, realtime.EventSlotUnlocked, key, nil)
	}
	return released, nil
}

// Check reports whether key is free of locks and live appointments.
func (m *Manager) Check(ctx context.Context, key schedule.SlotKey) (bool, *Lock, error) {
	if err := validKey(key); err != nil {
		return false, nil, err
	}
	lock, err := m.store.Get(ctx, key)
	if err != nil {
		return false, nil, fmt.Errorf("read slot lock: %w", err)
	}
	if lock != nil {
		return false, lock, nil
	}
	if m.occupancy != nil {
		taken, err := m.occupancy.IsTaken(ctx, key)
		if err != nil {
			return false, nil, fmt.Errorf("check slot occupancy: %w", err)
		}
		if taken {
			return false, nil, nil
		}
	}
	return true, nil, nil
}

// Holder returns the current lock on key, or nil.
func (m *Manager) Holder(ctx context.Context, key schedule.SlotKey) (*Lock, error) {
	lock, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read slot lock: %w", err)
	}
	return lock, nil
}

func (m *Manager) emit(ctx context.Context, typ string, key schedule.SlotKey, lock *Lock) {
	data := map[string]any{
		"doctor_id":  key.DoctorID.String(),
		"date":       key.Date,
		"start_time": key.StartTime,
	}
	if lock != nil {
		data["expires_at"] = lock.ExpiresAt
	}
	ev := realtime.Event{Type: typ, Data: data, Timestamp: time.Now()}
	if err := m.notifier.Notify(ctx, realtime.DoctorChannel(key.DoctorID), ev); err != nil {
		m.logger.Warn().Err(err).Str("slot", key.String()).Str("event", typ).Msg("slot notification failed")
	}
}
