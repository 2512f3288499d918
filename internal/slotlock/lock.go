package slotlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

var (
	ErrSlotConflict = errors.New("slot is held by someone else")
	ErrInvalidKey   = errors.New("invalid slot key")
)

// Lock is a short-lived claim on a slot while its holder completes a booking.
type Lock struct {
	Key       schedule.SlotKey `json:"-"`
	HolderID  uuid.UUID        `json:"holder_id"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Store performs the atomic lock operations. Implementations must treat an
// expired lock as absent.
type Store interface {
	// Acquire writes the lock unless an unexpired lock of another holder
	// exists, in which case it returns ErrSlotConflict. The same holder
	// refreshes its expiry.
	Acquire(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID, ttl time.Duration) (Lock, error)
	Release(ctx context.Context, key schedule.SlotKey) error
	// ReleaseHeld deletes the lock only when holderID holds it.
	ReleaseHeld(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID) (bool, error)
	// Get returns nil when the slot is not locked.
	Get(ctx context.Context, key schedule.SlotKey) (*Lock, error)
	// GetMany returns the unexpired locks among keys, indexed by key.
	GetMany(ctx context.Context, keys []schedule.SlotKey) (map[schedule.SlotKey]Lock, error)
}

// OccupancyChecker reports whether a slot is already taken by a live appointment.
type OccupancyChecker interface {
	IsTaken(ctx context.Context, key schedule.SlotKey) (bool, error)
}
