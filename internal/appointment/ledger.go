package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

// LockReader is the read side of the slot lock store.
type LockReader interface {
	GetMany(ctx context.Context, keys []schedule.SlotKey) (map[schedule.SlotKey]slotlock.Lock, error)
}

// Ledger answers which derived slots are free, combining live
// appointments with outstanding locks.
type Ledger struct {
	repo  Repository
	locks LockReader
	now   func() time.Time
}

func NewLedger(repo Repository, locks LockReader) *Ledger {
	return &Ledger{repo: repo, locks: locks, now: time.Now}
}

// WithClock replaces the time source used to judge lapsed holds.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Availability marks each candidate as available or taken. A candidate is
// taken when a live appointment starts at the same time or a lock is held
// on it. Holder names are only revealed to the doctor.
func (l *Ledger) Availability(ctx context.Context, doctorID uuid.UUID, date string, candidates []schedule.Slot, viewerID uuid.UUID) ([]SlotAvailability, error) {
	out := make([]SlotAvailability, 0, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}

	holders, err := l.repo.ListSlotHolders(ctx, doctorID, date, l.now())
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	booked := make(map[string]Appointment, len(holders))
	for _, a := range holders {
		booked[a.StartTime] = a
	}

	keys := make([]schedule.SlotKey, len(candidates))
	for i, c := range candidates {
		keys[i] = schedule.SlotKey{DoctorID: doctorID, Date: date, StartTime: c.StartTime}
	}
	var locks map[schedule.SlotKey]slotlock.Lock
	if l.locks != nil {
		locks, err = l.locks.GetMany(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load slot locks: %w", err)
		}
	}

	ownView := viewerID != uuid.Nil && viewerID == doctorID
	for i, c := range candidates {
		sa := SlotAvailability{StartTime: c.StartTime, EndTime: c.EndTime, Available: true}
		if a, ok := booked[c.StartTime]; ok {
			sa.Available = false
			sa.Reason = ReasonBooked
			if ownView {
				sa.HolderName = a.PatientName
			}
		} else if _, ok := locks[keys[i]]; ok {
			sa.Available = false
			sa.Reason = ReasonLocked
		}
		out = append(out, sa)
	}
	return out, nil
}

// IsTaken reports whether a live appointment occupies key.
func (l *Ledger) IsTaken(ctx context.Context, key schedule.SlotKey) (bool, error) {
	return l.repo.SlotHeld(ctx, key, l.now())
}
