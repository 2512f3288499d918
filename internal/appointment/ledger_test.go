package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

func (f *fixture) candidates(t *testing.T) []schedule.Slot {
	t.Helper()
	date, err := schedule.ParseDate(monday, time.UTC)
	require.NoError(t, err)
	return schedule.Derive(schedule.DefaultTemplate(f.doctor.ID), date, f.clock.Now())
}

func byStart(in []SlotAvailability) map[string]SlotAvailability {
	out := make(map[string]SlotAvailability, len(in))
	for _, s := range in {
		out[s.StartTime] = s
	}
	return out
}

func TestLedgerAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, f.patient.ID, "09:00")
	_, err := f.locks.Acquire(ctx, f.key("09:30"), f.other.ID, 0)
	require.NoError(t, err)

	asDoctor, err := f.ledger.Availability(ctx, f.doctor.ID, monday, f.candidates(t), f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, asDoctor, 14)

	slots := byStart(asDoctor)
	assert.Equal(t, SlotAvailability{StartTime: "09:00", EndTime: "09:30", Reason: ReasonBooked, HolderName: f.patient.Name}, slots["09:00"])
	assert.Equal(t, SlotAvailability{StartTime: "09:30", EndTime: "10:00", Reason: ReasonLocked}, slots["09:30"])
	assert.True(t, slots["10:00"].Available)

	asPatient, err := f.ledger.Availability(ctx, f.doctor.ID, monday, f.candidates(t), f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, byStart(asPatient)["09:00"].HolderName)

	anonymous, err := f.ledger.Availability(ctx, f.doctor.ID, monday, f.candidates(t), uuid.Nil)
	require.NoError(t, err)
	assert.False(t, byStart(anonymous)["09:00"].Available)
	assert.Empty(t, byStart(anonymous)["09:00"].HolderName)
}

func TestLedgerBookedWinsOverLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, f.key("10:00"), f.patient.ID, 0)
	require.NoError(t, err)
	f.book(t, f.patient.ID, "10:00")

	out, err := f.ledger.Availability(ctx, f.doctor.ID, monday, f.candidates(t), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonBooked, byStart(out)["10:00"].Reason)
}

func TestLedgerIgnoresLapsedHoldsAndExpiredLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, f.patient.ID, "09:00")
	_, err := f.locks.Acquire(ctx, f.key("09:30"), f.other.ID, 0)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)

	out, err := f.ledger.Availability(ctx, f.doctor.ID, monday, f.candidates(t), uuid.Nil)
	require.NoError(t, err)
	slots := byStart(out)
	assert.True(t, slots["09:00"].Available)
	assert.True(t, slots["09:30"].Available)

	taken, err := f.ledger.IsTaken(ctx, f.key("09:00"))
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestLedgerNoCandidates(t *testing.T) {
	f := newFixture(t)
	out, err := f.ledger.Availability(context.Background(), f.doctor.ID, "2025-03-16", nil, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}
