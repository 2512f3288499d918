package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/realtime"
)

func newTestService(rec realtime.Notifier) *Service {
	return NewService(NewMemoryTemplateRepository(), rec, time.UTC, nil).
		WithClock(func() time.Time { return sundayMorning })
}

func TestService_TemplateCreatesDefault(t *testing.T) {
	svc := newTestService(nil)
	doctorID := uuid.New()

	tpl, err := svc.Template(context.Background(), doctorID)
	require.NoError(t, err)

	assert.Equal(t, doctorID, tpl.DoctorID)
	assert.Equal(t, DefaultSlotDurationMinutes, tpl.SlotDurationMinutes)
	assert.Equal(t, sundayMorning, tpl.UpdatedAt)

	again, err := svc.Template(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Equal(t, tpl, again)
}

func TestService_Update(t *testing.T) {
	rec := realtime.NewRecorder(4)
	svc := newTestService(rec)
	doctorID := uuid.New()

	tpl := DefaultTemplate(doctorID)
	tpl.SlotDurationMinutes = 60

	_, err := svc.Update(context.Background(), doctorID, uuid.New(), tpl)
	assert.ErrorIs(t, err, ErrForbidden)

	bad := tpl
	bad.SlotDurationMinutes = 5
	_, err = svc.Update(context.Background(), doctorID, doctorID, bad)
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	saved, err := svc.Update(context.Background(), doctorID, doctorID, tpl)
	require.NoError(t, err)
	assert.Equal(t, 60, saved.SlotDurationMinutes)

	slots, err := svc.Slots(context.Background(), doctorID, "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, slots, 7)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventAvailabilityUpdated, events[0].Type)
	assert.Equal(t, realtime.DoctorChannel(doctorID), events[0].Channel)

	reset, err := svc.Reset(context.Background(), doctorID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSlotDurationMinutes, reset.SlotDurationMinutes)
}

func TestService_SlotsRejectsBadDate(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Slots(context.Background(), uuid.New(), "2025/03/10")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
