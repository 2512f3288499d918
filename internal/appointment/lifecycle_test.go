package appointment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/realtime"
)

func (f *fixture) confirmed(t *testing.T, patientID uuid.UUID, start string) *Appointment {
	t.Helper()
	res := f.book(t, patientID, start)
	appt, err := f.svc.ConfirmPayment(context.Background(), f.confirmation(res, "pay_"+start))
	require.NoError(t, err)
	return appt
}

func TestDoctorTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.confirmed(t, f.patient.ID, "09:00")

	_, err := f.svc.DoctorTransition(ctx, appt.ID, uuid.New(), StatusInProgress, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, "archived", "")
	assert.ErrorIs(t, err, ErrValidation)

	started, err := f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)
	assert.True(t, started.HoldsSlot)

	done, err := f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusCompleted, "prescribed rest")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.False(t, done.HoldsSlot)
	require.NotNil(t, done.DoctorNotes)
	assert.Equal(t, "prescribed rest", *done.DoctorNotes)

	var statuses []AppointmentStatus
	for _, h := range done.StatusHistory {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []AppointmentStatus{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted}, statuses)
	last := done.StatusHistory[len(done.StatusHistory)-1]
	require.NotNil(t, last.ActorID)
	assert.Equal(t, f.doctor.ID, *last.ActorID)
	assert.Equal(t, SourceDoctor, last.Source)

	_, err = f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestDoctorCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.confirmed(t, f.patient.ID, "13:00")
	f.recorder.Events()

	cancelled, err := f.svc.DoctorTransition(ctx, appt.ID, f.doctor.ID, StatusCancelled, "emergency surgery")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "emergency surgery", *cancelled.CancellationReason)

	var types []string
	for _, ev := range f.recorder.Events() {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, realtime.EventAppointmentCancelled)

	res := f.book(t, f.other.ID, "13:00")
	assert.Equal(t, f.other.ID, res.Appointment.PatientID)
}

func TestDoctorMarksNoShow(t *testing.T) {
	f := newFixture(t)
	appt := f.confirmed(t, f.patient.ID, "16:30")

	updated, err := f.svc.DoctorTransition(context.Background(), appt.ID, f.doctor.ID, StatusNoShow, "")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)
	assert.True(t, IsTerminal(updated.Status))
}

func TestPatientCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "11:30")

	_, err := f.svc.PatientCancel(ctx, res.Appointment.ID, f.other.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.PatientCancel(ctx, res.Appointment.ID, f.patient.ID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.HoldsSlot)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "feeling better", *cancelled.CancellationReason)

	_, err = f.svc.PatientCancel(ctx, res.Appointment.ID, f.patient.ID, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.PatientCancel(ctx, uuid.New(), f.patient.ID, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	// A cancelled booking cannot be paid for.
	_, err = f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_late"))
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}
