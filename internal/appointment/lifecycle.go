package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

// DoctorTransition lets the appointment's doctor move it along the
// lifecycle. Statuses that free the slot also release any lock on it.
func (s *Service) DoctorTransition(ctx context.Context, appointmentID, doctorID uuid.UUID, to AppointmentStatus, notes string) (*Appointment, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !doctorTargets[to] {
		return nil, ErrInvalidStatusTransition
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, ErrForbidden
	}
	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	u := StatusUpdate{
		From:   []AppointmentStatus{appt.Status},
		To:     to,
		Change: StatusChange{ActorID: &doctorID, Source: SourceDoctor, Note: notes, At: s.now()},
	}
	if notes != "" {
		u.DoctorNotes = &notes
		if to == StatusCancelled {
			u.CancellationReason = &notes
		}
	}
	return s.transition(ctx, appt, u)
}

// PatientCancel cancels a pending or confirmed appointment on behalf of
// the patient who booked it.
func (s *Service) PatientCancel(ctx context.Context, appointmentID, patientID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrForbidden
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	u := StatusUpdate{
		From:   []AppointmentStatus{appt.Status},
		To:     StatusCancelled,
		Change: StatusChange{ActorID: &patientID, Source: SourcePatient, Note: reason, At: s.now()},
	}
	if reason != "" {
		u.CancellationReason = &reason
	}
	return s.transition(ctx, appt, u)
}

func (s *Service) transition(ctx context.Context, appt *Appointment, u StatusUpdate) (*Appointment, error) {
	if !keepsSlot(u.To) {
		holds := false
		u.HoldsSlot = &holds
		u.SetHoldExpiry = true
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, u)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !keepsSlot(u.To) {
		s.releaseLock(ctx, updated)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentStatus, map[string]any{
		"from":   appt.Status,
		"to":     updated.Status,
		"source": u.Change.Source,
	})
	eventType := realtime.EventAppointmentStatus
	if updated.Status == StatusCancelled {
		eventType = realtime.EventAppointmentCancelled
	}
	s.publish(ctx, updated, eventType)
	metrics.IncTransition(string(updated.Status))

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(updated.Status)).
		Msg("appointment status changed")
	return updated, nil
}

// ExpireLapsedHolds drops the slot claim of online appointments whose
// payment window ran out. The appointments stay pending so a later payment
// can still reclaim the slot if it is free.
func (s *Service) ExpireLapsedHolds(ctx context.Context) (int, error) {
	now := s.now()
	lapsed, err := s.repo.FindLapsedHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find lapsed holds: %w", err)
	}

	released := 0
	for i := range lapsed {
		a := &lapsed[i]
		holds := false
		updated, err := s.repo.UpdateStatus(ctx, a.ID, StatusUpdate{
			From:      []AppointmentStatus{StatusPending},
			HoldsSlot: &holds,
			Change:    lapsedChange(a, now),
		})
		if err != nil {
			if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to release lapsed hold")
			continue
		}
		s.releaseLock(ctx, updated)
		s.logEvent(ctx, updated.ID, EventHoldLapsed, map[string]any{"hold_expires_at": a.HoldExpiresAt})
		s.publish(ctx, updated, realtime.EventHoldLapsed)
		released++
	}

	if released > 0 {
		metrics.AddLapsedHolds(released)
		s.logger.Info().Int("count", released).Msg("released lapsed payment holds")
	}
	return released, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// ListByDoctor returns the doctor's appointments, optionally for one date.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	if date != "" {
		if _, err := schedule.ParseDate(date, s.cfg.Location); err != nil {
			return nil, err
		}
	}
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID, date)
}
