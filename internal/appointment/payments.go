package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
)

// PaymentConfirmation is a client-side callback after checkout.
type PaymentConfirmation struct {
	OrderID          string
	GatewayPaymentID string
	Signature        string
	Source           ChangeSource
}

// ConfirmPayment verifies the checkout signature and confirms the
// appointment. A bad signature is rejected without touching the payment
// or the slot hold, so a genuine callback can still follow. Repeated confirmations of the same order are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, c PaymentConfirmation) (*Appointment, error) {
	if c.OrderID == "" || c.GatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: order_id and payment_id are required", ErrValidation)
	}
	if c.Source == "" {
		c.Source = SourcePaymentCallback
	}

	pay, err := s.repo.GetPaymentByOrderID(ctx, c.OrderID)
	if err != nil {
		return nil, err
	}

	if !s.gateway.VerifySignature(c.OrderID, c.GatewayPaymentID, c.Signature) {
		metrics.IncPaymentConfirmation(string(c.Source), "invalid_signature")
		s.logger.Warn().Str("order_id", c.OrderID).Str("appointment_id", pay.AppointmentID.String()).Msg("payment signature verification failed")
		s.logEvent(ctx, pay.AppointmentID, EventSignatureRejected, map[string]any{
			"order_id":   c.OrderID,
			"payment_id": c.GatewayPaymentID,
			"source":     string(c.Source),
		})
		return nil, ErrInvalidSignature
	}

	gatewayID := c.GatewayPaymentID
	return s.confirm(ctx, pay, &gatewayID, c.Source, nil)
}

// HandleWebhook applies a signed gateway notification. Errors wrapping
// ErrUnprocessable mean the event is valid but cannot change anything and
// should still be acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhook(body, signature) {
		metrics.IncWebhook("invalid_signature")
		return ErrInvalidSignature
	}

	ev, err := payment.ParseWebhook(body)
	if err != nil {
		metrics.IncWebhook("malformed")
		return fmt.Errorf("%w: %w", ErrUnprocessable, err)
	}

	entity := ev.Payment()
	switch {
	case ev.Succeeded():
		var pay *Payment
		pay, err = s.repo.GetPaymentByOrderID(ctx, entity.OrderID)
		if err == nil {
			gatewayID := entity.ID
			_, err = s.confirm(ctx, pay, &gatewayID, SourcePaymentWebhook, nil)
		}
	case ev.Event == payment.EventPaymentFailed:
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed at gateway"
		}
		_, err = s.FailPayment(ctx, entity.OrderID, reason, SourcePaymentWebhook)
	default:
		metrics.IncWebhook("ignored")
		s.logger.Debug().Str("event", ev.Event).Msg("ignoring webhook event")
		return nil
	}

	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrAppointmentNotFound) ||
			errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrInvalidStatusTransition) {
			metrics.IncWebhook("unprocessable")
			s.logger.Warn().Err(err).Str("event", ev.Event).Str("order_id", entity.OrderID).Msg("webhook not applied")
			return fmt.Errorf("%w: %w", ErrUnprocessable, err)
		}
		metrics.IncWebhook("error")
		return err
	}
	metrics.IncWebhook("processed")
	return nil
}

// FailPayment marks the order's payment failed and releases the slot.
// Orders whose appointment is already paid or past pending are left alone.
func (s *Service) FailPayment(ctx context.Context, orderID, reason string, source ChangeSource) (*Appointment, error) {
	pay, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.failPayment(ctx, pay, reason, source)
}

// CompleteOfflinePayment records cash collected at the clinic and confirms
// the appointment.
func (s *Service) CompleteOfflinePayment(ctx context.Context, appointmentID, collectedBy uuid.UUID) (*Appointment, error) {
	if collectedBy == uuid.Nil {
		return nil, fmt.Errorf("%w: collector is required", ErrValidation)
	}
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PaymentMethod != MethodOffline {
		return nil, fmt.Errorf("%w: appointment is paid online", ErrValidation)
	}
	if collectedBy != appt.DoctorID {
		return nil, ErrForbidden
	}
	pay, err := s.repo.GetLatestPayment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, pay, nil, SourceOfflineCollection, &collectedBy)
}

// Refund returns a paid appointment's money. Only the doctor may refund.
func (s *Service) Refund(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actorID != appt.DoctorID {
		return nil, ErrForbidden
	}
	if appt.PaymentStatus == PaymentRefunded {
		return appt, nil
	}
	if appt.PaymentStatus != PaymentPaid {
		return nil, ErrInvalidStatusTransition
	}

	pay, err := s.repo.GetLatestPayment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if pay.Method == MethodOnline {
		if pay.GatewayPaymentID == nil {
			return nil, fmt.Errorf("%w: payment has no gateway reference", ErrValidation)
		}
		refundID, err := s.gateway.Refund(ctx, *pay.GatewayPaymentID, pay.Amount, reason)
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("refund failed")
			return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
		}
		pay.RefundID = &refundID
	}

	now := s.now()
	pay.Status = PaymentRecordRefunded
	pay.UpdatedAt = now
	if err := s.repo.UpdatePayment(ctx, pay); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if reason == "" {
		reason = "payment refunded"
	}
	refunded := PaymentRefunded
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusUpdate{
		From:          allStatuses,
		PaymentStatus: &refunded,
		Change:        StatusChange{ActorID: &actorID, Source: SourceDoctor, Note: reason, At: now},
	})
	if err != nil {
		return nil, fmt.Errorf("mark refunded: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventPaymentRefunded, map[string]any{"amount": pay.Amount, "reason": reason})
	s.publish(ctx, updated, realtime.EventPaymentRefunded)
	return updated, nil
}

var allStatuses = []AppointmentStatus{
	StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted,
	StatusCancelled, StatusNoShow, StatusRescheduled,
}

// confirm moves a pending appointment to confirmed and paid in one
// conditional update. It tolerates duplicates: an appointment that is
// already confirmed and paid is returned unchanged. If the slot has been
// taken since the hold lapsed, the payment is recorded but the appointment
// stays pending and ErrSlotConflict is returned.
func (s *Service) confirm(ctx context.Context, pay *Payment, gatewayPaymentID *string, source ChangeSource, actor *uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, pay.AppointmentID)
	if err != nil {
		return nil, err
	}

	if appt.PaymentStatus == PaymentPaid {
		if err := s.completePayment(ctx, pay, gatewayPaymentID, actor); err != nil {
			return nil, err
		}
		metrics.IncPaymentConfirmation(string(source), "duplicate")
		if appt.Status == StatusPending {
			return appt, ErrSlotConflict
		}
		return appt, nil
	}
	if appt.Status != StatusPending {
		metrics.IncPaymentConfirmation(string(source), "rejected")
		return nil, ErrInvalidStatusTransition
	}

	now := s.now()
	paid := PaymentPaid
	holds := true
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusUpdate{
		From:          []AppointmentStatus{StatusPending},
		To:            StatusConfirmed,
		PaymentStatus: &paid,
		HoldsSlot:     &holds,
		SetHoldExpiry: true,
		Change:        StatusChange{ActorID: actor, Source: source, Note: "payment confirmed", At: now},
	})
	switch {
	case errors.Is(err, ErrStatusConflict):
		cur, gerr := s.repo.GetAppointmentByID(ctx, appt.ID)
		if gerr == nil && cur.Status == StatusConfirmed && cur.PaymentStatus == PaymentPaid {
			metrics.IncPaymentConfirmation(string(source), "duplicate")
			return cur, s.completePayment(ctx, pay, gatewayPaymentID, actor)
		}
		metrics.IncPaymentConfirmation(string(source), "rejected")
		return nil, ErrInvalidStatusTransition
	case errors.Is(err, ErrSlotConflict):
		return s.orphanPayment(ctx, appt, pay, gatewayPaymentID, source, actor)
	case err != nil:
		metrics.IncPaymentConfirmation(string(source), "error")
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	if err := s.completePayment(ctx, pay, gatewayPaymentID, actor); err != nil {
		return nil, err
	}
	s.releaseLock(ctx, updated)

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{
		"source":   source,
		"order_id": pay.OrderID,
	})
	s.publish(ctx, updated, realtime.EventAppointmentConfirmed)
	metrics.IncPaymentConfirmation(string(source), "confirmed")
	metrics.IncTransition(string(StatusConfirmed))
	return updated, nil
}

// orphanPayment records money received for a slot that now belongs to
// another appointment. The appointment stays pending and needs a refund.
func (s *Service) orphanPayment(ctx context.Context, appt *Appointment, pay *Payment, gatewayPaymentID *string, source ChangeSource, actor *uuid.UUID) (*Appointment, error) {
	paid := PaymentPaid
	kept, err := s.repo.UpdateStatus(ctx, appt.ID, StatusUpdate{
		From:          []AppointmentStatus{StatusPending},
		PaymentStatus: &paid,
		Change: StatusChange{
			ActorID: actor,
			Source:  source,
			Note:    "payment received after the slot was released; refund required",
			At:      s.now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("record orphaned payment: %w", err)
	}
	if err := s.completePayment(ctx, pay, gatewayPaymentID, actor); err != nil {
		return nil, err
	}

	s.logger.Error().Str("appointment_id", appt.ID.String()).Str("slot", appt.SlotKey().String()).
		Msg("payment received for a slot that is no longer held")
	s.logEvent(ctx, appt.ID, EventPaymentOrphaned, map[string]any{"source": source, "order_id": pay.OrderID})
	metrics.IncPaymentConfirmation(string(source), "slot_lost")
	return kept, ErrSlotConflict
}

func (s *Service) completePayment(ctx context.Context, pay *Payment, gatewayPaymentID *string, collectedBy *uuid.UUID) error {
	if pay.Status == PaymentRecordCompleted {
		return nil
	}
	pay.Status = PaymentRecordCompleted
	if gatewayPaymentID != nil {
		pay.GatewayPaymentID = gatewayPaymentID
	}
	if collectedBy != nil {
		pay.CollectedBy = collectedBy
	}
	pay.UpdatedAt = s.now()
	if err := s.repo.UpdatePayment(ctx, pay); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (s *Service) failPayment(ctx context.Context, pay *Payment, reason string, source ChangeSource) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, pay.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending || appt.PaymentStatus == PaymentPaid || appt.PaymentStatus == PaymentRefunded {
		s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("ignoring payment failure for settled appointment")
		return appt, nil
	}

	now := s.now()
	failed := PaymentFailed
	holds := false
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusUpdate{
		From:          []AppointmentStatus{StatusPending},
		PaymentStatus: &failed,
		HoldsSlot:     &holds,
		SetHoldExpiry: true,
		Change:        StatusChange{Source: source, Note: reason, At: now},
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.repo.GetAppointmentByID(ctx, appt.ID)
		}
		return nil, fmt.Errorf("mark payment failed: %w", err)
	}

	if pay.Status == PaymentRecordPending {
		pay.Status = PaymentRecordFailed
		pay.UpdatedAt = now
		if err := s.repo.UpdatePayment(ctx, pay); err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
	}
	s.releaseLock(ctx, updated)

	s.logEvent(ctx, updated.ID, EventPaymentFailed, map[string]any{"reason": reason, "source": source})
	s.publish(ctx, updated, realtime.EventPaymentFailed)
	metrics.IncPaymentConfirmation(string(source), "failed")
	return updated, nil
}
