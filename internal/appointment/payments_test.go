package appointment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

func webhookBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured","amount":50000}}}}`,
		event, paymentID, orderID,
	))
}

func (f *fixture) confirmation(res *BookResult, paymentID string) PaymentConfirmation {
	return PaymentConfirmation{
		OrderID:          res.Order.ID,
		GatewayPaymentID: paymentID,
		Signature:        payment.SignOrder(res.Order.ID, paymentID, testKeySecret),
	}
}

func countStatus(history []StatusChange, s AppointmentStatus) int {
	n := 0
	for _, h := range history {
		if h.Status == s {
			n++
		}
	}
	return n
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.locks.Acquire(ctx, f.key("09:00"), f.patient.ID, 0)
	require.NoError(t, err)
	res := f.book(t, f.patient.ID, "09:00")

	appt, err := f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_001"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, PaymentPaid, appt.PaymentStatus)
	assert.True(t, appt.HoldsSlot)
	assert.Nil(t, appt.HoldExpiresAt)

	lock, err := f.locks.Holder(ctx, f.key("09:00"))
	require.NoError(t, err)
	assert.Nil(t, lock, "confirmation releases the patient's lock")

	body := webhookBody(payment.EventPaymentCaptured, res.Order.ID, "pay_001")
	require.NoError(t, f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret)))

	again, err := f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_001"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countStatus(stored.StatusHistory, StatusConfirmed))

	pay, err := f.repo.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentRecordCompleted, pay.Status)
	require.NotNil(t, pay.GatewayPaymentID)
	assert.Equal(t, "pay_001", *pay.GatewayPaymentID)
}

func TestWebhookBeforeCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "09:00")

	body := webhookBody(payment.EventPaymentAuthorized, res.Order.ID, "pay_002")
	require.NoError(t, f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret)))

	appt, err := f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_002"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, 1, countStatus(appt.StatusHistory, StatusConfirmed))
}

func TestConfirmPaymentInvalidSignatureKeepsHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "09:00")

	c := f.confirmation(res, "pay_003")
	c.Signature = payment.SignOrder(res.Order.ID, "pay_003", "wrong-secret")

	_, err := f.svc.ConfirmPayment(ctx, c)
	require.ErrorIs(t, err, ErrInvalidSignature)

	appt, err := f.svc.Get(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, PaymentPending, appt.PaymentStatus)
	assert.True(t, appt.HoldsSlot)

	pay, err := f.repo.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentRecordPending, pay.Status)

	var rejected int
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventSignatureRejected {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)

	// Nobody else can take the slot.
	_, err = f.svc.Book(ctx, BookRequest{
		PatientID:        f.other.ID,
		DoctorID:         f.doctor.ID,
		Date:             monday,
		StartTime:        "09:00",
		ConsultationType: ConsultationOnline,
		PaymentMethod:    MethodOnline,
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// The genuine callback still confirms.
	appt, err = f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_003"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, PaymentPaid, appt.PaymentStatus)
}

func TestConfirmPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmPayment(ctx, PaymentConfirmation{OrderID: "order_x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmation{OrderID: "order_x", GatewayPaymentID: "pay_x", Signature: "00"})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestWebhookFailureReleasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "10:30")

	body := webhookBody(payment.EventPaymentFailed, res.Order.ID, "pay_004")
	require.NoError(t, f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret)))

	appt, err := f.svc.Get(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, appt.PaymentStatus)
	assert.False(t, appt.HoldsSlot)

	pay, err := f.repo.GetPaymentByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentRecordFailed, pay.Status)

	taken, err := f.ledger.IsTaken(ctx, f.key("10:30"))
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestLateFailureAfterSuccessIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_005"))
	require.NoError(t, err)

	body := webhookBody(payment.EventPaymentFailed, res.Order.ID, "pay_005")
	require.NoError(t, f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret)))

	appt, err := f.svc.Get(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, PaymentPaid, appt.PaymentStatus)
	assert.True(t, appt.HoldsSlot)
}

func TestHandleWebhookRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := webhookBody(payment.EventPaymentCaptured, "order_unknown", "pay_x")
	assert.ErrorIs(t, f.svc.HandleWebhook(ctx, body, "deadbeef"), ErrInvalidSignature)

	err := f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrUnprocessable)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	malformed := []byte(`{"event":"payment.captured","payload":{}}`)
	assert.ErrorIs(t, f.svc.HandleWebhook(ctx, malformed, payment.Sign(malformed, testWebhookSecret)), ErrUnprocessable)

	other := []byte(`{"event":"order.paid","payload":{}}`)
	assert.NoError(t, f.svc.HandleWebhook(ctx, other, payment.Sign(other, testWebhookSecret)))
}

func TestLapsedHoldIsRebookable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.book(t, f.patient.ID, "09:00")
	f.clock.Advance(31 * time.Minute)

	second := f.book(t, f.other.ID, "09:00")
	assert.True(t, second.Appointment.HoldsSlot)

	lapsed, err := f.svc.Get(ctx, first.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, lapsed.Status)
	assert.False(t, lapsed.HoldsSlot)
	require.Len(t, lapsed.StatusHistory, 2)
	assert.Equal(t, SourceSystem, lapsed.StatusHistory[1].Source)

	// Money that arrives after the slot moved on is recorded but does not
	// confirm the appointment.
	kept, err := f.svc.ConfirmPayment(ctx, f.confirmation(first, "pay_006"))
	require.ErrorIs(t, err, ErrSlotConflict)
	require.NotNil(t, kept)
	assert.Equal(t, StatusPending, kept.Status)
	assert.Equal(t, PaymentPaid, kept.PaymentStatus)

	// A retried callback lands in the same place.
	_, err = f.svc.ConfirmPayment(ctx, f.confirmation(first, "pay_006"))
	assert.ErrorIs(t, err, ErrSlotConflict)

	body := webhookBody(payment.EventPaymentCaptured, first.Order.ID, "pay_006")
	assert.ErrorIs(t, f.svc.HandleWebhook(ctx, body, payment.Sign(body, testWebhookSecret)), ErrUnprocessable)

	winner, err := f.svc.Get(ctx, second.Appointment.ID)
	require.NoError(t, err)
	assert.True(t, winner.HoldsSlot)
}

func TestExpireLapsedHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.book(t, f.patient.ID, "09:00")
	f.book(t, f.other.ID, "09:30")

	f.clock.Advance(10 * time.Minute)
	n, err := f.svc.ExpireLapsedHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Minute)
	n, err = f.svc.ExpireLapsedHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.ExpireLapsedHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	appt, err := f.svc.Get(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.False(t, appt.HoldsSlot)

	// Nobody took the slot, so a late payment reclaims it.
	confirmed, err := f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_007"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.HoldsSlot)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.Refund(ctx, res.Appointment.ID, f.doctor.ID, "doctor unavailable")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.ConfirmPayment(ctx, f.confirmation(res, "pay_008"))
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, res.Appointment.ID, f.patient.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrForbidden)

	appt, err := f.svc.Refund(ctx, res.Appointment.ID, f.doctor.ID, "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, appt.PaymentStatus)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, []string{"pay_008"}, f.gateway.Refunds())

	pay, err := f.repo.GetLatestPayment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentRecordRefunded, pay.Status)
	assert.NotNil(t, pay.RefundID)

	again, err := f.svc.Refund(ctx, res.Appointment.ID, f.doctor.ID, "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, again.PaymentStatus)
	assert.Len(t, f.gateway.Refunds(), 1)
}
