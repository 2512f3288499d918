package appointment

import (
	"errors"

	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	ErrValidation       = errors.New("validation error")
	ErrSlotNotOffered   = errors.New("requested time is not an offered slot")
	ErrFeeNotConfigured = errors.New("doctor has no fee for this consultation type")

	ErrSlotConflict            = slotlock.ErrSlotConflict
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("not allowed to act on this appointment")

	ErrPaymentGateway   = errors.New("payment gateway unavailable")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrOfflinePayment   = errors.New("could not record offline payment")
	ErrUnprocessable    = errors.New("payment event cannot be applied")

	// ErrStatusConflict is returned by repositories when a conditional
	// update finds the appointment in a status it did not expect.
	ErrStatusConflict = errors.New("appointment status changed concurrently")
	// ErrDuplicateNumber is returned by CreateAppointment when the
	// appointment number is already in use.
	ErrDuplicateNumber = errors.New("appointment number already in use")
)
