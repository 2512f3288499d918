package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID        string `json:"patient_id"`
	DoctorID         string `json:"doctor_id"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	ConsultationType string `json:"consultation_type"`
	PaymentMethod    string `json:"payment_method"`
	Notes            string `json:"notes,omitempty"`
}

type LockRequest struct {
	HolderID   string `json:"holder_id"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type LockResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	HolderID  uuid.UUID `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SlotStatusResponse struct {
	Available   bool       `json:"available"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID                      `json:"doctor_id"`
	Date     string                         `json:"date"`
	Slots    []appointment.SlotAvailability `json:"slots"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type OfflineCollectionRequest struct {
	CollectedBy string `json:"collected_by,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// BookingFailureResponse is returned when the appointment was created but
// the payment order could not be opened.
type BookingFailureResponse struct {
	ErrorResponse
	Appointment *appointment.Appointment `json:"appointment"`
}
