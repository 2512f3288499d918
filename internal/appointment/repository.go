package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

// StatusUpdate is a conditional change applied only while the appointment
// is in one of From. Nil fields are left untouched.
type StatusUpdate struct {
	From               []AppointmentStatus
	To                 AppointmentStatus // empty keeps the status
	PaymentStatus      *PaymentStatus
	HoldsSlot          *bool
	SetHoldExpiry      bool
	HoldExpiresAt      *time.Time
	DoctorNotes        *string
	CancellationReason *string
	Change             StatusChange
}

func (u StatusUpdate) allows(s AppointmentStatus) bool {
	for _, f := range u.From {
		if f == s {
			return true
		}
	}
	return false
}

// Repository contains all storage interactions needed by the service.
// Implementations enforce that at most one appointment holds a slot key.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// CreateAppointment first releases lapsed holds on the same slot key,
	// then inserts a and its first history entry. Another live holder
	// yields ErrSlotConflict, a taken appointment number ErrDuplicateNumber.
	CreateAppointment(ctx context.Context, a *Appointment, now time.Time) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus applies u atomically and appends u.Change to the history.
	// ErrStatusConflict when the current status is not in u.From,
	// ErrSlotConflict when re-claiming a slot someone else holds.
	UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (*Appointment, error)

	// ListSlotHolders returns appointments occupying slots of doctor on date at now.
	ListSlotHolders(ctx context.Context, doctorID uuid.UUID, date string, now time.Time) ([]Appointment, error)
	SlotHeld(ctx context.Context, key schedule.SlotKey, now time.Time) (bool, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error)

	// Expiry worker
	FindLapsedHolds(ctx context.Context, now time.Time) ([]Appointment, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetLatestPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
