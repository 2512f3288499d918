package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusInProgress  AppointmentStatus = "in-progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no-show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type ConsultationType string

const (
	ConsultationOnline   ConsultationType = "online"
	ConsultationInPerson ConsultationType = "in-person"
)

type PaymentMethod string

const (
	MethodOnline  PaymentMethod = "online"
	MethodOffline PaymentMethod = "offline"
)

// ChangeSource names who or what caused a history entry.
type ChangeSource string

const (
	SourceBooking           ChangeSource = "booking"
	SourcePaymentCallback   ChangeSource = "payment-callback"
	SourcePaymentWebhook    ChangeSource = "payment-webhook"
	SourceOfflineCollection ChangeSource = "offline-collection"
	SourceDoctor            ChangeSource = "doctor"
	SourcePatient           ChangeSource = "patient"
	SourceSystem            ChangeSource = "system"
)

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	HospitalID     uuid.UUID `json:"hospital_id"`
	Specialization *string   `json:"specialization,omitempty"`
	OnlineFee      int64     `json:"online_fee"`
	InPersonFee    int64     `json:"in_person_fee"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Cost struct {
	ConsultationFee int64  `json:"consultation_fee"`
	ConvenienceFee  int64  `json:"convenience_fee"`
	TotalAmount     int64  `json:"total_amount"`
	Currency        string `json:"currency"`
}

type StatusChange struct {
	Status        AppointmentStatus `json:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	ActorID       *uuid.UUID        `json:"actor_id,omitempty"`
	Source        ChangeSource      `json:"source"`
	Note          string            `json:"note,omitempty"`
	At            time.Time         `json:"at"`
}

type Appointment struct {
	ID                 uuid.UUID         `json:"id"`
	AppointmentNumber  string            `json:"appointment_number"`
	PatientID          uuid.UUID         `json:"patient_id"`
	PatientName        string            `json:"patient_name,omitempty"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	HospitalID         uuid.UUID         `json:"hospital_id"`
	ScheduledDate      string            `json:"scheduled_date"`
	StartTime          string            `json:"start_time"`
	EndTime            string            `json:"end_time"`
	ConsultationType   ConsultationType  `json:"consultation_type"`
	PaymentMethod      PaymentMethod     `json:"payment_method"`
	Status             AppointmentStatus `json:"status"`
	PaymentStatus      PaymentStatus     `json:"payment_status"`
	Cost               Cost              `json:"cost"`
	HoldsSlot          bool              `json:"holds_slot"`
	HoldExpiresAt      *time.Time        `json:"hold_expires_at,omitempty"`
	PatientNotes       *string           `json:"patient_notes,omitempty"`
	DoctorNotes        *string           `json:"doctor_notes,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	StatusHistory      []StatusChange    `json:"status_history"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (a *Appointment) SlotKey() schedule.SlotKey {
	return schedule.SlotKey{DoctorID: a.DoctorID, Date: a.ScheduledDate, StartTime: a.StartTime}
}

// HoldLapsed reports whether an online hold has run out without payment.
func (a *Appointment) HoldLapsed(now time.Time) bool {
	return a.Status == StatusPending &&
		a.PaymentStatus != PaymentPaid &&
		a.HoldExpiresAt != nil &&
		!a.HoldExpiresAt.After(now)
}

// OccupiesSlot reports whether the appointment currently blocks its slot.
func (a *Appointment) OccupiesSlot(now time.Time) bool {
	return a.HoldsSlot && !a.HoldLapsed(now)
}

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

type Payment struct {
	ID               uuid.UUID           `json:"id"`
	AppointmentID    uuid.UUID           `json:"appointment_id"`
	Method           PaymentMethod       `json:"method"`
	Status           PaymentRecordStatus `json:"status"`
	Amount           int64               `json:"amount"`
	Currency         string              `json:"currency"`
	OrderID          *string             `json:"order_id,omitempty"`
	GatewayPaymentID *string             `json:"gateway_payment_id,omitempty"`
	ReceiptNumber    *string             `json:"receipt_number,omitempty"`
	RefundID         *string             `json:"refund_id,omitempty"`
	CollectedBy      *uuid.UUID          `json:"collected_by,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// SlotAvailability is one candidate slot as seen by a viewer.
type SlotAvailability struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
}

const (
	ReasonBooked = "booked"
	ReasonLocked = "locked"
)
