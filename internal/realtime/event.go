package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventSlotLocked           = "slot.locked"
	EventSlotUnlocked         = "slot.unlocked"
	EventAvailabilityUpdated  = "availability.updated"
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentStatus    = "appointment.status_changed"
	EventAppointmentCancelled = "appointment.cancelled"
	EventHoldLapsed           = "appointment.hold_lapsed"
	EventPaymentInitiated     = "payment.initiated"
	EventPaymentFailed        = "payment.failed"
	EventPaymentRefunded      = "payment.refunded"
)

type Event struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers events to subscribers of a channel. Delivery is best
// effort and callers must not depend on it for correctness.
type Notifier interface {
	Notify(ctx context.Context, channel string, ev Event) error
}

func DoctorChannel(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}

func AppointmentChannel(appointmentID uuid.UUID) string {
	return "appointment:" + appointmentID.String()
}

type Nop struct{}

func (Nop) Notify(context.Context, string, Event) error { return nil }

// Recorder keeps every notified event. Useful in tests.
type Recorder struct {
	events chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Notify(_ context.Context, channel string, ev Event) error {
	ev.Channel = channel
	select {
	case r.events <- ev:
	default:
	}
	return nil
}

// Events drains what has been recorded so far.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
