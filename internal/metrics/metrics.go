package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slot_booking"

var (
	once sync.Once

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_lock_acquisitions_total",
			Help:      "Slot lock acquisition attempts by result.",
		},
		[]string{"result"},
	)

	paymentConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations by source and result.",
		},
		[]string{"source", "result"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status.",
		},
		[]string{"status"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhooks received by result.",
		},
		[]string{"result"},
	)

	lapsedHolds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lapsed_holds_total",
			Help:      "Online payment holds released after their window lapsed.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookings, lockAcquisitions, paymentConfirmations, transitions, webhooks, lapsedHolds)
	})
}

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func IncLockAcquisition(result string) {
	lockAcquisitions.WithLabelValues(result).Inc()
}

func IncPaymentConfirmation(source, result string) {
	paymentConfirmations.WithLabelValues(source, result).Inc()
}

func IncTransition(status string) {
	transitions.WithLabelValues(status).Inc()
}

func IncWebhook(result string) {
	webhooks.WithLabelValues(result).Inc()
}

func AddLapsedHolds(n int) {
	lapsedHolds.Add(float64(n))
}
