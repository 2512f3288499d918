package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

type RouterConfig struct {
	Schedule      *schedule.Service
	Appointments  *appointment.Service
	Ledger        *appointment.Ledger
	Locks         *slotlock.Manager
	Hub           *realtime.Hub // nil disables /ws
	Checks        map[string]HealthCheck
	Critical      []string
	Logger        *zerolog.Logger
	LockRateLimit float64 // lock requests per second per client, 0 disables
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	loc := time.Local
	if cfg.Schedule != nil {
		loc = cfg.Schedule.Location()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Critical, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.Handler())
	}

	// Availability and slot endpoints
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/availability", getTemplateHandler(cfg.Schedule, cfg.Appointments, logger))
		r.Put("/availability", putTemplateHandler(cfg.Schedule, cfg.Appointments, logger))
		r.Post("/availability/reset", resetTemplateHandler(cfg.Schedule, cfg.Appointments, logger))
		r.Get("/availability/analytics", templateAnalyticsHandler(cfg.Schedule, cfg.Appointments, logger))
		r.Get("/appointments", listDoctorAppointmentsHandler(cfg.Appointments, logger))

		r.Get("/slots/{date}", listSlotsHandler(cfg.Schedule, cfg.Appointments, cfg.Ledger, logger))
		r.Get("/slots/{date}/{time}", slotStatusHandler(cfg.Locks, loc, logger))
		r.With(RateLimitMiddleware(cfg.LockRateLimit, int(cfg.LockRateLimit)+1)).
			Post("/slots/{date}/{time}/lock", acquireLockHandler(cfg.Schedule, cfg.Appointments, cfg.Locks, loc, logger))
		r.Delete("/slots/{date}/{time}/lock", releaseLockHandler(cfg.Locks, loc, logger))
	})

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Appointments, logger))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments, logger))
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", getAppointmentHandler(cfg.Appointments, logger))
		r.Put("/status", updateStatusHandler(cfg.Appointments, logger))
		r.Post("/cancel", cancelAppointmentHandler(cfg.Appointments, logger))
		r.Post("/payment", retryPaymentHandler(cfg.Appointments, logger))
		r.Post("/payment/offline/complete", completeOfflinePaymentHandler(cfg.Appointments, logger))
		r.Post("/refund", refundHandler(cfg.Appointments, logger))
	})

	// Payment endpoints
	r.Post("/payments/verify", verifyPaymentHandler(cfg.Appointments, logger))
	r.Post("/payments/webhook", webhookHandler(cfg.Appointments, logger))

	return r
}
