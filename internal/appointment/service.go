package appointment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentStatus    = "APPOINTMENT_STATUS_CHANGED"
	EventHoldLapsed           = "APPOINTMENT_HOLD_LAPSED"
	EventPaymentInitiated     = "PAYMENT_INITIATED"
	EventPaymentFailed        = "PAYMENT_FAILED"
	EventPaymentRefunded      = "PAYMENT_REFUNDED"
	EventPaymentOrphaned      = "PAYMENT_WITHOUT_SLOT"
	EventSignatureRejected    = "PAYMENT_SIGNATURE_REJECTED"
)

// maxNumberAttempts bounds retries on appointment number collisions.
const maxNumberAttempts = 8

// Locker is the part of the slot lock manager the lifecycle needs.
type Locker interface {
	Holder(ctx context.Context, key schedule.SlotKey) (*slotlock.Lock, error)
	ReleaseHeld(ctx context.Context, key schedule.SlotKey, holderID uuid.UUID) (bool, error)
}

// TemplateSource yields a doctor's availability template.
type TemplateSource interface {
	Template(ctx context.Context, doctorID uuid.UUID) (schedule.Template, error)
}

type Service struct {
	repo      Repository
	templates TemplateSource
	locker    Locker
	gateway   payment.Gateway
	notifier  realtime.Notifier
	logger    *zerolog.Logger
	cfg       config.Config
	now       func() time.Time
}

func NewService(repo Repository, templates TemplateSource, locker Locker, gateway payment.Gateway,
	notifier realtime.Notifier, cfg config.Config, logger *zerolog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "INR"
	}
	return &Service{
		repo:      repo,
		templates: templates,
		locker:    locker,
		gateway:   gateway,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type BookRequest struct {
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Date             string
	StartTime        string
	ConsultationType ConsultationType
	PaymentMethod    PaymentMethod
	Notes            string
}

type BookResult struct {
	Appointment *Appointment   `json:"appointment"`
	Order       *payment.Order `json:"order,omitempty"`
}

func (r *BookRequest) normalize() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = MethodOnline
	}
	switch r.ConsultationType {
	case ConsultationOnline, ConsultationInPerson:
	default:
		return fmt.Errorf("%w: consultation_type must be online or in-person", ErrValidation)
	}
	switch r.PaymentMethod {
	case MethodOnline, MethodOffline:
	default:
		return fmt.Errorf("%w: payment_method must be online or offline", ErrValidation)
	}
	return nil
}

// Book creates a pending appointment for a derived slot. Online bookings
// also open a gateway order; if that fails the appointment stays pending
// and the error wraps ErrPaymentGateway. Offline bookings record a pending
// offline payment, and the appointment is removed again if that fails.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	date, err := schedule.ParseDate(req.Date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	if _, err := schedule.ParseClock(req.StartTime); err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	tpl, err := s.templates.Template(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	now := s.now()
	var slot *schedule.Slot
	for _, c := range schedule.Derive(tpl, date, now) {
		if c.StartTime == req.StartTime {
			c := c
			slot = &c
			break
		}
	}
	if slot == nil {
		metrics.IncBooking("rejected")
		return nil, fmt.Errorf("%w: %s %s", ErrSlotNotOffered, req.Date, req.StartTime)
	}

	lock, err := s.locker.Holder(ctx, slot.Key())
	if err != nil {
		return nil, fmt.Errorf("check slot lock: %w", err)
	}
	if lock != nil && lock.HolderID != req.PatientID {
		metrics.IncBooking("conflict")
		return nil, ErrSlotConflict
	}

	cost, err := ComputeCost(doctor, req.ConsultationType, s.cfg.Payment.Currency)
	if err != nil {
		return nil, err
	}

	actor := req.PatientID
	appt := &Appointment{
		PatientID:         req.PatientID,
		DoctorID:          req.DoctorID,
		HospitalID:        doctor.HospitalID,
		ScheduledDate:     slot.Date,
		StartTime:         slot.StartTime,
		EndTime:           slot.EndTime,
		ConsultationType:  req.ConsultationType,
		PaymentMethod:     req.PaymentMethod,
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		Cost:              cost,
		HoldsSlot:         true,
		StatusHistory: []StatusChange{{
			Status:        StatusPending,
			PaymentStatus: PaymentPending,
			ActorID:       &actor,
			Source:        SourceBooking,
			Note:          "appointment booked",
			At:            now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Notes != "" {
		notes := req.Notes
		appt.PatientNotes = &notes
	}
	if req.PaymentMethod == MethodOnline {
		exp := now.Add(s.cfg.LockTTL)
		appt.HoldExpiresAt = &exp
	}

	if err := s.insert(ctx, appt, now); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			metrics.IncBooking("conflict")
			return nil, err
		}
		metrics.IncBooking("error")
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	// Offline bookings are announced only once their payment record exists.
	if appt.PaymentMethod == MethodOffline {
		if err := s.recordOfflinePayment(ctx, appt); err != nil {
			if delErr := s.repo.DeleteAppointment(ctx, appt.ID); delErr != nil {
				s.logger.Error().Err(delErr).Str("appointment_id", appt.ID.String()).
					Msg("failed to remove appointment after offline payment error")
			}
			s.releaseLock(ctx, appt)
			metrics.IncBooking("error")
			return nil, fmt.Errorf("%w: %v", ErrOfflinePayment, err)
		}
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":          appt.DoctorID.String(),
		"patient_id":         appt.PatientID.String(),
		"appointment_number": appt.AppointmentNumber,
		"scheduled_date":     appt.ScheduledDate,
		"start_time":         appt.StartTime,
		"payment_method":     appt.PaymentMethod,
	})
	s.publish(ctx, appt, realtime.EventAppointmentCreated)

	result := &BookResult{Appointment: appt}
	switch appt.PaymentMethod {
	case MethodOnline:
		order, err := s.openOrder(ctx, appt)
		if err != nil {
			metrics.IncBooking("gateway_error")
			return result, err
		}
		result.Order = order
	case MethodOffline:
		s.releaseLock(ctx, appt)
	}

	metrics.IncBooking("created")
	return result, nil
}

// InitiatePayment opens a new gateway order for a pending, unpaid online
// appointment, re-claiming its slot if the earlier hold was dropped.
func (s *Service) InitiatePayment(ctx context.Context, appointmentID, patientID uuid.UUID) (*BookResult, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrForbidden
	}
	if appt.PaymentMethod != MethodOnline {
		return nil, fmt.Errorf("%w: appointment is paid offline", ErrValidation)
	}
	if appt.Status != StatusPending || appt.PaymentStatus == PaymentPaid || appt.PaymentStatus == PaymentRefunded {
		return nil, ErrInvalidStatusTransition
	}

	lock, err := s.locker.Holder(ctx, appt.SlotKey())
	if err != nil {
		return nil, fmt.Errorf("check slot lock: %w", err)
	}
	if lock != nil && lock.HolderID != patientID {
		return nil, ErrSlotConflict
	}

	now := s.now()
	exp := now.Add(s.cfg.LockTTL)
	holds := true
	pending := PaymentPending
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusUpdate{
		From:          []AppointmentStatus{StatusPending},
		PaymentStatus: &pending,
		HoldsSlot:     &holds,
		SetHoldExpiry: true,
		HoldExpiresAt: &exp,
		Change: StatusChange{
			ActorID: &patientID,
			Source:  SourcePatient,
			Note:    "payment retried",
			At:      now,
		},
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrInvalidStatusTransition
		}
		if errors.Is(err, ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh payment hold: %w", err)
	}

	order, err := s.openOrder(ctx, updated)
	if err != nil {
		return &BookResult{Appointment: updated}, err
	}
	return &BookResult{Appointment: updated, Order: order}, nil
}

func (s *Service) openOrder(ctx context.Context, appt *Appointment) (*payment.Order, error) {
	order, err := s.gateway.CreateOrder(ctx, appt.Cost.TotalAmount, appt.Cost.Currency, map[string]string{
		"appointment_id":     appt.ID.String(),
		"appointment_number": appt.AppointmentNumber,
		"doctor_id":          appt.DoctorID.String(),
		"patient_id":         appt.PatientID.String(),
		"consultation_type":  string(appt.ConsultationType),
		"receipt":            appt.AppointmentNumber,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("payment order creation failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	now := s.now()
	orderID := order.ID
	p := &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Method:        MethodOnline,
		Status:        PaymentRecordPending,
		Amount:        appt.Cost.TotalAmount,
		Currency:      appt.Cost.Currency,
		OrderID:       &orderID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment order: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventPaymentInitiated, map[string]any{"order_id": order.ID, "amount": order.Amount})
	s.publish(ctx, appt, realtime.EventPaymentInitiated)
	return &order, nil
}

func (s *Service) recordOfflinePayment(ctx context.Context, appt *Appointment) error {
	now := s.now()
	receipt := fmt.Sprintf("RCPT-%s-%s", now.In(s.cfg.Location).Format("20060102"), appt.ID.String()[:8])
	p := &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Method:        MethodOffline,
		Status:        PaymentRecordPending,
		Amount:        appt.Cost.TotalAmount,
		Currency:      appt.Cost.Currency,
		ReceiptNumber: &receipt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.repo.CreatePayment(ctx, p)
}

// insert stores appt under a fresh id and appointment number, drawing a new
// pair when the number is already taken that day.
func (s *Service) insert(ctx context.Context, appt *Appointment, now time.Time) error {
	day := now.In(s.cfg.Location)
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		appt.ID = uuid.New()
		appt.AppointmentNumber = appointmentNumber(appt.ID, day)
		err = s.repo.CreateAppointment(ctx, appt, now)
		if !errors.Is(err, ErrDuplicateNumber) {
			return err
		}
		s.logger.Warn().Str("appointment_number", appt.AppointmentNumber).Msg("appointment number collision, retrying")
	}
	return err
}

// appointmentNumber renders APT-YYYYMMDD-NNNNNN from the booking day and id.
func appointmentNumber(id uuid.UUID, day time.Time) string {
	n := binary.BigEndian.Uint32(id[:4]) % 1000000
	return fmt.Sprintf("APT-%s-%06d", day.Format("20060102"), n)
}

func (s *Service) releaseLock(ctx context.Context, appt *Appointment) {
	if _, err := s.locker.ReleaseHeld(ctx, appt.SlotKey(), appt.PatientID); err != nil {
		s.logger.Warn().Err(err).Str("slot", appt.SlotKey().String()).Msg("failed to release slot lock")
	}
}

func (s *Service) publish(ctx context.Context, appt *Appointment, eventType string) {
	ev := realtime.Event{
		Type: eventType,
		Data: map[string]any{
			"appointment_id": appt.ID.String(),
			"doctor_id":      appt.DoctorID.String(),
			"scheduled_date": appt.ScheduledDate,
			"start_time":     appt.StartTime,
			"status":         appt.Status,
			"payment_status": appt.PaymentStatus,
		},
		Timestamp: s.now(),
	}
	for _, ch := range []string{realtime.DoctorChannel(appt.DoctorID), realtime.AppointmentChannel(appt.ID)} {
		if err := s.notifier.Notify(ctx, ch, ev); err != nil {
			s.logger.Warn().Err(err).Str("channel", ch).Str("event", eventType).Msg("realtime notification failed")
		}
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
