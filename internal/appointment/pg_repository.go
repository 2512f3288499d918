package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

const (
	slotHolderIndex   = "appointments_slot_holder_uq"
	appointmentNumKey = "appointments_appointment_number_key"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentSelect = `
	SELECT a.id, a.appointment_number, a.patient_id, COALESCE(p.name, ''), a.doctor_id, a.hospital_id,
	       a.scheduled_date, a.start_time, a.end_time, a.consultation_type, a.payment_method,
	       a.status, a.payment_status, a.consultation_fee, a.convenience_fee, a.total_amount, a.currency,
	       a.holds_slot, a.hold_expires_at, a.patient_notes, a.doctor_notes, a.cancellation_reason,
	       a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id`

// occupiesSlot mirrors Appointment.OccupiesSlot; $N placeholders are bound to now.
const occupiesSlot = `
	a.holds_slot AND NOT (
		a.status = 'pending' AND a.payment_status <> 'paid'
		AND a.hold_expires_at IS NOT NULL AND a.hold_expires_at <= %s
	)`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.HospitalID,
		&d.Specialization,
		&d.OnlineFee,
		&d.InPersonFee,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a    Appointment
		date time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.AppointmentNumber,
		&a.PatientID,
		&a.PatientName,
		&a.DoctorID,
		&a.HospitalID,
		&date,
		&a.StartTime,
		&a.EndTime,
		&a.ConsultationType,
		&a.PaymentMethod,
		&a.Status,
		&a.PaymentStatus,
		&a.Cost.ConsultationFee,
		&a.Cost.ConvenienceFee,
		&a.Cost.TotalAmount,
		&a.Cost.Currency,
		&a.HoldsSlot,
		&a.HoldExpiresAt,
		&a.PatientNotes,
		&a.DoctorNotes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledDate = schedule.FormatDate(date)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Method,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&p.OrderID,
		&p.GatewayPaymentID,
		&p.ReceiptNumber,
		&p.RefundID,
		&p.CollectedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func dateParam(s string) (time.Time, error) {
	d, err := schedule.ParseDate(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return d, nil
}

func insertChange(ctx context.Context, q querier, appointmentID uuid.UUID, c StatusChange) error {
	_, err := q.Exec(ctx, `
		INSERT INTO appointment_status_history
			(appointment_id, status, payment_status, actor_id, source, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, appointmentID, string(c.Status), string(c.PaymentStatus), c.ActorID, string(c.Source), c.Note, c.At)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func loadHistory(ctx context.Context, q querier, appointmentID uuid.UUID) ([]StatusChange, error) {
	rows, err := q.Query(ctx, `
		SELECT status, payment_status, actor_id, source, COALESCE(note, ''), created_at
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []StatusChange{}
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.Status, &c.PaymentStatus, &c.ActorID, &c.Source, &c.Note, &c.At); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

// releaseLapsed drops the hold of lapsed pending appointments on key, other
// than self, recording a system history entry for each.
func releaseLapsed(ctx context.Context, q querier, key schedule.SlotKey, self uuid.UUID, now time.Time) error {
	date, err := dateParam(key.Date)
	if err != nil {
		return err
	}

	rows, err := q.Query(ctx, `
		UPDATE appointments a
		SET holds_slot = false, updated_at = $5
		WHERE a.doctor_id = $1 AND a.scheduled_date = $2 AND a.start_time = $3 AND a.id <> $4
		  AND a.holds_slot AND a.status = 'pending' AND a.payment_status <> 'paid'
		  AND a.hold_expires_at IS NOT NULL AND a.hold_expires_at <= $5
		RETURNING a.id, a.status, a.payment_status
	`, key.DoctorID, date, key.StartTime, self, now)
	if err != nil {
		return fmt.Errorf("release lapsed holds: %w", err)
	}

	type released struct {
		id uuid.UUID
		a  Appointment
	}
	var list []released
	for rows.Next() {
		var r released
		if err := rows.Scan(&r.id, &r.a.Status, &r.a.PaymentStatus); err != nil {
			rows.Close()
			return err
		}
		list = append(list, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range list {
		if err := insertChange(ctx, q, r.id, lapsedChange(&r.a, now)); err != nil {
			return err
		}
	}
	return nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, hospital_id, specialization, online_fee, in_person_fee, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment, now time.Time) error {
	date, err := dateParam(a.ScheduledDate)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if a.HoldsSlot {
		if err := releaseLapsed(ctx, tx, a.SlotKey(), a.ID, now); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, appointment_number, patient_id, doctor_id, hospital_id,
			scheduled_date, start_time, end_time, consultation_type, payment_method,
			status, payment_status, consultation_fee, convenience_fee, total_amount, currency,
			holds_slot, hold_expires_at, patient_notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $20
		)
	`,
		a.ID, a.AppointmentNumber, a.PatientID, a.DoctorID, a.HospitalID,
		date, a.StartTime, a.EndTime, string(a.ConsultationType), string(a.PaymentMethod),
		string(a.Status), string(a.PaymentStatus), a.Cost.ConsultationFee, a.Cost.ConvenienceFee, a.Cost.TotalAmount, a.Cost.Currency,
		a.HoldsSlot, a.HoldExpiresAt, a.PatientNotes, a.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, slotHolderIndex) {
			return ErrSlotConflict
		}
		if db.IsUniqueViolation(err, appointmentNumKey) {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	for _, c := range a.StatusHistory {
		if err := insertChange(ctx, tx, a.ID, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err, slotHolderIndex) {
			return ErrSlotConflict
		}
		return fmt.Errorf("commit appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) getAppointment(ctx context.Context, q querier, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, err
	}
	a.StatusHistory, err = loadHistory(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getAppointment(ctx, r.pool, id)
}

func optString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		current AppointmentStatus
		holds   bool
		key     schedule.SlotKey
		date    time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT status, holds_slot, doctor_id, scheduled_date, start_time
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current, &holds, &key.DoctorID, &date, &key.StartTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("lock appointment: %w", err)
	}
	key.Date = schedule.FormatDate(date)

	if !u.allows(current) {
		return nil, ErrStatusConflict
	}
	if u.HoldsSlot != nil && *u.HoldsSlot && !holds {
		if err := releaseLapsed(ctx, tx, key, id, u.Change.At); err != nil {
			return nil, err
		}
	}

	var to *string
	if u.To != "" {
		s := string(u.To)
		to = &s
	}

	change := u.Change
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = COALESCE($2, status),
		    payment_status = COALESCE($3, payment_status),
		    holds_slot = COALESCE($4, holds_slot),
		    hold_expires_at = CASE WHEN $5 THEN $6 ELSE hold_expires_at END,
		    doctor_notes = COALESCE($7, doctor_notes),
		    cancellation_reason = COALESCE($8, cancellation_reason),
		    updated_at = $9
		WHERE id = $1
		RETURNING status, payment_status
	`, id, to, optString(u.PaymentStatus), u.HoldsSlot, u.SetHoldExpiry, u.HoldExpiresAt,
		u.DoctorNotes, u.CancellationReason, change.At,
	).Scan(&change.Status, &change.PaymentStatus)
	if err != nil {
		if db.IsUniqueViolation(err, slotHolderIndex) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if err := insertChange(ctx, tx, id, change); err != nil {
		return nil, err
	}

	updated, err := r.getAppointment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListSlotHolders(ctx context.Context, doctorID uuid.UUID, date string, now time.Time) ([]Appointment, error) {
	d, err := dateParam(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE a.doctor_id = $1 AND a.scheduled_date = $2 AND `+fmt.Sprintf(occupiesSlot, "$3")+`
		ORDER BY a.start_time
	`, doctorID, d, now)
	if err != nil {
		return nil, fmt.Errorf("list slot holders: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) SlotHeld(ctx context.Context, key schedule.SlotKey, now time.Time) (bool, error) {
	d, err := dateParam(key.Date)
	if err != nil {
		return false, err
	}
	var held bool
	err = r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.doctor_id = $1 AND a.scheduled_date = $2 AND a.start_time = $3 AND `+fmt.Sprintf(occupiesSlot, "$4")+`
		)
	`, key.DoctorID, d, key.StartTime, now).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("check slot holder: %w", err)
	}
	return held, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE a.patient_id = $1
		ORDER BY a.scheduled_date DESC, a.start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if date == "" {
		rows, err = r.pool.Query(ctx, appointmentSelect+`
			WHERE a.doctor_id = $1
			ORDER BY a.scheduled_date, a.start_time
		`, doctorID)
	} else {
		d, derr := dateParam(date)
		if derr != nil {
			return nil, derr
		}
		rows, err = r.pool.Query(ctx, appointmentSelect+`
			WHERE a.doctor_id = $1 AND a.scheduled_date = $2
			ORDER BY a.start_time
		`, doctorID, d)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindLapsedHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE a.holds_slot
		  AND a.status = 'pending'
		  AND a.payment_status <> 'paid'
		  AND a.hold_expires_at IS NOT NULL
		  AND a.hold_expires_at <= $1
		ORDER BY a.hold_expires_at
		LIMIT 500
	`, now)
	if err != nil {
		return nil, fmt.Errorf("find lapsed holds: %w", err)
	}
	return scanAppointments(rows)
}

const paymentSelect = `
	SELECT id, appointment_id, method, status, amount, currency, order_id,
	       gateway_payment_id, receipt_number, refund_id, collected_by, created_at, updated_at
	FROM payments`

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (
			id, appointment_id, method, status, amount, currency, order_id,
			gateway_payment_id, receipt_number, refund_id, collected_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.AppointmentID, string(p.Method), string(p.Status), p.Amount, p.Currency, p.OrderID,
		p.GatewayPaymentID, p.ReceiptNumber, p.RefundID, p.CollectedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentSelect+` WHERE order_id = $1`, orderID))
}

func (r *PgRepository) GetLatestPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentSelect+`
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID))
}

func (r *PgRepository) UpdatePayment(ctx context.Context, p *Payment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_payment_id = $3,
		    refund_id = $4,
		    collected_by = $5,
		    updated_at = $6
		WHERE id = $1
	`, p.ID, string(p.Status), p.GatewayPaymentID, p.RefundID, p.CollectedBy, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
