package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgTemplateRepository stores templates as one jsonb document per doctor.
type PgTemplateRepository struct {
	pool *pgxpool.Pool
}

func NewPgTemplateRepository(pool *pgxpool.Pool) *PgTemplateRepository {
	return &PgTemplateRepository{pool: pool}
}

// templateDoc is the stored jsonb shape; doctor id and timestamp live in
// their own columns.
type templateDoc struct {
	WorkingDays         [7]WorkingDay `json:"working_days"`
	SlotDurationMinutes int           `json:"slot_duration_minutes"`
	BookingPolicy       BookingPolicy `json:"booking_policy"`
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var (
		t   Template
		raw []byte
	)
	if err := row.Scan(&t.DoctorID, &raw, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateMissing
		}
		return nil, err
	}

	var doc templateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode template for doctor %s: %w", t.DoctorID, err)
	}
	t.WorkingDays = doc.WorkingDays
	t.SlotDurationMinutes = doc.SlotDurationMinutes
	t.BookingPolicy = doc.BookingPolicy
	return &t, nil
}

func encodeTemplate(t Template) ([]byte, error) {
	return json.Marshal(templateDoc{
		WorkingDays:         t.WorkingDays,
		SlotDurationMinutes: t.SlotDurationMinutes,
		BookingPolicy:       t.BookingPolicy,
	})
}

func (r *PgTemplateRepository) GetTemplate(ctx context.Context, doctorID uuid.UUID) (*Template, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, template, updated_at
		FROM availability_templates
		WHERE doctor_id = $1
	`, doctorID)

	return scanTemplate(row)
}

func (r *PgTemplateRepository) CreateTemplateIfMissing(ctx context.Context, t Template) (*Template, error) {
	doc, err := encodeTemplate(t)
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO availability_templates (doctor_id, template, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id) DO NOTHING
	`, t.DoctorID, doc, time.Now())
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}

	return r.GetTemplate(ctx, t.DoctorID)
}

func (r *PgTemplateRepository) SaveTemplate(ctx context.Context, t Template) (*Template, error) {
	doc, err := encodeTemplate(t)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_templates (doctor_id, template, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id) DO UPDATE
		SET template = EXCLUDED.template, updated_at = EXCLUDED.updated_at
		RETURNING doctor_id, template, updated_at
	`, t.DoctorID, doc, t.UpdatedAt)

	return scanTemplate(row)
}
