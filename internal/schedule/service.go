package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/realtime"
)

type Service struct {
	repo     TemplateRepository
	notifier realtime.Notifier
	logger   *zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo TemplateRepository, notifier realtime.Notifier, loc *time.Location, logger *zerolog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// Template returns the doctor's template, creating the default one on first read.
func (s *Service) Template(ctx context.Context, doctorID uuid.UUID) (Template, error) {
	t, err := s.repo.GetTemplate(ctx, doctorID)
	if err == nil {
		return *t, nil
	}
	if !errors.Is(err, ErrTemplateMissing) {
		return Template{}, fmt.Errorf("load template: %w", err)
	}

	def := DefaultTemplate(doctorID)
	def.UpdatedAt = s.now()
	t, err = s.repo.CreateTemplateIfMissing(ctx, def)
	if err != nil {
		return Template{}, fmt.Errorf("create default template: %w", err)
	}
	return *t, nil
}

// Update replaces the doctor's template. Only the doctor may do so.
func (s *Service) Update(ctx context.Context, doctorID, actorID uuid.UUID, t Template) (Template, error) {
	if actorID != doctorID {
		return Template{}, ErrForbidden
	}
	t.DoctorID = doctorID
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	t.UpdatedAt = s.now()

	saved, err := s.repo.SaveTemplate(ctx, t)
	if err != nil {
		return Template{}, fmt.Errorf("save template: %w", err)
	}
	s.announce(ctx, doctorID)
	return *saved, nil
}

// Reset restores the default template.
func (s *Service) Reset(ctx context.Context, doctorID, actorID uuid.UUID) (Template, error) {
	return s.Update(ctx, doctorID, actorID, DefaultTemplate(doctorID))
}

// Slots derives the candidate slots for date ("YYYY-MM-DD").
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	d, err := ParseDate(date, s.loc)
	if err != nil {
		return nil, err
	}
	t, err := s.Template(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return Derive(t, d, s.now()), nil
}

func (s *Service) announce(ctx context.Context, doctorID uuid.UUID) {
	ev := realtime.Event{
		Type:      realtime.EventAvailabilityUpdated,
		Data:      map[string]string{"doctor_id": doctorID.String()},
		Timestamp: s.now(),
	}
	if err := s.notifier.Notify(ctx, realtime.DoctorChannel(doctorID), ev); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability notification failed")
	}
}
