package schedule

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	// GetTemplate returns ErrTemplateMissing when the doctor has none yet.
	GetTemplate(ctx context.Context, doctorID uuid.UUID) (*Template, error)
	// CreateTemplateIfMissing stores t unless a template exists and returns
	// whichever template is stored afterwards.
	CreateTemplateIfMissing(ctx context.Context, t Template) (*Template, error)
	SaveTemplate(ctx context.Context, t Template) (*Template, error)
}

// MemoryTemplateRepository keeps templates in process. Used by the memory
// storage driver and tests.
type MemoryTemplateRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]Template
}

func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{templates: make(map[uuid.UUID]Template)}
}

func (r *MemoryTemplateRepository) GetTemplate(_ context.Context, doctorID uuid.UUID) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[doctorID]
	if !ok {
		return nil, ErrTemplateMissing
	}
	return cloneTemplate(t), nil
}

func (r *MemoryTemplateRepository) CreateTemplateIfMissing(_ context.Context, t Template) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.templates[t.DoctorID]; ok {
		return cloneTemplate(existing), nil
	}
	r.templates[t.DoctorID] = *cloneTemplate(t)
	return cloneTemplate(t), nil
}

func (r *MemoryTemplateRepository) SaveTemplate(_ context.Context, t Template) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[t.DoctorID] = *cloneTemplate(t)
	return cloneTemplate(t), nil
}

func cloneTemplate(t Template) *Template {
	out := t
	for i := range out.WorkingDays {
		out.WorkingDays[i].Breaks = make([]Break, len(t.WorkingDays[i].Breaks))
		copy(out.WorkingDays[i].Breaks, t.WorkingDays[i].Breaks)
	}
	return &out
}
