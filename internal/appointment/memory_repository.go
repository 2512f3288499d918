package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/schedule"
)

// MemoryRepository is an in-process Repository for the memory storage
// driver and tests. One mutex serialises every write, giving the same
// per-slot exclusivity the partial unique index gives in Postgres.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]*Appointment
	payments     []*Payment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) AddDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

// Events returns the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) copyOf(a *Appointment) *Appointment {
	out := *a
	out.StatusHistory = append([]StatusChange(nil), a.StatusHistory...)
	if p, ok := r.patients[a.PatientID]; ok {
		out.PatientName = p.Name
	}
	return &out
}

// claimLocked releases lapsed holds on key and reports whether another
// appointment still holds it.
func (r *MemoryRepository) claimLocked(key schedule.SlotKey, self uuid.UUID, now time.Time) bool {
	for _, a := range r.appointments {
		if a.ID == self || !a.HoldsSlot || a.SlotKey() != key {
			continue
		}
		if a.HoldLapsed(now) {
			a.HoldsSlot = false
			a.UpdatedAt = now
			a.StatusHistory = append(a.StatusHistory, lapsedChange(a, now))
			continue
		}
		return true
	}
	return false
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.appointments {
		if other.AppointmentNumber == a.AppointmentNumber {
			return ErrDuplicateNumber
		}
	}
	if a.HoldsSlot && r.claimLocked(a.SlotKey(), a.ID, now) {
		return ErrSlotConflict
	}
	stored := *a
	stored.StatusHistory = append([]StatusChange(nil), a.StatusHistory...)
	r.appointments[a.ID] = &stored
	return nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return r.copyOf(a), nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, u StatusUpdate) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !u.allows(a.Status) {
		return nil, ErrStatusConflict
	}
	if u.HoldsSlot != nil && *u.HoldsSlot && !a.HoldsSlot {
		if r.claimLocked(a.SlotKey(), a.ID, u.Change.At) {
			return nil, ErrSlotConflict
		}
	}

	if u.To != "" {
		a.Status = u.To
	}
	if u.PaymentStatus != nil {
		a.PaymentStatus = *u.PaymentStatus
	}
	if u.HoldsSlot != nil {
		a.HoldsSlot = *u.HoldsSlot
	}
	if u.SetHoldExpiry {
		a.HoldExpiresAt = u.HoldExpiresAt
	}
	if u.DoctorNotes != nil {
		a.DoctorNotes = u.DoctorNotes
	}
	if u.CancellationReason != nil {
		a.CancellationReason = u.CancellationReason
	}
	change := u.Change
	change.Status = a.Status
	change.PaymentStatus = a.PaymentStatus
	a.StatusHistory = append(a.StatusHistory, change)
	a.UpdatedAt = change.At

	return r.copyOf(a), nil
}

func (r *MemoryRepository) ListSlotHolders(_ context.Context, doctorID uuid.UUID, date string, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.ScheduledDate == date && a.OccupiesSlot(now) {
			out = append(out, *r.copyOf(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) SlotHeld(_ context.Context, key schedule.SlotKey, now time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.appointments {
		if a.SlotKey() == key && a.OccupiesSlot(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			all = append(all, *r.copyOf(a))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ScheduledDate != all[j].ScheduledDate {
			return all[i].ScheduledDate > all[j].ScheduledDate
		}
		return all[i].StartTime > all[j].StartTime
	})

	if offset >= len(all) {
		return []Appointment{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Appointment{}
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && (date == "" || a.ScheduledDate == date) {
			out = append(out, *r.copyOf(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) FindLapsedHolds(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.HoldsSlot && a.HoldLapsed(now) {
			out = append(out, *r.copyOf(a))
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreatePayment(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *p
	r.payments = append(r.payments, &stored)
	return nil
}

func (r *MemoryRepository) GetPaymentByOrderID(_ context.Context, orderID string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			out := *p
			return &out, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) GetLatestPayment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.payments) - 1; i >= 0; i-- {
		if r.payments[i].AppointmentID == appointmentID {
			out := *r.payments[i]
			return &out, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) UpdatePayment(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.payments {
		if existing.ID == p.ID {
			stored := *p
			r.payments[i] = &stored
			return nil
		}
	}
	return ErrPaymentNotFound
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func sortByStart(as []Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].ScheduledDate != as[j].ScheduledDate {
			return as[i].ScheduledDate < as[j].ScheduledDate
		}
		return as[i].StartTime < as[j].StartTime
	})
}

func lapsedChange(a *Appointment, now time.Time) StatusChange {
	return StatusChange{
		Status:        a.Status,
		PaymentStatus: a.PaymentStatus,
		Source:        SourceSystem,
		Note:          "payment window lapsed, slot released",
		At:            now,
	}
}
