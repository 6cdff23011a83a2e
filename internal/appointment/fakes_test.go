package appointment

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memRepo is an in-memory Repository. Its insert enforces the same
// live-slot uniqueness as the partial unique index.
type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	order  []uuid.UUID
	events []EventLog
	seq    int
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	c.ExtraFees = slices.Clone(a.ExtraFees)
	if a.ClinicID != nil {
		id := *a.ClinicID
		c.ClinicID = &id
	}
	return &c
}

func (r *memRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appts {
		if existing.Status == StatusCancelled {
			continue
		}
		if existing.DoctorID == a.DoctorID && sameClinic(existing.ClinicID, a.ClinicID) &&
			existing.Date.Equal(a.Date) && existing.Time == a.Time {
			return nil, ErrSlotNoLongerAvailable
		}
	}

	r.seq++
	stored := cloneAppointment(a)
	stored.CreatedAt = time.Date(2026, 10, 1, 0, 0, r.seq, 0, time.UTC)
	stored.UpdatedAt = stored.CreatedAt
	if stored.ExtraFees == nil {
		stored.ExtraFees = []Fee{}
	}
	r.appts[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	return cloneAppointment(stored), nil
}

func (r *memRepo) ListByDoctorDate(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, id := range r.order {
		a := r.appts[id]
		if a.DoctorID != f.DoctorID || !a.Date.Equal(f.Date) {
			continue
		}
		if !f.AnyClinic && !sameClinic(a.ClinicID, f.ClinicID) {
			continue
		}
		out = append(out, *cloneAppointment(a))
	}
	return out, nil
}

func (r *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *memRepo) ApplyTransition(_ context.Context, id uuid.UUID, from Status, u Update) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = u.Status
	a.ExtraFees = append(a.ExtraFees, u.Fees...)
	if a.BasePrice.IsZero() && u.BackfillPrice != nil {
		a.BasePrice = *u.BackfillPrice
	}
	r.seq++
	a.UpdatedAt = time.Date(2026, 10, 1, 0, 0, r.seq, 0, time.UTC)
	return cloneAppointment(a), nil
}

func (r *memRepo) FindStalePending(_ context.Context, before time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, id := range r.order {
		a := r.appts[id]
		if a.Status == StatusPending && a.Date.Before(before) && len(out) < limit {
			out = append(out, *cloneAppointment(a))
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// put stores an appointment as-is, bypassing the uniqueness check.
func (r *memRepo) put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[a.ID] = cloneAppointment(&a)
	r.order = append(r.order, a.ID)
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

type clinicRecord struct {
	doctorID uuid.UUID
	hours    []byte
}

type fakeDirectory struct {
	mu      sync.Mutex
	doctors map[uuid.UUID][]byte
	prices  map[uuid.UUID]decimal.Decimal
	clinics map[uuid.UUID]clinicRecord
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors: make(map[uuid.UUID][]byte),
		prices:  make(map[uuid.UUID]decimal.Decimal),
		clinics: make(map[uuid.UUID]clinicRecord),
	}
}

func (d *fakeDirectory) DoctorHours(_ context.Context, doctorID uuid.UUID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, ok := d.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return raw, nil
}

func (d *fakeDirectory) ClinicHours(_ context.Context, doctorID, clinicID uuid.UUID) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clinics[clinicID]
	if !ok || c.doctorID != doctorID {
		return nil, false, ErrClinicNotFound
	}
	if c.hours == nil {
		return nil, false, nil
	}
	return c.hours, true, nil
}

func (d *fakeDirectory) DoctorBasePrice(_ context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.doctors[doctorID]; !ok {
		return decimal.Zero, ErrDoctorNotFound
	}
	return d.prices[doctorID], nil
}

func (d *fakeDirectory) setPrice(doctorID uuid.UUID, price int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prices[doctorID] = decimal.NewFromInt(price)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) messages() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

var errChannelDown = errors.New("channel down")
