package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrClinicNotFound      = errors.New("clinic not found")
)

// Repository contains all appointment store interactions needed by the service.
type Repository interface {
	// CreateAppointment inserts a fully built appointment. A live appointment
	// already holding the same slot surfaces as ErrSlotNoLongerAvailable.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	ListByDoctorDate(ctx context.Context, f ListFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ApplyTransition updates one row only while its status is still from.
	// A row that moved on in the meantime yields ErrInvalidTransition.
	ApplyTransition(ctx context.Context, id uuid.UUID, from Status, u Update) (*Appointment, error)

	// Sweeper
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ScheduleSource returns raw stored working hours. Normalization happens in
// the service, so any legacy payload is acceptable here.
type ScheduleSource interface {
	DoctorHours(ctx context.Context, doctorID uuid.UUID) ([]byte, error)
	// ClinicHours reports ok=false when the clinic carries no hours record.
	ClinicHours(ctx context.Context, doctorID, clinicID uuid.UUID) (raw []byte, ok bool, err error)
}

type PriceSource interface {
	DoctorBasePrice(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error)
}

// Notification is a rendered patient message handed to the delivery channel.
type Notification struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Phone         string    `json:"phone"`
	Language      string    `json:"language"`
	Status        Status    `json:"status"`
	Body          string    `json:"body"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
