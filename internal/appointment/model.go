package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Patient struct {
	ID    string
	Name  string
	Phone string
}

// Fee is an extra charge appended to an appointment after creation.
type Fee struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  *uuid.UUID
	Date      time.Time // calendar date, midnight UTC
	Time      string    // HH:MM clinic-local
	Patient   Patient
	Status    Status
	BasePrice decimal.Decimal
	ExtraFees []Fee
	CreatedAt time.Time
	UpdatedAt time.Time

	// QueueNumber is only set on today's queue view; it is never stored.
	QueueNumber int
}

func (a *Appointment) Ledger() Ledger {
	return NewLedger(a.BasePrice, a.ExtraFees...)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Update is the single-row change applied by a transition.
type Update struct {
	Status        Status
	Fees          []Fee
	BackfillPrice *decimal.Decimal
}

// ListFilter selects a doctor's appointments on one date.
type ListFilter struct {
	DoctorID uuid.UUID
	Date     time.Time
	ClinicID *uuid.UUID
	// AnyClinic ignores ClinicID and returns every clinic's appointments.
	AnyClinic bool
}

// DateOf truncates t to its calendar date in t's own location, returned as
// midnight UTC so dates compare and persist without zone drift.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const DateLayout = "2006-01-02"

func sameClinic(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
