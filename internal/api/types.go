package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type PatientPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type FeePayload struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreateAppointmentRequest struct {
	ClinicID string         `json:"clinic_id,omitempty"`
	Date     string         `json:"date"`
	Time     string         `json:"time"`
	Patient  PatientPayload `json:"patient"`
	ByStaff  bool           `json:"by_staff"`
	Language string         `json:"language,omitempty"`
}

type TransitionRequest struct {
	Status   string       `json:"status"`
	Fees     []FeePayload `json:"fees,omitempty"`
	Language string       `json:"language,omitempty"`
}

type AddFeesRequest struct {
	Fees []FeePayload `json:"fees"`
}

type AppointmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	DoctorID    uuid.UUID       `json:"doctor_id"`
	ClinicID    *uuid.UUID      `json:"clinic_id"`
	Date        string          `json:"date"`
	Time        string          `json:"time"`
	Patient     PatientPayload  `json:"patient"`
	Status      string          `json:"status"`
	BasePrice   decimal.Decimal `json:"base_price"`
	ExtraFees   []FeePayload    `json:"extra_fees"`
	Total       decimal.Decimal `json:"total"`
	QueueNumber int             `json:"queue_number,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MutationResponse wraps an appointment after a write. Warning is set when
// the write succeeded but the patient could not be notified.
type MutationResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Changed     *bool               `json:"changed,omitempty"`
	Warning     string              `json:"warning,omitempty"`
}

type AppointmentListResponse struct {
	Date         string                `json:"date"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID  `json:"doctor_id"`
	ClinicID *uuid.UUID `json:"clinic_id"`
	Date     string     `json:"date"`
	Source   string     `json:"source"`
	Slots    []string   `json:"slots"`
}

type HoursResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	ClinicID *uuid.UUID            `json:"clinic_id"`
	Source   string                `json:"source"`
	Hours    schedule.WorkingHours `json:"hours"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	fees := make([]FeePayload, 0, len(a.ExtraFees))
	for _, f := range a.ExtraFees {
		fees = append(fees, FeePayload{Description: f.Description, Amount: f.Amount})
	}
	return AppointmentResponse{
		ID:       a.ID,
		DoctorID: a.DoctorID,
		ClinicID: a.ClinicID,
		Date:     a.Date.Format(appointment.DateLayout),
		Time:     a.Time,
		Patient: PatientPayload{
			ID:    a.Patient.ID,
			Name:  a.Patient.Name,
			Phone: a.Patient.Phone,
		},
		Status:      string(a.Status),
		BasePrice:   a.BasePrice,
		ExtraFees:   fees,
		Total:       a.Ledger().Total(),
		QueueNumber: a.QueueNumber,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentList(date time.Time, appts []appointment.Appointment) AppointmentListResponse {
	out := AppointmentListResponse{
		Date:         date.Format(appointment.DateLayout),
		Appointments: make([]AppointmentResponse, 0, len(appts)),
	}
	for i := range appts {
		out.Appointments = append(out.Appointments, toAppointmentResponse(&appts[i]))
	}
	return out
}

func toFees(in []FeePayload) []appointment.Fee {
	if len(in) == 0 {
		return nil
	}
	out := make([]appointment.Fee, 0, len(in))
	for _, f := range in {
		out = append(out, appointment.Fee{Description: f.Description, Amount: f.Amount})
	}
	return out
}
