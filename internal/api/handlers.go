package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

type handlers struct {
	svc Scheduler
	log *zap.Logger
	now func() time.Time
}

func (h *handlers) hours(w http.ResponseWriter, r *http.Request) {
	doctorID, clinicID, ok := parseScope(w, r)
	if !ok {
		return
	}

	eff, err := h.svc.EffectiveHours(r.Context(), doctorID, clinicID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HoursResponse{
		DoctorID: eff.DoctorID,
		ClinicID: eff.ClinicID,
		Source:   eff.Source,
		Hours:    eff.Hours,
	})
}

func (h *handlers) availability(w http.ResponseWriter, r *http.Request) {
	doctorID, clinicID, ok := parseScope(w, r)
	if !ok {
		return
	}
	date, ok := parseDateParam(w, r.URL.Query().Get("date"), true)
	if !ok {
		return
	}

	av, err := h.svc.Availability(r.Context(), appointment.AvailabilityQuery{
		DoctorID: doctorID,
		ClinicID: clinicID,
		Date:     date,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID: av.DoctorID,
		ClinicID: av.ClinicID,
		Date:     av.Date.Format(appointment.DateLayout),
		Source:   av.Source,
		Slots:    av.Slots,
	})
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	clinicID, ok := parseOptionalUUID(w, req.ClinicID, "invalid_clinic_id")
	if !ok {
		return
	}
	date, ok := parseDateParam(w, req.Date, true)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Time) == "" {
		writeError(w, http.StatusBadRequest, "invalid_time", "time is required, e.g. 09:30")
		return
	}

	res, err := h.svc.CreateAppointment(r.Context(), appointment.CreateRequest{
		DoctorID: doctorID,
		ClinicID: clinicID,
		Date:     date,
		Time:     req.Time,
		Patient: appointment.Patient{
			ID:    req.Patient.ID,
			Name:  req.Patient.Name,
			Phone: req.Patient.Phone,
		},
		ByStaff:  req.ByStaff,
		Language: req.Language,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, MutationResponse{
		Appointment: toAppointmentResponse(res.Appointment),
		Warning:     warningText(res.Warning),
	})
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, clinicID, ok := parseScope(w, r)
	if !ok {
		return
	}
	date, ok := parseDateParam(w, r.URL.Query().Get("date"), false)
	if !ok {
		return
	}
	if date.IsZero() {
		date = appointment.DateOf(h.now())
	}

	appts, err := h.svc.ListAppointments(r.Context(), appointment.ListFilter{
		DoctorID:  doctorID,
		Date:      date,
		ClinicID:  clinicID,
		AnyClinic: clinicID == nil,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentList(date, appts))
}

func (h *handlers) todayQueue(w http.ResponseWriter, r *http.Request) {
	doctorID, clinicID, ok := parseScope(w, r)
	if !ok {
		return
	}

	appts, err := h.svc.TodayQueue(r.Context(), doctorID, clinicID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentList(appointment.DateOf(h.now()), appts))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, id, ok := parseAppointmentPath(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), doctorID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) transition(w http.ResponseWriter, r *http.Request) {
	doctorID, id, ok := parseAppointmentPath(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_status", "status is required: pending, confirmed, completed or cancelled")
		return
	}

	res, err := h.svc.Transition(r.Context(), doctorID, id, appointment.TransitionRequest{
		Status:   appointment.Status(strings.ToLower(req.Status)),
		Fees:     toFees(req.Fees),
		Language: req.Language,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeMutation(w, res)
}

func (h *handlers) addFees(w http.ResponseWriter, r *http.Request) {
	doctorID, id, ok := parseAppointmentPath(w, r)
	if !ok {
		return
	}

	var req AddFeesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.AddFees(r.Context(), doctorID, id, toFees(req.Fees))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeMutation(w, res)
}

func writeMutation(w http.ResponseWriter, res *appointment.TransitionResult) {
	changed := res.Changed
	writeJSON(w, http.StatusOK, MutationResponse{
		Appointment: toAppointmentResponse(res.Appointment),
		Changed:     &changed,
		Warning:     warningText(res.Warning),
	})
}

func warningText(err error) string {
	if err == nil {
		return ""
	}
	return "saved, but the patient could not be notified"
}

// writeServiceError maps domain errors to HTTP responses. Unexpected errors
// are logged and answered with a generic message.
func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotNoLongerAvailable):
		writeError(w, http.StatusConflict, "slot_no_longer_available", "this time was just taken, please pick another slot")
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "someone is booking this time right now, please retry in a moment")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotNotOffered):
		writeError(w, http.StatusBadRequest, "slot_not_offered", "this time is not offered on that date, reload availability and pick a listed slot")
	case errors.Is(err, appointment.ErrInvalidFee),
		errors.Is(err, appointment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found for this doctor")
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
	case errors.Is(err, appointment.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", "clinic not found for this doctor")
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please try again")
	}
}

// Helpers

func parseScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, *uuid.UUID, bool) {
	doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return uuid.Nil, nil, false
	}
	clinicID, ok := parseOptionalUUID(w, r.URL.Query().Get("clinic_id"), "invalid_clinic_id")
	if !ok {
		return uuid.Nil, nil, false
	}
	return doctorID, clinicID, true
}

func parseAppointmentPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := parseUUIDParam(w, r, "id", "invalid_appointment_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, id, true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, raw, code string) (*uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "clinic_id must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func parseDateParam(w http.ResponseWriter, raw string, required bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required as YYYY-MM-DD")
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	date, err := time.Parse(appointment.DateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
