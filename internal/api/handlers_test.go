package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type fakeScheduler struct {
	hours        *appointment.EffectiveSchedule
	availability *appointment.Availability
	booking      *appointment.BookingResult
	list         []appointment.Appointment
	appt         *appointment.Appointment
	transition   *appointment.TransitionResult
	err          error

	gotCreate     appointment.CreateRequest
	gotQuery      appointment.AvailabilityQuery
	gotFilter     appointment.ListFilter
	gotTransition appointment.TransitionRequest
	gotFees       []appointment.Fee
	gotClinic     *uuid.UUID
}

func (f *fakeScheduler) EffectiveHours(_ context.Context, _ uuid.UUID, clinicID *uuid.UUID) (*appointment.EffectiveSchedule, error) {
	f.gotClinic = clinicID
	return f.hours, f.err
}

func (f *fakeScheduler) Availability(_ context.Context, q appointment.AvailabilityQuery) (*appointment.Availability, error) {
	f.gotQuery = q
	return f.availability, f.err
}

func (f *fakeScheduler) CreateAppointment(_ context.Context, req appointment.CreateRequest) (*appointment.BookingResult, error) {
	f.gotCreate = req
	return f.booking, f.err
}

func (f *fakeScheduler) ListAppointments(_ context.Context, filter appointment.ListFilter) ([]appointment.Appointment, error) {
	f.gotFilter = filter
	return f.list, f.err
}

func (f *fakeScheduler) TodayQueue(_ context.Context, _ uuid.UUID, clinicID *uuid.UUID) ([]appointment.Appointment, error) {
	f.gotClinic = clinicID
	return f.list, f.err
}

func (f *fakeScheduler) GetAppointment(_ context.Context, _, _ uuid.UUID) (*appointment.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeScheduler) Transition(_ context.Context, _, _ uuid.UUID, req appointment.TransitionRequest) (*appointment.TransitionResult, error) {
	f.gotTransition = req
	return f.transition, f.err
}

func (f *fakeScheduler) AddFees(_ context.Context, _, _ uuid.UUID, fees []appointment.Fee) (*appointment.TransitionResult, error) {
	f.gotFees = fees
	return f.transition, f.err
}

var fixedNow = time.Date(2026, 10, 15, 9, 15, 0, 0, time.UTC)

func newTestRouter(svc Scheduler) http.Handler {
	return NewRouter(RouterConfig{
		Service:  svc,
		Health:   NewHealthHandler(func(context.Context) error { return nil }, nil, "test", "v0"),
		Logger:   zap.NewNop(),
		Gatherer: prometheus.NewRegistry(),
		Now:      func() time.Time { return fixedNow },
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleAppointment(doctorID uuid.UUID) *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Time:      "09:30",
		Patient:   appointment.Patient{ID: "p-1", Name: "Mona", Phone: "+201001234567"},
		Status:    appointment.StatusPending,
		BasePrice: decimal.NewFromInt(100),
		ExtraFees: []appointment.Fee{{Description: "x-ray", Amount: decimal.NewFromInt(15)}},
	}
}

func TestAvailabilityHandler(t *testing.T) {
	doctorID, clinicID := uuid.New(), uuid.New()
	svc := &fakeScheduler{availability: &appointment.Availability{
		DoctorID: doctorID,
		ClinicID: &clinicID,
		Date:     time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Source:   appointment.HoursSourceClinic,
		Slots:    []string{"09:00", "09:30"},
	}}

	rec := do(t, newTestRouter(svc), http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?date=2026-10-16&clinic_id=%s", doctorID, clinicID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[AvailabilityResponse](t, rec)
	assert.Equal(t, []string{"09:00", "09:30"}, resp.Slots)
	assert.Equal(t, "2026-10-16", resp.Date)
	assert.Equal(t, "clinic", resp.Source)

	assert.Equal(t, doctorID, svc.gotQuery.DoctorID)
	require.NotNil(t, svc.gotQuery.ClinicID)
	assert.Equal(t, clinicID, *svc.gotQuery.ClinicID)
}

func TestAvailabilityHandlerBadInput(t *testing.T) {
	router := newTestRouter(&fakeScheduler{})
	doctorID := uuid.New()

	tests := []struct {
		name string
		path string
		code string
	}{
		{"bad doctor", "/doctors/nope/availability?date=2026-10-16", "invalid_doctor_id"},
		{"missing date", fmt.Sprintf("/doctors/%s/availability", doctorID), "invalid_date"},
		{"bad date", fmt.Sprintf("/doctors/%s/availability?date=16/10/2026", doctorID), "invalid_date"},
		{"bad clinic", fmt.Sprintf("/doctors/%s/availability?date=2026-10-16&clinic_id=x", doctorID), "invalid_clinic_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestHoursHandler(t *testing.T) {
	doctorID := uuid.New()
	hours, err := schedule.NormalizeJSON([]byte(`{"monday":"09:00-12:00"}`))
	require.NoError(t, err)
	svc := &fakeScheduler{hours: &appointment.EffectiveSchedule{DoctorID: doctorID, Source: appointment.HoursSourceDoctor, Hours: hours}}

	rec := do(t, newTestRouter(svc), http.MethodGet, fmt.Sprintf("/doctors/%s/hours", doctorID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "doctor", body["source"])
	days := body["hours"].(map[string]any)
	assert.Len(t, days, 7)
	assert.Empty(t, days["sunday"])
	assert.NotEmpty(t, days["monday"])
	assert.Nil(t, svc.gotClinic)
}

func TestCreateAppointmentHandler(t *testing.T) {
	doctorID := uuid.New()
	appt := sampleAppointment(doctorID)
	svc := &fakeScheduler{booking: &appointment.BookingResult{Appointment: appt}}

	body := `{"date":"2026-10-16","time":"09:30","patient":{"id":"p-1","name":"Mona","phone":"+201001234567"},"language":"ar"}`
	rec := do(t, newTestRouter(svc), http.MethodPost, fmt.Sprintf("/doctors/%s/appointments", doctorID), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[MutationResponse](t, rec)
	assert.Equal(t, appt.ID, resp.Appointment.ID)
	assert.Equal(t, "pending", resp.Appointment.Status)
	assert.True(t, resp.Appointment.Total.Equal(decimal.NewFromInt(115)))
	assert.Empty(t, resp.Warning)

	assert.Equal(t, doctorID, svc.gotCreate.DoctorID)
	assert.Nil(t, svc.gotCreate.ClinicID)
	assert.Equal(t, "09:30", svc.gotCreate.Time)
	assert.Equal(t, "Mona", svc.gotCreate.Patient.Name)
	assert.Equal(t, "ar", svc.gotCreate.Language)
	assert.False(t, svc.gotCreate.ByStaff)
}

func TestCreateAppointmentHandlerWarning(t *testing.T) {
	doctorID := uuid.New()
	svc := &fakeScheduler{booking: &appointment.BookingResult{
		Appointment: sampleAppointment(doctorID),
		Warning:     appointment.ErrNotificationDeliveryFailed,
	}}

	rec := do(t, newTestRouter(svc), http.MethodPost, fmt.Sprintf("/doctors/%s/appointments", doctorID),
		`{"date":"2026-10-16","time":"09:30","patient":{"name":"Mona"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decodeBody[MutationResponse](t, rec).Warning)
}

func TestCreateAppointmentHandlerErrors(t *testing.T) {
	doctorID := uuid.New()
	path := fmt.Sprintf("/doctors/%s/appointments", doctorID)
	valid := `{"date":"2026-10-16","time":"09:30","patient":{"name":"Mona"}}`

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"taken", valid, appointment.ErrSlotNoLongerAvailable, http.StatusConflict, "slot_no_longer_available"},
		{"locked", valid, appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{"not offered", valid, fmt.Errorf("%w: 2026-10-16 09:30", appointment.ErrSlotNotOffered), http.StatusBadRequest, "slot_not_offered"},
		{"unknown doctor", valid, appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"foreign clinic", valid, appointment.ErrClinicNotFound, http.StatusNotFound, "clinic_not_found"},
		{"store down", valid, errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
		{"bad json", `{"date":`, nil, http.StatusBadRequest, "invalid_request_body"},
		{"missing time", `{"date":"2026-10-16","patient":{"name":"Mona"}}`, nil, http.StatusBadRequest, "invalid_time"},
		{"bad clinic", `{"clinic_id":"x","date":"2026-10-16","time":"09:30"}`, nil, http.StatusBadRequest, "invalid_clinic_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&fakeScheduler{err: tt.err}), http.MethodPost, path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotContains(t, resp.Details, "connection refused")
		})
	}
}

func TestListAppointmentsHandler(t *testing.T) {
	doctorID := uuid.New()
	appt := sampleAppointment(doctorID)
	appt.QueueNumber = 1
	svc := &fakeScheduler{list: []appointment.Appointment{*appt}}
	router := newTestRouter(svc)

	rec := do(t, router, http.MethodGet, fmt.Sprintf("/doctors/%s/appointments?date=2026-10-16", doctorID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AppointmentListResponse](t, rec)
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, 1, resp.Appointments[0].QueueNumber)
	assert.True(t, svc.gotFilter.AnyClinic)
	assert.Equal(t, "2026-10-16", svc.gotFilter.Date.Format(appointment.DateLayout))

	clinicID := uuid.New()
	rec = do(t, router, http.MethodGet, fmt.Sprintf("/doctors/%s/appointments?clinic_id=%s", doctorID, clinicID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.gotFilter.AnyClinic)
	assert.Equal(t, "2026-10-15", decodeBody[AppointmentListResponse](t, rec).Date)
}

func TestTodayQueueHandler(t *testing.T) {
	doctorID := uuid.New()
	svc := &fakeScheduler{list: []appointment.Appointment{}}

	rec := do(t, newTestRouter(svc), http.MethodGet, fmt.Sprintf("/doctors/%s/appointments/today", doctorID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[AppointmentListResponse](t, rec)
	assert.Equal(t, "2026-10-15", resp.Date)
	assert.NotNil(t, resp.Appointments)
	assert.Nil(t, svc.gotClinic)
}

func TestGetAppointmentHandler(t *testing.T) {
	doctorID := uuid.New()
	appt := sampleAppointment(doctorID)

	rec := do(t, newTestRouter(&fakeScheduler{appt: appt}), http.MethodGet,
		fmt.Sprintf("/doctors/%s/appointments/%s", doctorID, appt.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, "2026-10-16", resp.Date)
	require.Len(t, resp.ExtraFees, 1)

	rec = do(t, newTestRouter(&fakeScheduler{err: appointment.ErrAppointmentNotFound}), http.MethodGet,
		fmt.Sprintf("/doctors/%s/appointments/%s", doctorID, uuid.New()), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, newTestRouter(&fakeScheduler{}), http.MethodGet,
		fmt.Sprintf("/doctors/%s/appointments/not-a-uuid", doctorID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionHandler(t *testing.T) {
	doctorID := uuid.New()
	appt := sampleAppointment(doctorID)
	appt.Status = appointment.StatusCompleted
	svc := &fakeScheduler{transition: &appointment.TransitionResult{Appointment: appt, Changed: true}}

	rec := do(t, newTestRouter(svc), http.MethodPost,
		fmt.Sprintf("/doctors/%s/appointments/%s/transitions", doctorID, appt.ID),
		`{"status":"Completed","fees":[{"description":"x-ray","amount":"15"}],"language":"en"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[MutationResponse](t, rec)
	require.NotNil(t, resp.Changed)
	assert.True(t, *resp.Changed)
	assert.Equal(t, "completed", resp.Appointment.Status)

	assert.Equal(t, appointment.StatusCompleted, svc.gotTransition.Status)
	require.Len(t, svc.gotTransition.Fees, 1)
	assert.True(t, svc.gotTransition.Fees[0].Amount.Equal(decimal.NewFromInt(15)))
}

func TestTransitionHandlerErrors(t *testing.T) {
	doctorID, id := uuid.New(), uuid.New()
	path := fmt.Sprintf("/doctors/%s/appointments/%s/transitions", doctorID, id)

	rec := do(t, newTestRouter(&fakeScheduler{}), http.MethodPost, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newTestRouter(&fakeScheduler{err: fmt.Errorf("%w: cannot move from completed to pending", appointment.ErrInvalidTransition)}),
		http.MethodPost, path, `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "completed")
}

func TestAddFeesHandler(t *testing.T) {
	doctorID := uuid.New()
	appt := sampleAppointment(doctorID)
	svc := &fakeScheduler{transition: &appointment.TransitionResult{Appointment: appt}}
	path := fmt.Sprintf("/doctors/%s/appointments/%s/fees", doctorID, appt.ID)

	rec := do(t, newTestRouter(svc), http.MethodPost, path, `{"fees":[{"description":"lab","amount":30.5}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.gotFees, 1)
	assert.Equal(t, "30.5", svc.gotFees[0].Amount.String())

	resp := decodeBody[MutationResponse](t, rec)
	require.NotNil(t, resp.Changed)
	assert.False(t, *resp.Changed)

	rec = do(t, newTestRouter(&fakeScheduler{err: appointment.ErrInvalidFee}), http.MethodPost, path, `{"fees":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(&fakeScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(t, router, http.MethodGet, "/health/live", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(&fakeScheduler{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(RouterConfig{
		Service:        &fakeScheduler{},
		AllowedOrigins: []string{"https://reception.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/doctors/"+uuid.NewString()+"/appointments", nil)
	req.Header.Set("Origin", "https://reception.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://reception.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
