package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentFeesAdded     = "APPOINTMENT_FEES_ADDED"
	EventAppointmentStaleCanceled = "APPOINTMENT_STALE_CANCELLED"
)

const (
	HoursSourceClinic = "clinic"
	HoursSourceDoctor = "doctor"
)

var (
	ErrSlotNoLongerAvailable      = errors.New("slot is no longer available")
	ErrSlotNotOffered             = errors.New("slot is not offered on that date")
	ErrSlotBeingBooked            = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition          = errors.New("invalid status transition")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	ErrInvalidRequest             = errors.New("invalid request")
)

// Dependencies groups the collaborators of Service. Notifier and Locker are
// optional; without a locker bookings rely on the read-check-write guard and
// the store's unique index.
type Dependencies struct {
	Appointments Repository
	Schedules    ScheduleSource
	Prices       PriceSource
	Notifier     Notifier
	Locker       redisclient.Locker
	Metrics      *metrics.Scheduling
	Logger       *zap.Logger
}

type Service struct {
	repo      Repository
	schedules ScheduleSource
	prices    PriceSource
	notifier  Notifier
	locker    redisclient.Locker
	metrics   *metrics.Scheduling
	log       *zap.Logger
	cfg       config.Config

	now          func() time.Time
	retryBackoff func() backoff.BackOff
}

func NewService(deps Dependencies, cfg config.Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = schedule.DefaultGranularity
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.BookingRetryMax <= 0 {
		cfg.BookingRetryMax = 1
	}

	locker := deps.Locker
	if !cfg.LockEnabled {
		locker = nil
	}

	return &Service{
		repo:      deps.Appointments,
		schedules: deps.Schedules,
		prices:    deps.Prices,
		notifier:  deps.Notifier,
		locker:    locker,
		metrics:   deps.Metrics,
		log:       logger,
		cfg:       cfg,
		now:       cfg.Now,
		retryBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
}

// EffectiveSchedule is the normalized hours availability is computed from.
type EffectiveSchedule struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	Source   string
	Hours    schedule.WorkingHours
}

// EffectiveHours resolves clinic-scoped hours when a clinic is given and it
// has an hours record, and the doctor's own hours otherwise.
func (s *Service) EffectiveHours(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) (*EffectiveSchedule, error) {
	out := &EffectiveSchedule{DoctorID: doctorID, ClinicID: clinicID}

	if clinicID != nil {
		raw, ok, err := s.schedules.ClinicHours(ctx, doctorID, *clinicID)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Source = HoursSourceClinic
			out.Hours = s.normalize(raw, doctorID, clinicID)
			return out, nil
		}
	}

	raw, err := s.schedules.DoctorHours(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	out.Source = HoursSourceDoctor
	out.Hours = s.normalize(raw, doctorID, clinicID)
	return out, nil
}

// normalize treats stored hours that are not JSON at all as closed.
func (s *Service) normalize(raw []byte, doctorID uuid.UUID, clinicID *uuid.UUID) schedule.WorkingHours {
	hours, err := schedule.NormalizeJSON(raw)
	if err != nil {
		s.log.Warn("stored working hours are not valid JSON, treating as closed",
			zap.String("doctor_id", doctorID.String()),
			zap.Stringp("clinic_id", uuidString(clinicID)),
			zap.Error(err),
		)
		return schedule.WorkingHours{}
	}
	return hours
}

type AvailabilityQuery struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	Date     time.Time
}

type Availability struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	Date     time.Time
	Source   string
	Slots    []string
}

// Availability lists the still bookable slots of a date for one doctor and
// clinic selector. A closed day is an empty list, not an error.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAvailability(time.Since(start).Seconds()) }()

	date := DateOf(q.Date)
	eff, err := s.EffectiveHours(ctx, q.DoctorID, q.ClinicID)
	if err != nil {
		return nil, err
	}

	out := &Availability{
		DoctorID: q.DoctorID,
		ClinicID: q.ClinicID,
		Date:     date,
		Source:   eff.Source,
		Slots:    []string{},
	}
	if len(eff.Hours.Day(date.Weekday())) == 0 {
		return out, nil
	}

	booked, err := s.bookedTimes(ctx, q.DoctorID, q.ClinicID, date)
	if err != nil {
		return nil, err
	}
	out.Slots = OfferableSlots(eff.Hours, date, s.now(), s.cfg.Granularity, s.cfg.LeadTime, booked)
	return out, nil
}

func (s *Service) bookedTimes(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID, date time.Time) (map[string]struct{}, error) {
	appts, err := s.repo.ListByDoctorDate(ctx, ListFilter{DoctorID: doctorID, Date: date, ClinicID: clinicID})
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	return bookedSet(appts), nil
}

type CreateRequest struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	Date     time.Time
	Time     string
	Patient  Patient
	// ByStaff books directly as confirmed.
	ByStaff  bool
	Language string
}

type BookingResult struct {
	Appointment *Appointment
	// Warning carries ErrNotificationDeliveryFailed when the appointment was
	// stored but the patient could not be notified.
	Warning error
}

// CreateAppointment books a generated, still free slot. The booked set is
// re-read right before the insert, inside the slot lock when one is configured.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*BookingResult, error) {
	appt, err := s.createAppointment(ctx, req)
	s.metrics.ObserveBooking(bookingResult(err))
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"doctor_id": appt.DoctorID.String(),
		"clinic_id": uuidString(appt.ClinicID),
		"date":      appt.Date.Format(DateLayout),
		"time":      appt.Time,
		"status":    appt.Status,
	})

	return &BookingResult{
		Appointment: appt,
		Warning:     s.notify(ctx, appt, req.Language),
	}, nil
}

func (s *Service) createAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if strings.TrimSpace(req.Patient.Name) == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrInvalidRequest)
	}
	minute, err := schedule.ParseClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a time of day", ErrSlotNotOffered, req.Time)
	}
	slot := schedule.FormatClock(minute)
	date := DateOf(req.Date)

	eff, err := s.EffectiveHours(ctx, req.DoctorID, req.ClinicID)
	if err != nil {
		return nil, err
	}
	offered := OfferableSlots(eff.Hours, date, s.now(), s.cfg.Granularity, s.cfg.LeadTime, nil)
	if !slices.Contains(offered, slot) {
		return nil, fmt.Errorf("%w: %s %s", ErrSlotNotOffered, date.Format(DateLayout), slot)
	}

	price, err := s.prices.DoctorBasePrice(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load base price: %w", err)
	}

	candidate := &Appointment{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		ClinicID:  req.ClinicID,
		Date:      date,
		Time:      slot,
		Patient:   req.Patient,
		Status:    InitialStatus(req.ByStaff),
		BasePrice: price,
		ExtraFees: []Fee{},
	}

	var created *Appointment
	insert := func(ctx context.Context) error {
		booked, err := s.bookedTimes(ctx, req.DoctorID, req.ClinicID, date)
		if err != nil {
			return err
		}
		if _, taken := booked[slot]; taken {
			return ErrSlotNoLongerAvailable
		}
		created, err = s.repo.CreateAppointment(ctx, candidate)
		return err
	}

	if s.locker == nil {
		if err := insert(ctx); err != nil {
			return nil, err
		}
		return created, nil
	}

	key := SlotKey(req.DoctorID, req.ClinicID, date, slot)
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := s.locker.WithSlotLock(ctx, key, insert)
		if err != nil && !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(s.retryBackoff()), backoff.WithMaxTries(uint(s.cfg.BookingRetryMax)))
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return created, nil
}

// SlotKey identifies one bookable (doctor, clinic, date, time) cell.
func SlotKey(doctorID uuid.UUID, clinicID *uuid.UUID, date time.Time, slot string) string {
	clinic := "none"
	if clinicID != nil {
		clinic = clinicID.String()
	}
	return doctorID.String() + ":" + clinic + ":" + date.Format(DateLayout) + ":" + slot
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotNoLongerAvailable):
		return "conflict"
	case errors.Is(err, ErrSlotBeingBooked):
		return "contended"
	case errors.Is(err, ErrSlotNotOffered), errors.Is(err, ErrInvalidRequest):
		return "rejected"
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrClinicNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type TransitionRequest struct {
	Status   Status
	Fees     []Fee
	Language string
}

type TransitionResult struct {
	Appointment *Appointment
	Changed     bool
	// Warning carries ErrNotificationDeliveryFailed; the transition itself
	// is committed regardless.
	Warning error
}

// Transition moves an appointment to req.Status, appending req.Fees in the
// same conditional update.
func (s *Service) Transition(ctx context.Context, doctorID, id uuid.UUID, req TransitionRequest) (*TransitionResult, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}
	appt, err := s.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, appt, req.Status, req.Fees, req.Language, EventAppointmentStatusChanged)
}

// AddFees appends fees without changing the status.
func (s *Service) AddFees(ctx context.Context, doctorID, id uuid.UUID, fees []Fee) (*TransitionResult, error) {
	if len(fees) == 0 {
		return nil, fmt.Errorf("%w: at least one fee is required", ErrInvalidFee)
	}
	appt, err := s.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, appt, appt.Status, fees, "", EventAppointmentFeesAdded)
}

func (s *Service) apply(ctx context.Context, appt *Appointment, to Status, fees []Fee, lang, event string) (*TransitionResult, error) {
	from := appt.Status

	ledger := appt.Ledger()
	for _, f := range fees {
		if err := ledger.Append(f); err != nil {
			return nil, err
		}
	}
	fees = ledger.Fees()[len(appt.ExtraFees):]

	if !CanTransition(from, to) {
		s.metrics.ObserveTransition(string(from), string(to), "rejected")
		return nil, fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	if len(fees) > 0 && (from == StatusCancelled || to == StatusCancelled) {
		s.metrics.ObserveTransition(string(from), string(to), "rejected")
		return nil, fmt.Errorf("%w: fees cannot be added to a cancelled appointment", ErrInvalidTransition)
	}
	if from == to && len(fees) == 0 {
		return &TransitionResult{Appointment: appt}, nil
	}

	update := Update{Status: to, Fees: fees}
	if appt.BasePrice.IsZero() && s.prices != nil {
		price, err := s.prices.DoctorBasePrice(ctx, appt.DoctorID)
		switch {
		case err != nil:
			s.log.Warn("base price backfill skipped", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		case !price.IsZero():
			update.BackfillPrice = &price
		}
	}

	updated, err := s.repo.ApplyTransition(ctx, appt.ID, from, update)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrInvalidTransition) {
			result = "rejected"
		}
		s.metrics.ObserveTransition(string(from), string(to), result)
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(to), "ok")

	payload := map[string]any{
		"from": from,
		"to":   to,
	}
	if len(fees) > 0 {
		payload["fees"] = fees
	}
	if update.BackfillPrice != nil {
		payload["base_price_backfill"] = update.BackfillPrice.String()
	}
	s.logEvent(ctx, updated.ID, event, payload)

	res := &TransitionResult{Appointment: updated, Changed: from != to}
	if res.Changed {
		res.Warning = s.notify(ctx, updated, lang)
	}
	return res, nil
}

// GetAppointment loads an appointment that belongs to doctorID.
func (s *Service) GetAppointment(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListAppointments returns a doctor's appointments on one date, including
// cancelled ones, in queue order.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	f.Date = DateOf(f.Date)
	appts, err := s.repo.ListByDoctorDate(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return AssignQueueNumbers(appts), nil
}

// TodayQueue numbers today's appointments for the doctor. Without a clinic
// every clinic of the doctor is included.
func (s *Service) TodayQueue(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]Appointment, error) {
	return s.ListAppointments(ctx, ListFilter{
		DoctorID:  doctorID,
		Date:      DateOf(s.now()),
		ClinicID:  clinicID,
		AnyClinic: clinicID == nil,
	})
}

// SweepStalePending cancels pending appointments dated before today.
// It returns how many were cancelled.
func (s *Service) SweepStalePending(ctx context.Context, limit int) (int, error) {
	today := DateOf(s.now())
	stale, err := s.repo.FindStalePending(ctx, today, limit)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	cancelled := 0
	for i := range stale {
		appt := &stale[i]
		_, err := s.apply(ctx, appt, StatusCancelled, nil, "", EventAppointmentStaleCanceled)
		if err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				s.log.Error("failed to cancel stale appointment",
					zap.String("appointment_id", appt.ID.String()),
					zap.Error(err),
				)
			}
			continue
		}
		cancelled++
	}

	return cancelled, nil
}

func (s *Service) notify(ctx context.Context, appt *Appointment, lang string) error {
	if s.notifier == nil {
		return nil
	}
	if strings.TrimSpace(appt.Patient.Phone) == "" {
		s.metrics.ObserveNotification("skipped")
		return nil
	}
	if lang == "" || !SupportedLanguage(lang) {
		lang = s.cfg.DefaultLanguage
	}

	body, err := RenderMessage(lang, appt.Status, MessageData{
		PatientName: appt.Patient.Name,
		Date:        appt.Date.Format(DateLayout),
		Time:        appt.Time,
		Total:       appt.Ledger().Total().StringFixed(2),
	})
	if err == nil {
		err = s.notifier.Send(ctx, Notification{
			AppointmentID: appt.ID,
			Phone:         appt.Patient.Phone,
			Language:      lang,
			Status:        appt.Status,
			Body:          body,
		})
	}
	if err != nil {
		s.metrics.ObserveNotification("failed")
		s.log.Warn("patient notification not delivered",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("status", string(appt.Status)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrNotificationDeliveryFailed, err)
	}
	s.metrics.ObserveNotification("sent")
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

