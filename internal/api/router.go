package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

// Scheduler is the appointment service as seen by the HTTP layer.
type Scheduler interface {
	EffectiveHours(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) (*appointment.EffectiveSchedule, error)
	Availability(ctx context.Context, q appointment.AvailabilityQuery) (*appointment.Availability, error)
	CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.BookingResult, error)
	ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
	TodayQueue(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]appointment.Appointment, error)
	GetAppointment(ctx context.Context, doctorID, id uuid.UUID) (*appointment.Appointment, error)
	Transition(ctx context.Context, doctorID, id uuid.UUID, req appointment.TransitionRequest) (*appointment.TransitionResult, error)
	AddFees(ctx context.Context, doctorID, id uuid.UUID, fees []appointment.Fee) (*appointment.TransitionResult, error)
}

type RouterConfig struct {
	Service        Scheduler
	Health         *HealthHandler
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RateLimit      int
	// Now is the clinic-local clock used for "today".
	Now func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &handlers{svc: cfg.Service, log: logger, now: now}

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
		}

		r.Get("/hours", h.hours)
		r.Get("/availability", h.availability)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/today", h.todayQueue)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/transitions", h.transition)
			r.Post("/{id}/fees", h.addFees)
		})
	})

	return r
}
