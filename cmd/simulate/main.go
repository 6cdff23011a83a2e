package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	ReadRatio       float64
	DoctorLimit     int
	DaysAhead       int
	PostgresDSN     string
}

// scope is one bookable (doctor, clinic) pair; a nil clinic books against
// the doctor's own hours.
type scope struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
}

func (s scope) query() string {
	if s.ClinicID == nil {
		return ""
	}
	return "clinic_id=" + s.ClinicID.String()
}

type booked struct {
	DoctorID uuid.UUID
	ID       uuid.UUID
}

type DataPool struct {
	Scopes       []scope
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]

	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Transition   OperationMetrics
	Queue        OperationMetrics

	// SlotsDoubleBooked counts slots that came back twice in one day's list.
	SlotsDoubleBooked int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("transition", cfg.TransitionRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data pool loaded", zap.Int("scopes", len(dataPool.Scopes)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.CheckQueues()
	sim.PrintReport()
}

func loadConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:     getInt("SIM_DOCTOR_LIMIT", 5),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 3),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

// loadDataPool keeps the doctor set small so workers collide on slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT d.id, c.id
		FROM (SELECT id FROM doctors ORDER BY created_at LIMIT $1) d
		LEFT JOIN clinics c ON c.doctor_id = d.id
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	for rows.Next() {
		var (
			doctorID uuid.UUID
			clinicID *uuid.UUID
		)
		if err := rows.Scan(&doctorID, &clinicID); err != nil {
			return nil, err
		}
		if !seen[doctorID] {
			seen[doctorID] = true
			dataPool.Scopes = append(dataPool.Scopes, scope{DoctorID: doctorID})
		}
		if clinicID != nil {
			dataPool.Scopes = append(dataPool.Scopes, scope{DoctorID: doctorID, ClinicID: clinicID})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Scopes) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("simulation running", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				s.doQueue(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format("2006-01-02")
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sc := s.pool.Scopes[rng.Intn(len(s.pool.Scopes))]
	date := s.randomDate(rng)

	url := fmt.Sprintf("%s/doctors/%s/availability?date=%s", s.config.APIBaseURL, sc.DoctorID, date)
	if q := sc.query(); q != "" {
		url += "&" + q
	}

	var av struct {
		Slots []string `json:"slots"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, url, nil, &av)
	s.metrics.Availability.Record(time.Since(start), err == nil && status == http.StatusOK, false)
	if err != nil || status != http.StatusOK || len(av.Slots) == 0 {
		return
	}

	// Favor the earliest slots so workers race for the same ones.
	slot := av.Slots[rng.Intn(min(3, len(av.Slots)))]
	body := map[string]any{
		"date": date,
		"time": slot,
		"patient": map[string]string{
			"id":    uuid.NewString(),
			"name":  fmt.Sprintf("Sim Patient %d", rng.Intn(100000)),
			"phone": fmt.Sprintf("+2010%08d", rng.Intn(100000000)),
		},
		"by_staff": rng.Intn(4) == 0,
	}
	if sc.ClinicID != nil {
		body["clinic_id"] = sc.ClinicID.String()
	}

	var created struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	start = time.Now()
	status, err = s.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/doctors/%s/appointments", s.config.APIBaseURL, sc.DoctorID), body, &created)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success && created.Appointment.ID != uuid.Nil {
		s.pool.AddAppointment(booked{DoctorID: sc.DoctorID, ID: created.Appointment.ID})
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	statuses := []string{"confirmed", "completed", "cancelled"}
	body := map[string]any{"status": statuses[rng.Intn(len(statuses))]}
	if body["status"] == "completed" && rng.Intn(2) == 0 {
		body["fees"] = []map[string]any{{"description": "consumables", "amount": fmt.Sprintf("%d.50", 5+rng.Intn(50))}}
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/doctors/%s/appointments/%s/transitions", s.config.APIBaseURL, appt.DoctorID, appt.ID), body, nil)
	s.metrics.Transition.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doQueue(ctx context.Context, rng *rand.Rand) {
	sc := s.pool.Scopes[rng.Intn(len(s.pool.Scopes))]
	url := fmt.Sprintf("%s/doctors/%s/appointments/today", s.config.APIBaseURL, sc.DoctorID)
	if q := sc.query(); q != "" {
		url += "?" + q
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, url, nil, nil)
	s.metrics.Queue.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// CheckQueues lists every simulated day and counts live slots that appear
// more than once. Any non-zero count is a booking bug.
func (s *Simulator) CheckQueues() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, sc := range s.pool.Scopes {
		for d := 1; d <= s.config.DaysAhead; d++ {
			date := time.Now().AddDate(0, 0, d).Format("2006-01-02")
			url := fmt.Sprintf("%s/doctors/%s/appointments?date=%s", s.config.APIBaseURL, sc.DoctorID, date)
			if q := sc.query(); q != "" {
				url += "&" + q
			}

			var list struct {
				Appointments []struct {
					ClinicID *uuid.UUID `json:"clinic_id"`
					Time     string     `json:"time"`
					Status   string     `json:"status"`
				} `json:"appointments"`
			}
			if status, err := s.call(ctx, http.MethodGet, url, nil, &list); err != nil || status != http.StatusOK {
				s.logger.Warn("queue check failed",
					zap.Stringer("doctor_id", sc.DoctorID),
					zap.String("date", date),
					zap.Int("status", status),
					zap.Error(err),
				)
				continue
			}

			live := make(map[string]int)
			for _, a := range list.Appointments {
				if a.Status == "cancelled" {
					continue
				}
				clinic := "none"
				if a.ClinicID != nil {
					clinic = a.ClinicID.String()
				}
				live[clinic+"|"+a.Time]++
			}
			for _, n := range live {
				if n > 1 {
					atomic.AddInt64(&s.metrics.SlotsDoubleBooked, 1)
				}
			}
		}
	}
}

func (s *Simulator) call(ctx context.Context, method, url string, in, out any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Today queue", &s.metrics.Queue)

	fmt.Printf("Double-booked slots: %d\n", atomic.LoadInt64(&s.metrics.SlotsDoubleBooked))
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
