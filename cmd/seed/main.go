package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	doctors := 50
	if v := os.Getenv("SEED_DOCTORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			doctors = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	logger.Info("seed starting", zap.Int("doctors", doctors))
	if err := seedDoctors(context.Background(), logger, pool, faker, doctors); err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}

	logger.Info("seed complete")
}

// seedDoctors inserts doctors with one to three clinics each. Hours are
// written in the assorted shapes older dashboards stored, so the normalizer
// sees realistic input.
func seedDoctors(ctx context.Context, logger *zap.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	const batchSize = 25

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			if err := insertDoctor(ctx, tx, faker); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("doctors seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

func insertDoctor(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker) error {
	doctorID := uuid.New()
	price := decimal.NewFromInt(int64(faker.IntRange(10, 60) * 10))

	var hours []byte
	// A few doctors never filled in their hours.
	if faker.IntRange(1, 10) > 1 {
		var err error
		hours, err = json.Marshal(randomHours(faker))
		if err != nil {
			return err
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO doctors (id, name, specialty, phone, base_price, working_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::jsonb, now(), now())
	`, doctorID, "Dr. "+faker.Name(), faker.RandomString(specialties), faker.Phone(), price.String(), nullableJSON(hours))
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}

	clinics := faker.IntRange(1, 3)
	for c := 0; c < clinics; c++ {
		var clinicHours []byte
		// Clinics without their own hours fall back to the doctor's.
		if faker.Bool() {
			clinicHours, err = json.Marshal(randomHours(faker))
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO clinics (id, doctor_id, name, address, working_hours, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, now(), now())
		`, uuid.New(), doctorID, faker.Company()+" Clinic", faker.Street()+", "+faker.City(), nullableJSON(clinicHours))
		if err != nil {
			return fmt.Errorf("insert clinic: %w", err)
		}
	}

	return nil
}

func nullableJSON(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}

// randomHours picks one of the stored hour shapes and fills it with a
// plausible week. Friday is usually the day off.
func randomHours(faker *gofakeit.Faker) any {
	openDays := []string{"saturday", "sunday", "monday", "tuesday", "wednesday", "thursday"}
	morningStart := faker.IntRange(8, 10)
	morningEnd := morningStart + faker.IntRange(3, 4)
	eveningStart := morningEnd + 2
	eveningEnd := eveningStart + faker.IntRange(2, 4)

	clock := func(h int) string { return fmt.Sprintf("%02d:00", h) }

	switch faker.IntRange(0, 4) {
	case 0:
		// {"monday": "09:00-13:00, 15:00-19:00"}
		out := map[string]string{}
		for _, d := range openDays {
			out[d] = clock(morningStart) + "-" + clock(morningEnd) + ", " + clock(eveningStart) + "-" + clock(eveningEnd)
		}
		return out
	case 1:
		// {"mon": {"open": true, "start": "09:00", "end": "17:00", "breakStart": ..., "breakEnd": ...}}
		out := map[string]any{}
		for _, d := range openDays {
			out[d[:3]] = map[string]any{
				"open":       true,
				"start":      clock(morningStart),
				"end":        clock(eveningEnd),
				"breakStart": clock(morningEnd),
				"breakEnd":   clock(eveningStart),
			}
		}
		out["fri"] = map[string]any{"open": false}
		return out
	case 2:
		// [{"day": 1, "start": "09:00", "end": "13:00"}, ...]
		var out []map[string]any
		for i := range openDays {
			day := (int(time.Saturday) + i) % 7
			out = append(out, map[string]any{"day": day, "start": clock(morningStart), "end": clock(morningEnd)})
		}
		return out
	case 3:
		// {"workingHours": {"monday": {"open": "09:00", "close": "17:00"}}}
		inner := map[string]any{}
		for _, d := range openDays {
			inner[d] = map[string]any{"open": clock(morningStart), "close": clock(eveningEnd)}
		}
		return map[string]any{"workingHours": inner}
	default:
		// {"monday": ["9am-1pm", "3pm-7pm"]}
		out := map[string]any{}
		for _, d := range openDays {
			out[d] = []string{
				meridiem(morningStart) + "-" + meridiem(morningEnd),
				meridiem(eveningStart) + "-" + meridiem(eveningEnd),
			}
		}
		return out
	}
}

func meridiem(h int) string {
	switch {
	case h < 12:
		return fmt.Sprintf("%dam", h)
	case h == 12:
		return "12pm"
	default:
		return fmt.Sprintf("%dpm", h-12)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
