package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PgxPool is the subset of *pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, COALESCE(clinic_id::text, ''), date, time,
		patient_id, patient_name, patient_phone, status, base_price::text, extra_fees,
		created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		clinicID string
		status   string
		price    string
		fees     []byte
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&clinicID,
		&a.Date,
		&a.Time,
		&a.Patient.ID,
		&a.Patient.Name,
		&a.Patient.Phone,
		&status,
		&price,
		&fees,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if clinicID != "" {
		id, err := uuid.Parse(clinicID)
		if err != nil {
			return nil, fmt.Errorf("scan clinic id: %w", err)
		}
		a.ClinicID = &id
	}
	a.Status = Status(status)
	a.Date = DateOf(a.Date)

	if a.BasePrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("scan base price: %w", err)
	}
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &a.ExtraFees); err != nil {
			return nil, fmt.Errorf("scan extra fees: %w", err)
		}
	}

	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	fees, err := json.Marshal(nonNilFees(a.ExtraFees))
	if err != nil {
		return nil, fmt.Errorf("encode extra fees: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, clinic_id, date, time,
			patient_id, patient_name, patient_phone, status, base_price, extra_fees,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text::numeric, $11::jsonb, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.ClinicID, a.Date, a.Time,
		a.Patient.ID, a.Patient.Name, a.Patient.Phone, string(a.Status), a.BasePrice.String(), fees)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotNoLongerAvailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, f ListFilter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND ($3::boolean OR clinic_id IS NOT DISTINCT FROM $4)
		ORDER BY time, created_at, id
	`, f.DoctorID, f.Date, f.AnyClinic, f.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ApplyTransition(ctx context.Context, id uuid.UUID, from Status, u Update) (*Appointment, error) {
	fees, err := json.Marshal(nonNilFees(u.Fees))
	if err != nil {
		return nil, fmt.Errorf("encode extra fees: %w", err)
	}
	var backfill *string
	if u.BackfillPrice != nil {
		s := u.BackfillPrice.String()
		backfill = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    extra_fees = extra_fees || $4::jsonb,
		    base_price = CASE WHEN base_price = 0 AND $5::text IS NOT NULL THEN $5::text::numeric ELSE base_price END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, string(from), string(u.Status), fees, backfill)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// the row exists (it was just read) but its status moved on
			return nil, fmt.Errorf("%w: appointment is no longer %s", ErrInvalidTransition, from)
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND date < $1
		ORDER BY date, time
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale pending: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNilFees(f []Fee) []Fee {
	if f == nil {
		return []Fee{}
	}
	return f
}
