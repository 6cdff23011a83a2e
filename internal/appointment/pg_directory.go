package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PgDirectory reads doctor and clinic records owned by the wider dashboard.
// It serves both ScheduleSource and PriceSource.
type PgDirectory struct {
	pool PgxPool
}

func NewPgDirectory(pool PgxPool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) DoctorHours(ctx context.Context, doctorID uuid.UUID) ([]byte, error) {
	var raw string
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(working_hours::text, '')
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor hours: %w", err)
	}
	return []byte(raw), nil
}

func (d *PgDirectory) ClinicHours(ctx context.Context, doctorID, clinicID uuid.UUID) ([]byte, bool, error) {
	var raw string
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(working_hours::text, '')
		FROM clinics
		WHERE id = $1
		  AND doctor_id = $2
	`, clinicID, doctorID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrClinicNotFound
		}
		return nil, false, fmt.Errorf("load clinic hours: %w", err)
	}
	if raw == "" {
		return nil, false, nil
	}
	return []byte(raw), true, nil
}

func (d *PgDirectory) DoctorBasePrice(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(base_price, 0)::text
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrDoctorNotFound
		}
		return decimal.Zero, fmt.Errorf("load doctor price: %w", err)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse doctor price: %w", err)
	}
	return price, nil
}
