// Package doctors exposes the read-side doctor directory the booking
// engine needs: who practices a specialty, and in which time zone.
package doctors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a doctor does not exist.
var ErrNotFound = errors.New("doctor not found")

// Doctor is a bookable practitioner.
type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	// Timezone is an IANA zone name; slot generation walks the doctor's
	// local calendar in this zone.
	Timezone string
}

// Repository reads doctors from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("doctors: pgx pool required")
	}
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, timezone
		FROM doctors
		WHERE id = $1
	`, id)
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Timezone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("doctors: load by id: %w", err)
	}
	return &d, nil
}

// ListBySpecialty returns all doctors practicing the given specialty.
func (r *Repository) ListBySpecialty(ctx context.Context, specialty string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, timezone
		FROM doctors
		WHERE specialty = $1
		ORDER BY name
	`, specialty)
	if err != nil {
		return nil, fmt.Errorf("doctors: list by specialty: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.Timezone); err != nil {
			return nil, fmt.Errorf("doctors: scan doctor: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctors: iterate doctors: %w", err)
	}
	return out, nil
}
