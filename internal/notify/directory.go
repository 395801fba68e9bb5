package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory resolves patient contact details from the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) ContactForPatient(ctx context.Context, patientID uuid.UUID) (string, string, error) {
	var name, email string
	err := d.pool.QueryRow(ctx,
		`SELECT full_name, email FROM users WHERE id = $1`,
		patientID,
	).Scan(&name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("notify: no user %s", patientID)
		}
		return "", "", fmt.Errorf("notify: load user contact: %w", err)
	}
	return name, email, nil
}
