package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caredial/telehealth-platform/internal/audit"
)

var (
	// ErrNotFound is returned when a consultation does not exist.
	ErrNotFound = errors.New("consultation not found")
	// ErrStaleUpdate is returned when a conditional update matched no row,
	// meaning the caller's view of the consultation is out of date.
	ErrStaleUpdate = errors.New("consultation was modified concurrently")
)

// Repository persists consultations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("consultation: pgx pool required")
	}
	return &Repository{pool: pool}
}

const selectColumns = `
	id, patient_id, doctor_id, specialty, status,
	scheduled_start_at, started_at, ended_at, created_at, updated_at
`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.DoctorID,
		&c.Specialty,
		&c.Status,
		&c.ScheduledStartAt,
		&c.StartedAt,
		&c.EndedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a new consultation in CREATED status and writes the
// creation audit event in the same transaction.
func (r *Repository) Create(ctx context.Context, c *Consultation, actorUserID string) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("consultation: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO consultations (id, patient_id, doctor_id, specialty, status, scheduled_start_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+selectColumns,
		c.ID, c.PatientID, c.DoctorID, c.Specialty, StatusCreated, c.ScheduledStartAt,
	)
	created, err := scanConsultation(row)
	if err != nil {
		return nil, fmt.Errorf("consultation: insert: %w", err)
	}

	meta := map[string]any{"specialty": string(created.Specialty)}
	if created.DoctorID != nil {
		meta["doctor_id"] = created.DoctorID.String()
	}
	if created.ScheduledStartAt != nil {
		meta["scheduled_start_at"] = created.ScheduledStartAt.UTC().Format(time.RFC3339)
	}
	if err := audit.Insert(ctx, tx, audit.Event{
		ActorUserID:    actorUserID,
		ConsultationID: created.ID,
		EventType:      audit.EventConsultationCreated,
		Metadata:       audit.Metadata(meta),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("consultation: commit create: %w", err)
	}
	return created, nil
}

// GetByID loads a consultation.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM consultations WHERE id = $1`, id)
	c, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consultation: load by id: %w", err)
	}
	return c, nil
}

// UpdateStatusChecked applies from -> to only while the row still holds the
// expected status, and, when expectedUpdatedAt is set, the expected update
// timestamp. The status change and its audit event commit atomically.
// Returns ErrStaleUpdate when the precondition no longer holds.
func (r *Repository) UpdateStatusChecked(ctx context.Context, id uuid.UUID, from, to Status, expectedUpdatedAt *time.Time, actorUserID string) (*Consultation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("consultation: begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE consultations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`
	args := []any{to, id, from}
	if expectedUpdatedAt != nil {
		query += ` AND updated_at = $4`
		args = append(args, *expectedUpdatedAt)
	}
	query += ` RETURNING ` + selectColumns

	updated, err := scanConsultation(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrStaleUpdate
		}
		return nil, fmt.Errorf("consultation: conditional status update: %w", err)
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ActorUserID:    actorUserID,
		ConsultationID: id,
		EventType:      audit.EventStatusChanged,
		Metadata: audit.Metadata(map[string]any{
			"from": string(from),
			"to":   string(to),
		}),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("consultation: commit status update: %w", err)
	}
	return updated, nil
}

// BookedStartTimes returns, per doctor, the scheduled start instants of
// payment-confirmed consultations (PAID, IN_CALL, COMPLETED) inside the
// given UTC window. One query covers the whole doctor set.
func (r *Repository) BookedStartTimes(ctx context.Context, doctorIDs []uuid.UUID, windowStart, windowEnd time.Time) (map[uuid.UUID][]time.Time, error) {
	booked := make(map[uuid.UUID][]time.Time, len(doctorIDs))
	if len(doctorIDs) == 0 {
		return booked, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, scheduled_start_at
		FROM consultations
		WHERE doctor_id = ANY($1)
		  AND status = ANY($2)
		  AND scheduled_start_at >= $3
		  AND scheduled_start_at < $4
	`, doctorIDs, []Status{StatusPaid, StatusInCall, StatusCompleted}, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("consultation: booked start times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doctorID uuid.UUID
		var startAt time.Time
		if err := rows.Scan(&doctorID, &startAt); err != nil {
			return nil, fmt.Errorf("consultation: scan booked time: %w", err)
		}
		booked[doctorID] = append(booked[doctorID], startAt.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consultation: iterate booked times: %w", err)
	}
	return booked, nil
}

// ExpireStale marks non-terminal, unpaid consultations whose slot has
// already elapsed as EXPIRED, auditing each one. Returns the ids expired.
func (r *Repository) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("consultation: begin expire: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE consultations
		SET status = $1, updated_at = now()
		WHERE status = ANY($2)
		  AND scheduled_start_at IS NOT NULL
		  AND scheduled_start_at < $3
		RETURNING id
	`, StatusExpired, []Status{StatusCreated, StatusPaymentPending, StatusPaymentFailed}, cutoff)
	if err != nil {
		return nil, fmt.Errorf("consultation: expire stale: %w", err)
	}
	var expired []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("consultation: scan expired id: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consultation: iterate expired: %w", err)
	}

	for _, id := range expired {
		if err := audit.Insert(ctx, tx, audit.Event{
			ConsultationID: id,
			EventType:      audit.EventConsultationExpired,
			Metadata:       audit.Metadata(map[string]any{"reason": "slot elapsed without payment"}),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("consultation: commit expire: %w", err)
	}
	return expired, nil
}
