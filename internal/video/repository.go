package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caredial/telehealth-platform/internal/audit"
	"github.com/caredial/telehealth-platform/internal/consultation"
)

var (
	// ErrNotFound is returned when a consultation has no video session.
	ErrNotFound = errors.New("video session not found")
	// ErrAlreadyExists is returned when a concurrent first join already
	// created the session row; callers reload and reuse it.
	ErrAlreadyExists = errors.New("video session already created")
	// ErrNotInCall is returned when close-out finds the consultation no
	// longer IN_CALL.
	ErrNotInCall = errors.New("consultation is not in call")
)

// Session is the lazily-created video room record for a consultation.
type Session struct {
	ID             uuid.UUID  `json:"id"`
	ConsultationID uuid.UUID  `json:"consultationId"`
	RoomName       string     `json:"roomName"`
	RoomURL        string     `json:"roomUrl"`
	CreatedAt      time.Time  `json:"createdAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}

// Repository persists video sessions and the status flips tied to them.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("video: pgx pool required")
	}
	return &Repository{pool: pool}
}

const sessionColumns = `id, consultation_id, room_name, room_url, created_at, ended_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ConsultationID, &s.RoomName, &s.RoomURL, &s.CreatedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByConsultation loads the session for a consultation, if any.
func (r *Repository) GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM video_sessions WHERE consultation_id = $1`, consultationID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("video: load session: %w", err)
	}
	return s, nil
}

// CreateFirstJoin inserts the session and, when the consultation is still
// PAID, flips it to IN_CALL with its first-join audit event, all in one
// transaction. The unique constraint on consultation_id turns a concurrent
// first join into ErrAlreadyExists.
func (r *Repository) CreateFirstJoin(ctx context.Context, s *Session, actorUserID string) (*Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("video: begin first join: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO video_sessions (id, consultation_id, room_name, room_url)
		VALUES ($1, $2, $3, $4)
		RETURNING `+sessionColumns,
		s.ID, s.ConsultationID, s.RoomName, s.RoomURL,
	)
	created, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("video: insert session: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE consultations
		SET status = $1, started_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, consultation.StatusInCall, s.ConsultationID, consultation.StatusPaid)
	if err != nil {
		return nil, fmt.Errorf("video: mark in call: %w", err)
	}
	if tag.RowsAffected() == 1 {
		if err := audit.Insert(ctx, tx, audit.Event{
			ActorUserID:    actorUserID,
			ConsultationID: s.ConsultationID,
			EventType:      audit.EventFirstJoin,
			Metadata: audit.Metadata(map[string]any{
				"room_name": s.RoomName,
			}),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("video: commit first join: %w", err)
	}
	return created, nil
}

// CloseConsultation flips IN_CALL to COMPLETED conditionally, stamps the
// session's end, and audits, atomically. ErrNotInCall means the status
// moved on before we got there (double close or never joined).
func (r *Repository) CloseConsultation(ctx context.Context, consultationID uuid.UUID, actorUserID string) (*Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("video: begin close: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE consultations
		SET status = $1, ended_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, consultation.StatusCompleted, consultationID, consultation.StatusInCall)
	if err != nil {
		return nil, fmt.Errorf("video: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotInCall
	}

	row := tx.QueryRow(ctx, `
		UPDATE video_sessions
		SET ended_at = now()
		WHERE consultation_id = $1
		RETURNING `+sessionColumns,
		consultationID,
	)
	closed, err := scanSession(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("video: end session: %w", err)
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ActorUserID:    actorUserID,
		ConsultationID: consultationID,
		EventType:      audit.EventConsultationCompleted,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("video: commit close: %w", err)
	}
	return closed, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
