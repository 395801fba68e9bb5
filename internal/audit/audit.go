// Package audit provides the append-only audit trail used to reconstruct
// status transitions and payment conflict resolution after the fact.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType tags an audit event.
type EventType string

const (
	EventConsultationCreated   EventType = "consultation.created"
	EventStatusChanged         EventType = "consultation.status_changed"
	EventCheckoutCreated       EventType = "payment.checkout_created"
	EventConsultationPaid      EventType = "payment.confirmed"
	EventPaymentFailed         EventType = "payment.failed"
	EventSlotConflict          EventType = "payment.slot_conflict"
	EventFirstJoin             EventType = "video.first_join"
	EventConsultationCompleted EventType = "consultation.completed"
	EventConsultationExpired   EventType = "consultation.expired"
)

// Event is an immutable audit record. ActorUserID is empty for events
// produced by the system itself (webhooks, housekeeping).
type Event struct {
	ID             uuid.UUID       `json:"id"`
	ActorUserID    string          `json:"actor_user_id,omitempty"`
	ConsultationID uuid.UUID       `json:"consultation_id"`
	EventType      EventType       `json:"event_type"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Execer is satisfied by both pgxpool.Pool and pgx.Tx so events can be
// appended inside the same transaction that changes state.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertSQL = `
	INSERT INTO audit_events (id, actor_user_id, consultation_id, event_type, event_metadata, created_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
`

// Insert appends an event using the given executor (pool or open transaction).
func Insert(ctx context.Context, db Execer, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := db.Exec(ctx, insertSQL,
		ev.ID, ev.ActorUserID, ev.ConsultationID, ev.EventType, ev.Metadata, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Metadata marshals a payload for an event, swallowing marshal errors since
// the audit write itself must never block a state change.
func Metadata(payload map[string]any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// Store reads and appends audit events outside of transactions.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("audit: pgx pool required")
	}
	return &Store{pool: pool}
}

// Append writes a single event.
func (s *Store) Append(ctx context.Context, ev Event) error {
	return Insert(ctx, s.pool, ev)
}

// ListByConsultation returns a consultation's audit trail, oldest first.
func (s *Store) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(actor_user_id, ''), consultation_id, event_type, event_metadata, created_at
		FROM audit_events
		WHERE consultation_id = $1
		ORDER BY created_at ASC
	`, consultationID)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ActorUserID, &ev.ConsultationID, &ev.EventType, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

var _ Execer = (pgx.Tx)(nil)
