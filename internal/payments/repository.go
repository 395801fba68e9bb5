package payments

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
	// ErrNotFound is returned when no payment matches the lookup.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyReconciled is returned when a terminal update finds the
	// payment no longer PENDING; the caller treats it as a safe replay.
	ErrAlreadyReconciled = errors.New("payment already reconciled")
	// ErrSlotTaken is returned when flipping the consultation to PAID
	// violates the one-confirmed-booking-per-slot constraint.
	ErrSlotTaken = errors.New("slot already claimed by another booking")
	// ErrConsultationIneligible is returned when the consultation left the
	// payable statuses while the payment was pending (e.g. cancelled).
	ErrConsultationIneligible = errors.New("consultation no longer payable")
)

// payableStatuses are the consultation statuses a confirmed payment may
// move forward from.
var payableStatuses = []consultation.Status{
	consultation.StatusCreated,
	consultation.StatusPaymentPending,
	consultation.StatusPaymentFailed,
}

// Repository persists payments and applies the atomic
// payment-plus-consultation outcome updates.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{pool: pool}
}

const paymentColumns = `
	id, consultation_id, provider_order_id, COALESCE(provider_payment_id, ''), checkout_id,
	amount_cents, currency, status, created_at, updated_at, paid_at
`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.ConsultationID,
		&p.ProviderOrderID,
		&p.ProviderPaymentID,
		&p.CheckoutID,
		&p.AmountCents,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePending inserts a PENDING payment and its checkout audit event in
// one transaction.
func (r *Repository) CreatePending(ctx context.Context, p *Payment, actorUserID string) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("payments: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO payments (id, consultation_id, provider_order_id, checkout_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+paymentColumns,
		p.ID, p.ConsultationID, p.ProviderOrderID, p.CheckoutID, p.AmountCents, p.Currency, StatusPending,
	)
	created, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("payments: insert pending: %w", err)
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ActorUserID:    actorUserID,
		ConsultationID: created.ConsultationID,
		EventType:      audit.EventCheckoutCreated,
		Metadata: audit.Metadata(map[string]any{
			"payment_id":   created.ID.String(),
			"order_id":     created.ProviderOrderID,
			"amount_cents": created.AmountCents,
		}),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("payments: commit insert: %w", err)
	}
	return created, nil
}

// GetByOrderID loads a payment by the provider's order identifier.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_order_id = $1`, orderID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load by order id: %w", err)
	}
	return p, nil
}

// GetOpenByConsultation returns the newest PENDING or PAID payment for a
// consultation, used as the double-checkout guard.
func (r *Repository) GetOpenByConsultation(ctx context.Context, consultationID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE consultation_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`, consultationID, []Status{StatusPending, StatusPaid})
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load open by consultation: %w", err)
	}
	return p, nil
}

// MarkPaidAndConsultationPaid moves the payment to PAID and the
// consultation to PAID in one transaction. Returns ErrSlotTaken when the
// consultation update trips the per-slot uniqueness constraint,
// ErrAlreadyReconciled when the payment is no longer PENDING, and
// ErrConsultationIneligible when the consultation left the payable
// statuses.
func (r *Repository) MarkPaidAndConsultationPaid(ctx context.Context, p *Payment, providerPaymentID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin confirm: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prior, err := r.markPaymentPaid(ctx, tx, p.ID, providerPaymentID)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE consultations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, consultation.StatusPaid, p.ConsultationID, payableStatuses)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("payments: mark consultation paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConsultationIneligible
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ConsultationID: p.ConsultationID,
		EventType:      audit.EventConsultationPaid,
		Metadata: audit.Metadata(map[string]any{
			"payment_id":          p.ID.String(),
			"order_id":            p.ProviderOrderID,
			"provider_payment_id": providerPaymentID,
			"from":                string(prior),
			"to":                  string(consultation.StatusPaid),
		}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit confirm: %w", err)
	}
	return nil
}

// MarkPaidWithSlotConflict records that the charge succeeded but the slot
// was already claimed: payment PAID, consultation PAYMENT_FAILED, and one
// slot-conflict audit event, atomically.
func (r *Repository) MarkPaidWithSlotConflict(ctx context.Context, p *Payment, providerPaymentID string, doctorID uuid.UUID, slot time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin conflict resolve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := r.markPaymentPaid(ctx, tx, p.ID, providerPaymentID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE consultations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, consultation.StatusPaymentFailed, p.ConsultationID, payableStatuses); err != nil {
		return fmt.Errorf("payments: mark consultation failed on conflict: %w", err)
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ConsultationID: p.ConsultationID,
		EventType:      audit.EventSlotConflict,
		Metadata: audit.Metadata(map[string]any{
			"payment_id":          p.ID.String(),
			"order_id":            p.ProviderOrderID,
			"provider_payment_id": providerPaymentID,
			"doctor_id":           doctorID.String(),
			"slot":                slot.UTC().Format(time.RFC3339),
		}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit conflict resolve: %w", err)
	}
	return nil
}

// MarkFailed moves the payment to FAILED and the consultation to
// PAYMENT_FAILED in one transaction.
func (r *Repository) MarkFailed(ctx context.Context, p *Payment, providerPaymentID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin fail: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $1, provider_payment_id = NULLIF($2, ''), updated_at = now()
		WHERE id = $3 AND status = $4
	`, StatusFailed, providerPaymentID, p.ID, StatusPending)
	if err != nil {
		return fmt.Errorf("payments: mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReconciled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE consultations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, consultation.StatusPaymentFailed, p.ConsultationID, payableStatuses); err != nil {
		return fmt.Errorf("payments: mark consultation failed: %w", err)
	}

	if err := audit.Insert(ctx, tx, audit.Event{
		ConsultationID: p.ConsultationID,
		EventType:      audit.EventPaymentFailed,
		Metadata: audit.Metadata(map[string]any{
			"payment_id": p.ID.String(),
			"order_id":   p.ProviderOrderID,
		}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit fail: %w", err)
	}
	return nil
}

// markPaymentPaid conditionally flips the payment row to PAID and reports
// the consultation's status before reconciliation.
func (r *Repository) markPaymentPaid(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, providerPaymentID string) (consultation.Status, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $1, provider_payment_id = NULLIF($2, ''), paid_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4
	`, StatusPaid, providerPaymentID, paymentID, StatusPending)
	if err != nil {
		return "", fmt.Errorf("payments: mark payment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrAlreadyReconciled
	}

	var prior consultation.Status
	err = tx.QueryRow(ctx, `
		SELECT c.status FROM consultations c
		JOIN payments p ON p.consultation_id = c.id
		WHERE p.id = $1
	`, paymentID).Scan(&prior)
	if err != nil {
		return "", fmt.Errorf("payments: load consultation status: %w", err)
	}
	return prior, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
