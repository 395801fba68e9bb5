package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/observability/metrics"
	"github.com/caredial/telehealth-platform/internal/slotlock"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

type consultationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
}

type paymentStore interface {
	CreatePending(ctx context.Context, p *Payment, actorUserID string) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetOpenByConsultation(ctx context.Context, consultationID uuid.UUID) (*Payment, error)
	MarkPaidAndConsultationPaid(ctx context.Context, p *Payment, providerPaymentID string) error
	MarkPaidWithSlotConflict(ctx context.Context, p *Payment, providerPaymentID string, doctorID uuid.UUID, slot time.Time) error
	MarkFailed(ctx context.Context, p *Payment, providerPaymentID string) error
}

// BookingNotifier sends the post-payment confirmation. Best effort only.
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, c *consultation.Consultation)
}

// PriceLookup resolves the charge amount in cents for a specialty.
type PriceLookup func(specialty string) int

// Service creates checkouts and reconciles provider outcomes.
type Service struct {
	payments      paymentStore
	consultations consultationStore
	checkout      CheckoutClient
	locks         slotlock.Manager
	price         PriceLookup
	notifier      BookingNotifier
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
}

func NewService(payments paymentStore, consultations consultationStore, checkout CheckoutClient, locks slotlock.Manager, price PriceLookup, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if locks == nil {
		locks = slotlock.Noop{}
	}
	return &Service{
		payments:      payments,
		consultations: consultations,
		checkout:      checkout,
		locks:         locks,
		price:         price,
		logger:        logger,
	}
}

// WithNotifier attaches the booking confirmation sender.
func (s *Service) WithNotifier(n BookingNotifier) *Service {
	s.notifier = n
	return s
}

// WithMetrics attaches booking metrics.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// CheckoutResult is returned to the patient initiating payment.
type CheckoutResult struct {
	PaymentID   uuid.UUID `json:"paymentId"`
	OrderID     string    `json:"orderId"`
	CheckoutURL string    `json:"checkoutUrl"`
}

// InitiateCheckout validates eligibility, takes the slot lock, opens a
// provider checkout and records the PENDING payment. The consultation's
// status is never changed here; only a confirmed outcome does that.
func (s *Service) InitiateCheckout(ctx context.Context, consultationID uuid.UUID, actor auth.Actor) (*CheckoutResult, error) {
	c, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			return nil, apperror.NotFound("consultation not found")
		}
		return nil, apperror.Internal(err)
	}

	if actor.Role != auth.RolePatient || actor.ID != c.PatientID.String() {
		return nil, apperror.Forbidden("only the booking patient can pay for a consultation")
	}
	if c.Status != consultation.StatusCreated && c.Status != consultation.StatusPaymentFailed {
		return nil, apperror.Conflict("consultation is not eligible for payment").
			WithDetail("status", string(c.Status))
	}
	if c.DoctorID == nil || c.ScheduledStartAt == nil {
		return nil, apperror.Validation("scheduledStartAt", "consultation needs a doctor and slot before payment")
	}

	if existing, err := s.payments.GetOpenByConsultation(ctx, consultationID); err == nil {
		return nil, apperror.Conflict("a payment is already open for this consultation").
			WithDetail("payment_status", string(existing.Status))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperror.Internal(err)
	}

	doctorID := *c.DoctorID
	slot := *c.ScheduledStartAt

	// Lock last, after every synchronous rejection path has run.
	lockResult := s.locks.Acquire(ctx, doctorID, slot, consultationID)
	switch lockResult {
	case slotlock.Denied:
		s.metrics.ObserveLock("denied")
		return nil, apperror.Conflict("slot is currently being paid for")
	case slotlock.Unavailable:
		s.metrics.ObserveLock("unavailable")
	default:
		s.metrics.ObserveLock("acquired")
	}

	session, err := s.checkout.CreateCheckout(ctx, CheckoutParams{
		ConsultationID: consultationID,
		Description:    fmt.Sprintf("%s consultation", c.Specialty),
		AmountCents:    int32(s.price(string(c.Specialty))),
	})
	if err != nil {
		s.releaseIfHeld(ctx, lockResult, doctorID, slot)
		s.metrics.ObserveCheckout("provider_error")
		return nil, apperror.Internal(fmt.Errorf("payments: create checkout: %w", err))
	}

	p := &Payment{
		ID:              uuid.New(),
		ConsultationID:  consultationID,
		ProviderOrderID: session.OrderID,
		CheckoutID:      session.CheckoutID,
		AmountCents:     int32(s.price(string(c.Specialty))),
		Currency:        "USD",
	}
	created, err := s.payments.CreatePending(ctx, p, actor.ID)
	if err != nil {
		s.releaseIfHeld(ctx, lockResult, doctorID, slot)
		s.metrics.ObserveCheckout("store_error")
		return nil, apperror.Internal(err)
	}

	s.metrics.ObserveCheckout("created")
	s.logger.Info("checkout created",
		"consultation_id", consultationID,
		"payment_id", created.ID,
		"order_id", session.OrderID,
	)
	return &CheckoutResult{
		PaymentID:   created.ID,
		OrderID:     session.OrderID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

// ReconcileOrder applies a provider-reported outcome for an order. Both
// the webhook and the success-page fallback land here, so replays and
// cross-path races reduce to the same already-terminal no-op. A nil error
// means the caller may acknowledge the event.
func (s *Service) ReconcileOrder(ctx context.Context, orderID, providerPaymentID string, outcome Outcome) error {
	if outcome == OutcomeIgnored {
		s.metrics.ObserveReconcile("ignored")
		return nil
	}

	p, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Foreign or long-gone order. Acknowledge so the provider
			// stops retrying.
			s.logger.Info("reconcile for unknown order acknowledged", "order_id", orderID)
			s.metrics.ObserveReconcile("unknown_order")
			return nil
		}
		return fmt.Errorf("payments: reconcile lookup: %w", err)
	}
	if p.Status != StatusPending {
		s.metrics.ObserveReconcile("replay")
		return nil
	}

	c, err := s.consultations.GetByID(ctx, p.ConsultationID)
	if err != nil {
		return fmt.Errorf("payments: reconcile consultation lookup: %w", err)
	}

	// Terminal outcome either way from here on: make sure the slot lock
	// goes away even if the update below fails. TTL covers the rest.
	if c.DoctorID != nil && c.ScheduledStartAt != nil {
		defer s.locks.Release(ctx, *c.DoctorID, *c.ScheduledStartAt)
	}

	if outcome == OutcomeFailed {
		if err := s.payments.MarkFailed(ctx, p, providerPaymentID); err != nil {
			if errors.Is(err, ErrAlreadyReconciled) {
				s.metrics.ObserveReconcile("replay")
				return nil
			}
			return err
		}
		s.metrics.ObserveReconcile("failed")
		s.logger.Info("payment failed", "order_id", orderID, "consultation_id", p.ConsultationID)
		return nil
	}

	err = s.payments.MarkPaidAndConsultationPaid(ctx, p, providerPaymentID)
	switch {
	case err == nil:
		s.metrics.ObserveReconcile("paid")
		s.logger.Info("payment confirmed", "order_id", orderID, "consultation_id", p.ConsultationID)
		if s.notifier != nil {
			s.notifier.SendBookingConfirmation(ctx, c)
		}
		return nil
	case errors.Is(err, ErrAlreadyReconciled):
		s.metrics.ObserveReconcile("replay")
		return nil
	case errors.Is(err, ErrSlotTaken):
		// Money was taken but another booking holds the slot. Record the
		// charge, fail the consultation, leave an audit trail for refund
		// follow-up. From the provider's perspective this is success.
		if c.DoctorID == nil || c.ScheduledStartAt == nil {
			return fmt.Errorf("payments: slot conflict without doctor/slot on consultation %s", p.ConsultationID)
		}
		if err := s.payments.MarkPaidWithSlotConflict(ctx, p, providerPaymentID, *c.DoctorID, *c.ScheduledStartAt); err != nil {
			if errors.Is(err, ErrAlreadyReconciled) {
				s.metrics.ObserveReconcile("replay")
				return nil
			}
			return err
		}
		s.metrics.ObserveReconcile("slot_conflict")
		s.logger.Warn("payment confirmed for an already-taken slot",
			"order_id", orderID,
			"consultation_id", p.ConsultationID,
			"doctor_id", c.DoctorID,
			"slot", c.ScheduledStartAt.UTC().Format(time.RFC3339),
		)
		return nil
	case errors.Is(err, ErrConsultationIneligible):
		// Cancelled or expired while the provider was charging. Leave the
		// payment PENDING for refund tooling and acknowledge.
		s.metrics.ObserveReconcile("ineligible")
		s.logger.Error("payment confirmed for a non-payable consultation",
			"order_id", orderID,
			"consultation_id", p.ConsultationID,
			"consultation_status", string(c.Status),
		)
		return nil
	default:
		return err
	}
}

// ReconcileSuccessReturn is the success-page fallback: the patient came
// back from the provider before (or instead of) the webhook, so we ask the
// provider directly and reconcile with whatever it says.
func (s *Service) ReconcileSuccessReturn(ctx context.Context, orderID string, actor auth.Actor) (*Payment, error) {
	p, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("payment not found")
		}
		return nil, apperror.Internal(err)
	}

	c, err := s.consultations.GetByID(ctx, p.ConsultationID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !actor.IsAdmin() && actor.ID != c.PatientID.String() {
		return nil, apperror.Forbidden("payment belongs to a different patient")
	}

	if p.Status == StatusPending {
		state, err := s.checkout.FetchOrderStatus(ctx, orderID)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		if err := s.ReconcileOrder(ctx, orderID, "", mapProviderStatus(state)); err != nil {
			return nil, apperror.Internal(err)
		}
	}

	refreshed, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return refreshed, nil
}

func (s *Service) releaseIfHeld(ctx context.Context, result slotlock.Result, doctorID uuid.UUID, slot time.Time) {
	if result == slotlock.Acquired {
		s.locks.Release(ctx, doctorID, slot)
	}
}
