// Package payments creates provider checkout sessions and reconciles the
// provider's asynchronous outcome against local consultation state,
// including the case where the provider confirms a charge after another
// booking has already claimed the same doctor/slot.
package payments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a payment row.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

// Payment references a provider checkout for one consultation.
type Payment struct {
	ID                uuid.UUID  `json:"id"`
	ConsultationID    uuid.UUID  `json:"consultationId"`
	ProviderOrderID   string     `json:"providerOrderId"`
	ProviderPaymentID string     `json:"providerPaymentId,omitempty"`
	CheckoutID        string     `json:"checkoutId"`
	AmountCents       int32      `json:"amountCents"`
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

// Outcome is a provider-reported terminal payment result, normalized from
// the provider's own status vocabulary.
type Outcome int

const (
	// OutcomeIgnored covers provider statuses that carry no local state
	// change (intermediate states, unknown future additions).
	OutcomeIgnored Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

// mapProviderStatus normalizes a provider order status. Unrecognized
// statuses are ignored rather than rejected so new provider states never
// turn into webhook retry storms.
func mapProviderStatus(s string) Outcome {
	switch s {
	case "COMPLETED", "PAID", "CAPTURED":
		return OutcomeCompleted
	case "FAILED", "CANCELED", "CANCELLED", "VOIDED":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}
