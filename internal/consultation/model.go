package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical lifecycle state of a consultation.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusInCall         Status = "IN_CALL"
	StatusCompleted      Status = "COMPLETED"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusCancelled      Status = "CANCELLED"
	StatusExpired        Status = "EXPIRED"
)

// transitions is the fixed adjacency table for caller-driven status changes.
// EXPIRED is reached only by housekeeping, never through this table.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusPaymentPending, StatusCancelled},
	StatusPaymentPending: {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaid:           {StatusInCall, StatusCancelled},
	StatusInCall:         {StatusCompleted},
	StatusPaymentFailed:  {StatusPaymentPending, StatusCancelled},
	StatusCompleted:      nil,
	StatusCancelled:      nil,
	StatusExpired:        nil,
}

// CanTransition reports whether from -> to appears in the adjacency table.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outbound transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Specialty is a supported medical specialty.
type Specialty string

const (
	SpecialtyGeneral      Specialty = "GENERAL"
	SpecialtyCardiology   Specialty = "CARDIOLOGY"
	SpecialtyDermatology  Specialty = "DERMATOLOGY"
	SpecialtyPediatrics   Specialty = "PEDIATRICS"
	SpecialtyPsychiatry   Specialty = "PSYCHIATRY"
	SpecialtyOrthopedics  Specialty = "ORTHOPEDICS"
	SpecialtyGynecology   Specialty = "GYNECOLOGY"
	SpecialtyOphthalmology Specialty = "OPHTHALMOLOGY"
)

var specialties = map[Specialty]struct{}{
	SpecialtyGeneral:     {},
	SpecialtyCardiology:  {},
	SpecialtyDermatology: {},
	SpecialtyPediatrics:  {},
	SpecialtyPsychiatry:  {},
	SpecialtyOrthopedics: {},
	SpecialtyGynecology:  {},
	SpecialtyOphthalmology: {},
}

// ValidSpecialty reports whether s is a supported specialty.
func ValidSpecialty(s Specialty) bool {
	_, ok := specialties[s]
	return ok
}

// Consultation is the central aggregate driving booking, payment, and the
// video session lifecycle.
type Consultation struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patientId"`
	DoctorID         *uuid.UUID `json:"doctorId,omitempty"`
	Specialty        Specialty  `json:"specialty"`
	Status           Status     `json:"status"`
	ScheduledStartAt *time.Time `json:"scheduledStartAt,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}
