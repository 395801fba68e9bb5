package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

var tracer = otel.Tracer("caredial.internal.consultation")

// Store is the persistence surface the service needs; satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, c *Consultation, actorUserID string) (*Consultation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	UpdateStatusChecked(ctx context.Context, id uuid.UUID, from, to Status, expectedUpdatedAt *time.Time, actorUserID string) (*Consultation, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// Service owns the consultation lifecycle.
type Service struct {
	store  Store
	logger *logging.Logger
}

func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("consultation: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger}
}

// CreateParams are the patient-supplied attributes for a new consultation.
// Doctor and slot may be deferred until booking.
type CreateParams struct {
	Specialty        Specialty
	DoctorID         *uuid.UUID
	ScheduledStartAt *time.Time
}

// Create opens a new consultation for the requesting patient.
func (s *Service) Create(ctx context.Context, actor auth.Actor, params CreateParams) (*Consultation, error) {
	ctx, span := tracer.Start(ctx, "consultation.create")
	defer span.End()

	if actor.Role != auth.RolePatient && !actor.IsAdmin() {
		return nil, apperror.Forbidden("only patients may request consultations")
	}
	if !ValidSpecialty(params.Specialty) {
		return nil, apperror.Validation("specialty", "unsupported specialty")
	}
	patientID, err := uuid.Parse(actor.ID)
	if err != nil {
		return nil, apperror.Unauthorized("invalid session subject")
	}
	if params.ScheduledStartAt != nil && params.DoctorID == nil {
		return nil, apperror.Validation("doctorId", "a scheduled time requires a doctor")
	}

	c := &Consultation{
		ID:               uuid.New(),
		PatientID:        patientID,
		DoctorID:         params.DoctorID,
		Specialty:        params.Specialty,
		ScheduledStartAt: params.ScheduledStartAt,
	}
	span.SetAttributes(attribute.String("caredial.consultation_id", c.ID.String()))

	created, err := s.store.Create(ctx, c, actor.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	s.logger.Info("consultation created",
		"consultation_id", created.ID,
		"patient_id", created.PatientID,
		"specialty", created.Specialty,
	)
	return created, nil
}

// Get loads a consultation visible to the actor: the owning patient, the
// assigned doctor, or an admin.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Consultation, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("consultation not found")
		}
		return nil, apperror.Internal(err)
	}
	if !CanView(actor, c) {
		return nil, apperror.Forbidden("not a participant in this consultation")
	}
	return c, nil
}

// ChangeStatus drives the lifecycle machine. Only the assigned doctor or an
// admin may call it; the owning patient only moves status indirectly through
// payment and join flows. When expectedUpdatedAt is supplied it acts as an
// optimistic concurrency token.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, target Status, expectedUpdatedAt *time.Time) (*Consultation, error) {
	ctx, span := tracer.Start(ctx, "consultation.change_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("caredial.consultation_id", id.String()),
		attribute.String("caredial.target_status", string(target)),
	)

	if !target.Valid() {
		return nil, apperror.Validation("status", "unknown status")
	}
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("consultation not found")
		}
		return nil, apperror.Internal(err)
	}

	if !canDrive(actor, c) {
		return nil, apperror.Forbidden("only the assigned doctor or an admin may change status")
	}
	if target == StatusExpired {
		// Housekeeping-only state; no caller may request it.
		return nil, apperror.InvalidStatusTransition(string(c.Status), string(StatusExpired))
	}
	if !CanTransition(c.Status, target) {
		return nil, apperror.InvalidStatusTransition(string(c.Status), string(target)).
			WithDetail("valid_targets", transitions[c.Status])
	}
	if expectedUpdatedAt != nil && !expectedUpdatedAt.Equal(c.UpdatedAt) {
		return nil, apperror.Conflict("consultation was modified since last read").
			WithDetail("updated_at", c.UpdatedAt)
	}

	updated, err := s.store.UpdateStatusChecked(ctx, id, c.Status, target, expectedUpdatedAt, actor.ID)
	if err != nil {
		if errors.Is(err, ErrStaleUpdate) {
			return nil, apperror.Conflict("consultation was modified concurrently")
		}
		return nil, apperror.Internal(err)
	}
	s.logger.Info("consultation status changed",
		"consultation_id", id,
		"from", c.Status,
		"to", target,
		"actor", actor.ID,
	)
	return updated, nil
}

// ExpireStale is the out-of-band housekeeping path to EXPIRED.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ExpireStale(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		s.logger.Info("expired stale consultations", "count", len(expired))
	}
	return len(expired), nil
}

// CanView reports whether the actor may read the consultation.
func CanView(actor auth.Actor, c *Consultation) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Role == auth.RolePatient && c.PatientID.String() == actor.ID {
		return true
	}
	return actor.Role == auth.RoleDoctor && c.DoctorID != nil && c.DoctorID.String() == actor.ID
}

func canDrive(actor auth.Actor, c *Consultation) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == auth.RoleDoctor && c.DoctorID != nil && c.DoctorID.String() == actor.ID
}
