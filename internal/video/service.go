package video

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
	"github.com/caredial/telehealth-platform/pkg/logging"
)

const (
	// JoinEarlyWindow is how long before the scheduled start a join is
	// allowed; JoinLateWindow how long after. Both bounds are inclusive.
	JoinEarlyWindow = 5 * time.Minute
	JoinLateWindow  = 30 * time.Minute
)

type consultationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
}

type sessionStore interface {
	GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Session, error)
	CreateFirstJoin(ctx context.Context, s *Session, actorUserID string) (*Session, error)
	CloseConsultation(ctx context.Context, consultationID uuid.UUID, actorUserID string) (*Session, error)
}

// Service is the video session orchestrator.
type Service struct {
	sessions      sessionStore
	consultations consultationStore
	provider      RoomProvider
	roomExpiry    time.Duration
	now           func() time.Time
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
}

func NewService(sessions sessionStore, consultations consultationStore, provider RoomProvider, roomExpiry time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if roomExpiry <= 0 {
		roomExpiry = time.Hour
	}
	return &Service{
		sessions:      sessions,
		consultations: consultations,
		provider:      provider,
		roomExpiry:    roomExpiry,
		now:           time.Now,
		logger:        logger,
	}
}

// WithMetrics attaches booking metrics.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// JoinResult is handed to a participant entering the call.
type JoinResult struct {
	JoinURL   string    `json:"joinUrl"`
	RoomURL   string    `json:"roomUrl"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Join validates access, lazily creates the room on first join, and mints
// a fresh meeting token. The first join flips PAID to IN_CALL; later joins
// reuse the existing session untouched.
func (s *Service) Join(ctx context.Context, consultationID uuid.UUID, actor auth.Actor) (*JoinResult, error) {
	c, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			return nil, apperror.NotFound("consultation not found")
		}
		return nil, apperror.Internal(err)
	}

	isOwnerRole := s.canModerate(actor, c)
	if !isOwnerRole && actor.ID != c.PatientID.String() {
		s.metrics.ObserveJoin("forbidden")
		return nil, apperror.Forbidden("you are not a participant of this consultation")
	}

	if c.Status != consultation.StatusPaid && c.Status != consultation.StatusInCall {
		s.metrics.ObserveJoin("bad_status")
		return nil, apperror.Validation("status", fmt.Sprintf("consultation in status %s cannot be joined", c.Status))
	}
	if c.ScheduledStartAt == nil {
		return nil, apperror.Validation("scheduledStartAt", "consultation has no scheduled time")
	}

	now := s.now()
	earliest := c.ScheduledStartAt.Add(-JoinEarlyWindow)
	latest := c.ScheduledStartAt.Add(JoinLateWindow)
	if now.Before(earliest) {
		s.metrics.ObserveJoin("too_early")
		return nil, apperror.Validation("scheduledStartAt", "too early to join").
			WithDetail("joinable_from", earliest.UTC().Format(time.RFC3339))
	}
	if now.After(latest) {
		s.metrics.ObserveJoin("too_late")
		return nil, apperror.Validation("scheduledStartAt", "too late to join").
			WithDetail("joinable_until", latest.UTC().Format(time.RFC3339))
	}

	session, err := s.ensureSession(ctx, c, actor)
	if err != nil {
		return nil, err
	}

	token, err := s.provider.CreateMeetingToken(ctx, session.RoomName, actor.ID, isOwnerRole, s.roomExpiry)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("video: mint token: %w", err))
	}

	s.metrics.ObserveJoin("joined")
	return &JoinResult{
		JoinURL:   session.RoomURL + "?t=" + token,
		RoomURL:   session.RoomURL,
		Token:     token,
		ExpiresAt: now.Add(s.roomExpiry),
	}, nil
}

// ensureSession returns the consultation's session, creating room and row
// on first join. A concurrent creator winning the insert race is handled
// by discarding our provider room and reusing theirs.
func (s *Service) ensureSession(ctx context.Context, c *consultation.Consultation, actor auth.Actor) (*Session, error) {
	session, err := s.sessions.GetByConsultation(ctx, c.ID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, apperror.Internal(err)
	}

	room, err := s.provider.CreateRoom(ctx, roomName(c.ID), s.roomExpiry)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("video: create room: %w", err))
	}

	created, err := s.sessions.CreateFirstJoin(ctx, &Session{
		ID:             uuid.New(),
		ConsultationID: c.ID,
		RoomName:       room.Name,
		RoomURL:        room.URL,
	}, actor.ID)
	if err == nil {
		s.logger.Info("video session created", "consultation_id", c.ID, "room_name", room.Name)
		return created, nil
	}
	if errors.Is(err, ErrAlreadyExists) {
		if derr := s.provider.DeleteRoom(ctx, room.Name); derr != nil {
			s.logger.Warn("orphaned room cleanup failed", "room_name", room.Name, "error", derr)
		}
		existing, gerr := s.sessions.GetByConsultation(ctx, c.ID)
		if gerr != nil {
			return nil, apperror.Internal(gerr)
		}
		return existing, nil
	}
	return nil, apperror.Internal(err)
}

// Close transitions IN_CALL to COMPLETED and tears the room down.
// Room deletion is best effort; the status flip is the source of truth.
func (s *Service) Close(ctx context.Context, consultationID uuid.UUID, actor auth.Actor) (*consultation.Consultation, error) {
	c, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			return nil, apperror.NotFound("consultation not found")
		}
		return nil, apperror.Internal(err)
	}
	if !s.canModerate(actor, c) {
		return nil, apperror.Forbidden("only the assigned doctor or an admin can close a consultation")
	}

	session, err := s.sessions.CloseConsultation(ctx, consultationID, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotInCall) {
			current, gerr := s.consultations.GetByID(ctx, consultationID)
			if gerr == nil && current.Status == consultation.StatusCompleted {
				return nil, apperror.Conflict("consultation is already closed")
			}
			return nil, apperror.InvalidStatusTransition(string(c.Status), string(consultation.StatusCompleted))
		}
		return nil, apperror.Internal(err)
	}

	if session != nil {
		if derr := s.provider.DeleteRoom(ctx, session.RoomName); derr != nil {
			s.logger.Warn("room deletion failed on close", "room_name", session.RoomName, "error", derr)
		}
	}

	closed, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return closed, nil
}

func (s *Service) canModerate(actor auth.Actor, c *consultation.Consultation) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == auth.RoleDoctor && c.DoctorID != nil && actor.ID == c.DoctorID.String()
}

func roomName(consultationID uuid.UUID) string {
	return "consultation-" + consultationID.String()
}
