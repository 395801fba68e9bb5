package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/doctors"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

var tracer = otel.Tracer("caredial.internal.availability")

// DoctorDirectory resolves eligible doctors; satisfied by *doctors.Repository.
type DoctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
	ListBySpecialty(ctx context.Context, specialty string) ([]doctors.Doctor, error)
}

// BookingSource reports confirmed bookings; satisfied by *consultation.Repository.
type BookingSource interface {
	BookedStartTimes(ctx context.Context, doctorIDs []uuid.UUID, windowStart, windowEnd time.Time) (map[uuid.UUID][]time.Time, error)
}

// Service computes per-doctor slot availability.
type Service struct {
	doctors     DoctorDirectory
	bookings    BookingSource
	horizonDays int
	now         func() time.Time
	logger      *logging.Logger
}

func NewService(directory DoctorDirectory, bookings BookingSource, horizonDays int, logger *logging.Logger) *Service {
	if directory == nil || bookings == nil {
		panic("availability: directory and bookings required")
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		doctors:     directory,
		bookings:    bookings,
		horizonDays: horizonDays,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Query selects whose availability to compute and for which day.
type Query struct {
	Specialty consultation.Specialty
	Date      string
	PatientTZ string
	DoctorID  *uuid.UUID
}

// DoctorAvailability is one doctor's slot set for the requested day.
type DoctorAvailability struct {
	DoctorID   uuid.UUID `json:"doctorId"`
	DoctorName string    `json:"doctorName"`
	Timezone   string    `json:"timezone"`
	Slots      []Slot    `json:"slots"`
}

// GetAvailability resolves the patient's intended day, validates it against
// the booking horizon, and returns slots for every eligible doctor. The
// booked-time lookup is batched into a single query for the doctor set.
func (s *Service) GetAvailability(ctx context.Context, q Query) ([]DoctorAvailability, error) {
	ctx, span := tracer.Start(ctx, "availability.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("caredial.specialty", string(q.Specialty)),
		attribute.String("caredial.date", q.Date),
	)

	if !consultation.ValidSpecialty(q.Specialty) {
		return nil, apperror.Validation("specialty", "unsupported specialty")
	}

	window, err := ResolveDayWindow(q.Date, q.PatientTZ)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !window.EndUTC.After(now) {
		return nil, apperror.Validation("date", "requested day is entirely in the past")
	}
	horizon := now.AddDate(0, 0, s.horizonDays)
	if window.StartUTC.After(horizon) {
		return nil, apperror.Validation("date", "requested day is beyond the booking horizon").
			WithDetail("horizon_days", s.horizonDays)
	}

	eligible, err := s.eligibleDoctors(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []DoctorAvailability{}, nil
	}

	ids := make([]uuid.UUID, len(eligible))
	for i, d := range eligible {
		ids[i] = d.ID
	}
	booked, err := s.bookings.BookedStartTimes(ctx, ids, window.StartUTC, window.EndUTC)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	out := make([]DoctorAvailability, 0, len(eligible))
	for _, d := range eligible {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			// A doctor with a broken zone must not take down the whole
			// listing; fall back to UTC and flag it for operators.
			s.logger.Warn("doctor has invalid timezone, using UTC",
				"doctor_id", d.ID, "timezone", d.Timezone)
			loc = time.UTC
		}
		out = append(out, DoctorAvailability{
			DoctorID:   d.ID,
			DoctorName: d.Name,
			Timezone:   d.Timezone,
			Slots:      doctorSlots(window, loc, now, booked[d.ID]),
		})
	}
	return out, nil
}

func (s *Service) eligibleDoctors(ctx context.Context, q Query) ([]doctors.Doctor, error) {
	if q.DoctorID != nil {
		d, err := s.doctors.GetByID(ctx, *q.DoctorID)
		if err != nil {
			if errors.Is(err, doctors.ErrNotFound) {
				return nil, apperror.NotFound("doctor not found")
			}
			return nil, apperror.Internal(err)
		}
		if d.Specialty != string(q.Specialty) {
			return nil, apperror.Validation("doctorId", "doctor does not practice the requested specialty")
		}
		return []doctors.Doctor{*d}, nil
	}

	list, err := s.doctors.ListBySpecialty(ctx, string(q.Specialty))
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return list, nil
}
