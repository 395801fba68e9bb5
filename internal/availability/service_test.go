package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/doctors"
)

type stubDirectory struct {
	byID   map[uuid.UUID]*doctors.Doctor
	listed []doctors.Doctor
}

func (s *stubDirectory) GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, doctors.ErrNotFound
	}
	return d, nil
}

func (s *stubDirectory) ListBySpecialty(ctx context.Context, specialty string) ([]doctors.Doctor, error) {
	var out []doctors.Doctor
	for _, d := range s.listed {
		if d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out, nil
}

type stubBookings struct {
	booked    map[uuid.UUID][]time.Time
	lastIDs   []uuid.UUID
	callCount int
}

func (s *stubBookings) BookedStartTimes(ctx context.Context, doctorIDs []uuid.UUID, windowStart, windowEnd time.Time) (map[uuid.UUID][]time.Time, error) {
	s.callCount++
	s.lastIDs = doctorIDs
	return s.booked, nil
}

func newTestService(dir *stubDirectory, bookings *stubBookings, now time.Time) *Service {
	svc := NewService(dir, bookings, 30, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestGetAvailabilityBatchesBookedLookup(t *testing.T) {
	d1 := doctors.Doctor{ID: uuid.New(), Name: "Dr. Ada", Specialty: "GENERAL", Timezone: "UTC"}
	d2 := doctors.Doctor{ID: uuid.New(), Name: "Dr. Grace", Specialty: "GENERAL", Timezone: "Europe/Berlin"}
	dir := &stubDirectory{listed: []doctors.Doctor{d1, d2}}
	booked := &stubBookings{booked: map[uuid.UUID][]time.Time{
		d1.ID: {time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)},
	}}
	svc := newTestService(dir, booked, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	out, err := svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyGeneral,
		Date:      "2025-06-10",
	})
	if err != nil {
		t.Fatalf("GetAvailability returned error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two doctors, got %d", len(out))
	}
	if booked.callCount != 1 {
		t.Fatalf("expected a single batched booked lookup, got %d", booked.callCount)
	}
	if len(booked.lastIDs) != 2 {
		t.Fatalf("expected both doctor ids in one query, got %v", booked.lastIDs)
	}

	var sawUnavailable bool
	for _, s := range out[0].Slots {
		if s.Start.Equal(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)) && !s.Available {
			sawUnavailable = true
		}
	}
	if !sawUnavailable {
		t.Fatalf("expected the booked slot to be marked unavailable for %s", out[0].DoctorName)
	}
}

func TestGetAvailabilityPastDay(t *testing.T) {
	dir := &stubDirectory{}
	svc := newTestService(dir, &stubBookings{}, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC))

	_, err := svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyGeneral,
		Date:      "2025-06-10",
	})
	appErr := apperror.From(err)
	if appErr.Code != apperror.CodeValidation || appErr.Field != "date" {
		t.Fatalf("expected date validation error, got %v", err)
	}
}

func TestGetAvailabilityBeyondHorizon(t *testing.T) {
	dir := &stubDirectory{}
	svc := newTestService(dir, &stubBookings{}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyGeneral,
		Date:      "2025-07-15",
	})
	appErr := apperror.From(err)
	if appErr.Code != apperror.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if appErr.Details["horizon_days"] != 30 {
		t.Fatalf("expected horizon detail, got %#v", appErr.Details)
	}
}

func TestGetAvailabilityEndOfDayStillBookable(t *testing.T) {
	// Mid-afternoon on the requested day: the day is not "entirely in the
	// past" so remaining slots must still be offered.
	d := doctors.Doctor{ID: uuid.New(), Name: "Dr. Ada", Specialty: "GENERAL", Timezone: "UTC"}
	dir := &stubDirectory{listed: []doctors.Doctor{d}}
	svc := newTestService(dir, &stubBookings{}, time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC))

	out, err := svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyGeneral,
		Date:      "2025-06-10",
	})
	if err != nil {
		t.Fatalf("GetAvailability returned error: %v", err)
	}
	var available int
	for _, s := range out[0].Slots {
		if s.Available {
			available++
		}
	}
	// 15:00 through 16:30 starts remain.
	if available != 4 {
		t.Fatalf("expected 4 remaining slots, got %d", available)
	}
}

func TestGetAvailabilitySpecificDoctor(t *testing.T) {
	d := doctors.Doctor{ID: uuid.New(), Name: "Dr. Ada", Specialty: "CARDIOLOGY", Timezone: "UTC"}
	dir := &stubDirectory{byID: map[uuid.UUID]*doctors.Doctor{d.ID: &d}}
	svc := newTestService(dir, &stubBookings{}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	out, err := svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyCardiology,
		Date:      "2025-06-10",
		DoctorID:  &d.ID,
	})
	if err != nil {
		t.Fatalf("GetAvailability returned error: %v", err)
	}
	if len(out) != 1 || out[0].DoctorID != d.ID {
		t.Fatalf("expected the requested doctor only, got %#v", out)
	}

	_, err = svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyGeneral,
		Date:      "2025-06-10",
		DoctorID:  &d.ID,
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("expected specialty mismatch validation error, got %v", err)
	}

	missing := uuid.New()
	_, err = svc.GetAvailability(context.Background(), Query{
		Specialty: consultation.SpecialtyCardiology,
		Date:      "2025-06-10",
		DoctorID:  &missing,
	})
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Fatalf("expected not found for unknown doctor, got %v", err)
	}
}
