package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/doctors"
)

type recordingSender struct {
	sent    []EmailMessage
	sendErr error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, msg)
	return nil
}

type stubPatients struct {
	name  string
	email string
	err   error
}

func (s *stubPatients) ContactForPatient(context.Context, uuid.UUID) (string, string, error) {
	return s.name, s.email, s.err
}

type stubDoctors struct {
	doctor *doctors.Doctor
}

func (s *stubDoctors) GetByID(context.Context, uuid.UUID) (*doctors.Doctor, error) {
	if s.doctor == nil {
		return nil, doctors.ErrNotFound
	}
	return s.doctor, nil
}

func confirmedConsultation() *consultation.Consultation {
	doctorID := uuid.New()
	slot := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	return &consultation.Consultation{
		ID:               uuid.New(),
		PatientID:        uuid.New(),
		DoctorID:         &doctorID,
		Specialty:        consultation.SpecialtyDermatology,
		Status:           consultation.StatusPaid,
		ScheduledStartAt: &slot,
	}
}

func TestSendBookingConfirmation(t *testing.T) {
	sender := &recordingSender{}
	confirmer := NewConfirmer(sender,
		&stubPatients{name: "Ada", email: "ada@example.com"},
		&stubDoctors{doctor: &doctors.Doctor{Name: "Ng", Specialty: string(consultation.SpecialtyDermatology)}},
		nil,
	)

	confirmer.SendBookingConfirmation(context.Background(), confirmedConsultation())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ada@example.com" {
		t.Fatalf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Body, "Dr. Ng") {
		t.Fatalf("body missing doctor name: %q", msg.Body)
	}
}

func TestSendBookingConfirmationSwallowsFailures(t *testing.T) {
	sender := &recordingSender{sendErr: errors.New("sendgrid down")}
	confirmer := NewConfirmer(sender,
		&stubPatients{name: "Ada", email: "ada@example.com"},
		&stubDoctors{},
		nil,
	)

	// Must not panic or propagate.
	confirmer.SendBookingConfirmation(context.Background(), confirmedConsultation())
}

func TestSendBookingConfirmationNoContact(t *testing.T) {
	sender := &recordingSender{}
	confirmer := NewConfirmer(sender, &stubPatients{err: errors.New("no such user")}, &stubDoctors{}, nil)

	confirmer.SendBookingConfirmation(context.Background(), confirmedConsultation())

	if len(sender.sent) != 0 {
		t.Fatalf("no email should go out without contact details")
	}
}
