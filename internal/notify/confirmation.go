package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/doctors"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// PatientDirectory resolves a patient's contact details.
type PatientDirectory interface {
	ContactForPatient(ctx context.Context, patientID uuid.UUID) (name, email string, err error)
}

// DoctorDirectory resolves the doctor named in the confirmation.
type DoctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

// Confirmer emails the patient once their payment is confirmed.
type Confirmer struct {
	sender   EmailSender
	patients PatientDirectory
	doctors  DoctorDirectory
	logger   *logging.Logger
}

func NewConfirmer(sender EmailSender, patients PatientDirectory, doctorDir DoctorDirectory, logger *logging.Logger) *Confirmer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Confirmer{
		sender:   sender,
		patients: patients,
		doctors:  doctorDir,
		logger:   logger,
	}
}

// SendBookingConfirmation sends the booking email. Failures are logged
// and swallowed; the payment is already confirmed and must not be
// affected by notification problems.
func (c *Confirmer) SendBookingConfirmation(ctx context.Context, consult *consultation.Consultation) {
	if c == nil || c.sender == nil {
		return
	}

	name, email, err := c.patients.ContactForPatient(ctx, consult.PatientID)
	if err != nil {
		c.logger.Warn("booking confirmation skipped, no patient contact",
			"consultation_id", consult.ID, "error", err)
		return
	}

	doctorName := "your doctor"
	if consult.DoctorID != nil {
		if d, err := c.doctors.GetByID(ctx, *consult.DoctorID); err == nil {
			doctorName = "Dr. " + d.Name
		}
	}

	when := "the scheduled time"
	if consult.ScheduledStartAt != nil {
		when = consult.ScheduledStartAt.UTC().Format(time.RFC1123)
	}

	msg := EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Your consultation is confirmed",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour %s consultation with %s is confirmed for %s.\n\nYou can join the video call from your dashboard starting five minutes before the appointment.\n",
			name, consult.Specialty, doctorName, when,
		),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		c.logger.Warn("booking confirmation send failed",
			"consultation_id", consult.ID, "error", err)
	}
}
