package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/slotlock"
)

type stubConsultations struct {
	byID map[uuid.UUID]*consultation.Consultation
}

func (s *stubConsultations) GetByID(_ context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, consultation.ErrNotFound
	}
	return c, nil
}

type stubPayments struct {
	byOrder map[string]*Payment
	open    *Payment

	created       *Payment
	paidCalls     int
	paidErr       error
	conflictCalls int
	failedCalls   int
}

func (s *stubPayments) CreatePending(_ context.Context, p *Payment, _ string) (*Payment, error) {
	cp := *p
	cp.Status = StatusPending
	s.created = &cp
	return &cp, nil
}

func (s *stubPayments) GetByOrderID(_ context.Context, orderID string) (*Payment, error) {
	p, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *stubPayments) GetOpenByConsultation(_ context.Context, _ uuid.UUID) (*Payment, error) {
	if s.open == nil {
		return nil, ErrNotFound
	}
	return s.open, nil
}

func (s *stubPayments) MarkPaidAndConsultationPaid(_ context.Context, p *Payment, _ string) error {
	s.paidCalls++
	if s.paidErr != nil {
		return s.paidErr
	}
	p.Status = StatusPaid
	return nil
}

func (s *stubPayments) MarkPaidWithSlotConflict(_ context.Context, p *Payment, _ string, _ uuid.UUID, _ time.Time) error {
	s.conflictCalls++
	p.Status = StatusPaid
	return nil
}

func (s *stubPayments) MarkFailed(_ context.Context, p *Payment, _ string) error {
	s.failedCalls++
	p.Status = StatusFailed
	return nil
}

type stubCheckout struct {
	session    *CheckoutSession
	createErr  error
	orderState string
	fetchErr   error
}

func (s *stubCheckout) CreateCheckout(_ context.Context, _ CheckoutParams) (*CheckoutSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.session, nil
}

func (s *stubCheckout) FetchOrderStatus(_ context.Context, _ string) (string, error) {
	if s.fetchErr != nil {
		return "", s.fetchErr
	}
	return s.orderState, nil
}

type fakeLock struct {
	result   slotlock.Result
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context, uuid.UUID, time.Time, uuid.UUID) slotlock.Result {
	f.acquires++
	return f.result
}

func (f *fakeLock) Release(context.Context, uuid.UUID, time.Time) {
	f.releases++
}

func flatPrice(int) PriceLookup {
	return func(string) int { return 5000 }
}

func payableConsultation(patientID uuid.UUID) *consultation.Consultation {
	doctorID := uuid.New()
	slot := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	return &consultation.Consultation{
		ID:               uuid.New(),
		PatientID:        patientID,
		DoctorID:         &doctorID,
		Specialty:        consultation.SpecialtyCardiology,
		Status:           consultation.StatusCreated,
		ScheduledStartAt: &slot,
	}
}

func TestInitiateCheckoutHappyPath(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	payments := &stubPayments{}
	lock := &fakeLock{result: slotlock.Acquired}
	checkout := &stubCheckout{session: &CheckoutSession{
		CheckoutID:  "chk-1",
		OrderID:     "ord-1",
		CheckoutURL: "https://pay.example.com/chk-1",
	}}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, checkout, lock, flatPrice(5000), nil)

	result, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if err != nil {
		t.Fatalf("InitiateCheckout returned error: %v", err)
	}
	if result.CheckoutURL != "https://pay.example.com/chk-1" {
		t.Fatalf("unexpected checkout url %q", result.CheckoutURL)
	}
	if payments.created == nil || payments.created.Status != StatusPending {
		t.Fatalf("expected a PENDING payment to be persisted, got %+v", payments.created)
	}
	if payments.created.ProviderOrderID != "ord-1" {
		t.Fatalf("payment order id = %q, want ord-1", payments.created.ProviderOrderID)
	}
	if c.Status != consultation.StatusCreated {
		t.Fatalf("initiate must not flip consultation status, got %s", c.Status)
	}
	if lock.acquires != 1 || lock.releases != 0 {
		t.Fatalf("lock acquires=%d releases=%d, want 1/0", lock.acquires, lock.releases)
	}
}

func TestInitiateCheckoutAuthz(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	svc := NewService(&stubPayments{}, store, &stubCheckout{}, &fakeLock{}, flatPrice(5000), nil)

	cases := []struct {
		name  string
		actor auth.Actor
	}{
		{"other patient", auth.Actor{ID: uuid.New().String(), Role: auth.RolePatient}},
		{"doctor", auth.Actor{ID: uuid.New().String(), Role: auth.RoleDoctor}},
		{"admin", auth.Actor{ID: uuid.New().String(), Role: auth.RoleAdmin}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InitiateCheckout(context.Background(), c.ID, tc.actor)
			if !apperror.IsCode(err, apperror.CodeForbidden) {
				t.Fatalf("err = %v, want FORBIDDEN", err)
			}
		})
	}
}

func TestInitiateCheckoutIneligibleStatus(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	c.Status = consultation.StatusPaid
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	svc := NewService(&stubPayments{}, store, &stubCheckout{}, &fakeLock{}, flatPrice(5000), nil)

	_, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestInitiateCheckoutRetryableAfterFailure(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	c.Status = consultation.StatusPaymentFailed
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	checkout := &stubCheckout{session: &CheckoutSession{CheckoutID: "chk", OrderID: "ord", CheckoutURL: "https://pay"}}
	svc := NewService(&stubPayments{}, store, checkout, &fakeLock{result: slotlock.Acquired}, flatPrice(5000), nil)

	if _, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient}); err != nil {
		t.Fatalf("PAYMENT_FAILED should be retryable, got %v", err)
	}
}

func TestInitiateCheckoutRequiresDoctorAndSlot(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	c.DoctorID = nil
	c.ScheduledStartAt = nil
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	svc := NewService(&stubPayments{}, store, &stubCheckout{}, &fakeLock{}, flatPrice(5000), nil)

	_, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestInitiateCheckoutOpenPaymentGuard(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	payments := &stubPayments{open: &Payment{ID: uuid.New(), Status: StatusPending}}
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	lock := &fakeLock{result: slotlock.Acquired}
	svc := NewService(payments, store, &stubCheckout{}, lock, flatPrice(5000), nil)

	_, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
	if lock.acquires != 0 {
		t.Fatalf("lock must not be taken before the idempotency guard passes")
	}
}

func TestInitiateCheckoutLockDenied(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	svc := NewService(&stubPayments{}, store, &stubCheckout{}, &fakeLock{result: slotlock.Denied}, flatPrice(5000), nil)

	_, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestInitiateCheckoutLockUnavailableProceeds(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	checkout := &stubCheckout{session: &CheckoutSession{CheckoutID: "chk", OrderID: "ord", CheckoutURL: "https://pay"}}
	svc := NewService(&stubPayments{}, store, checkout, &fakeLock{result: slotlock.Unavailable}, flatPrice(5000), nil)

	if _, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient}); err != nil {
		t.Fatalf("lock store outage must not block checkout, got %v", err)
	}
}

func TestInitiateCheckoutProviderFailureReleasesLock(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	store := &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}
	lock := &fakeLock{result: slotlock.Acquired}
	checkout := &stubCheckout{createErr: errors.New("provider 500")}
	svc := NewService(&stubPayments{}, store, checkout, lock, flatPrice(5000), nil)

	_, err := svc.InitiateCheckout(context.Background(), c.ID, auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeInternal) {
		t.Fatalf("err = %v, want INTERNAL_ERROR", err)
	}
	if lock.releases != 1 {
		t.Fatalf("lock releases = %d, want 1", lock.releases)
	}
}

type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) SendBookingConfirmation(context.Context, *consultation.Consultation) {
	n.calls++
}

func TestReconcileOrderCompleted(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}
	lock := &fakeLock{}
	notifier := &recordingNotifier{}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, lock, flatPrice(5000), nil).
		WithNotifier(notifier)

	if err := svc.ReconcileOrder(context.Background(), "ord-1", "pay-1", OutcomeCompleted); err != nil {
		t.Fatalf("ReconcileOrder returned error: %v", err)
	}
	if payments.paidCalls != 1 {
		t.Fatalf("paid calls = %d, want 1", payments.paidCalls)
	}
	if lock.releases != 1 {
		t.Fatalf("lock releases = %d, want 1", lock.releases)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
}

func TestReconcileOrderSlotConflict(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}, paidErr: ErrSlotTaken}
	lock := &fakeLock{}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, lock, flatPrice(5000), nil)

	if err := svc.ReconcileOrder(context.Background(), "ord-1", "pay-1", OutcomeCompleted); err != nil {
		t.Fatalf("slot conflict must reconcile without error, got %v", err)
	}
	if payments.conflictCalls != 1 {
		t.Fatalf("conflict calls = %d, want 1", payments.conflictCalls)
	}
	if lock.releases != 1 {
		t.Fatalf("lock releases = %d, want 1", lock.releases)
	}
}

func TestReconcileOrderFailed(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}
	lock := &fakeLock{}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, lock, flatPrice(5000), nil)

	if err := svc.ReconcileOrder(context.Background(), "ord-1", "pay-1", OutcomeFailed); err != nil {
		t.Fatalf("ReconcileOrder returned error: %v", err)
	}
	if payments.failedCalls != 1 {
		t.Fatalf("failed calls = %d, want 1", payments.failedCalls)
	}
	if lock.releases != 1 {
		t.Fatalf("lock releases = %d, want 1", lock.releases)
	}
}

func TestReconcileOrderUnknownOrderAcknowledged(t *testing.T) {
	svc := NewService(&stubPayments{}, &stubConsultations{}, &stubCheckout{}, &fakeLock{}, flatPrice(5000), nil)

	if err := svc.ReconcileOrder(context.Background(), "nope", "", OutcomeCompleted); err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
}

func TestReconcileOrderReplayIsNoop(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPaid}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}
	lock := &fakeLock{}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, lock, flatPrice(5000), nil)

	if err := svc.ReconcileOrder(context.Background(), "ord-1", "pay-1", OutcomeCompleted); err != nil {
		t.Fatalf("replay must be a no-op, got %v", err)
	}
	if payments.paidCalls != 0 {
		t.Fatalf("replay must not attempt an update, got %d calls", payments.paidCalls)
	}
	if lock.releases != 0 {
		t.Fatalf("replay must not release anything, got %d", lock.releases)
	}
}

func TestReconcileSuccessReturnQueriesProvider(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}
	checkout := &stubCheckout{orderState: "COMPLETED"}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, checkout, &fakeLock{}, flatPrice(5000), nil)

	refreshed, err := svc.ReconcileSuccessReturn(context.Background(), "ord-1", auth.Actor{ID: patientID.String(), Role: auth.RolePatient})
	if err != nil {
		t.Fatalf("ReconcileSuccessReturn returned error: %v", err)
	}
	if refreshed.Status != StatusPaid {
		t.Fatalf("payment status = %s, want PAID", refreshed.Status)
	}
	if payments.paidCalls != 1 {
		t.Fatalf("paid calls = %d, want 1", payments.paidCalls)
	}
}

func TestReconcileSuccessReturnForeignPatient(t *testing.T) {
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}

	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, &fakeLock{}, flatPrice(5000), nil)

	_, err := svc.ReconcileSuccessReturn(context.Background(), "ord-1", auth.Actor{ID: uuid.New().String(), Role: auth.RolePatient})
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}
