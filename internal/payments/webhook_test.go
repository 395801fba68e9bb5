package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/slotlock"
)

func buildEvent(t *testing.T, eventID, paymentID, orderID, status string) []byte {
	t.Helper()
	payload := map[string]any{
		"event_id": eventID,
		"type":     "payment.updated",
		"data": map[string]any{
			"payment": map[string]any{
				"id":       paymentID,
				"order_id": orderID,
				"status":   status,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func sign(req *http.Request, key string, body []byte) {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte("http://example.com" + req.URL.RequestURI()))
	mac.Write(body)
	req.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func webhookFixture(t *testing.T) (*WebhookHandler, *stubPayments) {
	t.Helper()
	patientID := uuid.New()
	c := payableConsultation(patientID)
	p := &Payment{ID: uuid.New(), ConsultationID: c.ID, ProviderOrderID: "ord-1", Status: StatusPending}
	payments := &stubPayments{byOrder: map[string]*Payment{"ord-1": p}}
	svc := NewService(payments, &stubConsultations{byID: map[uuid.UUID]*consultation.Consultation{c.ID: c}}, &stubCheckout{}, &fakeLock{result: slotlock.Acquired}, flatPrice(5000), nil)
	return NewWebhookHandler("secret", svc, nil, nil), payments
}

func TestWebhookCompletedEvent(t *testing.T) {
	handler, payments := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-1", "COMPLETED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(body))
	req.Host = "example.com"
	sign(req, "secret", body)

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payments.paidCalls != 1 {
		t.Fatalf("paid calls = %d, want 1", payments.paidCalls)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler, payments := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-1", "COMPLETED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(body))
	req.Host = "example.com"
	sign(req, "wrong-key", body)

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if payments.paidCalls != 0 {
		t.Fatalf("unauthenticated event must not reconcile")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	handler, _ := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-1", "COMPLETED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(body))
	req.Host = "example.com"

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookSignatureCoversExactBytes(t *testing.T) {
	handler, _ := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-1", "COMPLETED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(append(body, ' ')))
	req.Host = "example.com"
	sign(req, "secret", body)

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("whitespace-shifted payload must fail verification, got %d", rec.Code)
	}
}

func TestWebhookUnknownOrderAcknowledged(t *testing.T) {
	handler, payments := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-unknown", "COMPLETED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(body))
	req.Host = "example.com"
	sign(req, "secret", body)

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown order must be acknowledged, got %d", rec.Code)
	}
	if payments.paidCalls != 0 {
		t.Fatalf("unknown order must not reconcile anything")
	}
}

func TestWebhookIgnoresUnrecognizedStatus(t *testing.T) {
	handler, payments := webhookFixture(t)

	body := buildEvent(t, "evt-1", "pay-1", "ord-1", "AUTHORIZED")
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/payments", bytes.NewReader(body))
	req.Host = "example.com"
	sign(req, "secret", body)

	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payments.paidCalls != 0 || payments.failedCalls != 0 {
		t.Fatalf("unrecognized status must not change state")
	}
}
