package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caredial/telehealth-platform/internal/observability/metrics"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// SignatureHeader carries the provider's HMAC of the notification.
const SignatureHeader = "X-Payment-Signature"

type providerEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Payment struct {
			ID      string `json:"id"`
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"payment"`
	} `json:"data"`
}

// WebhookHandler receives asynchronous payment outcomes from the provider.
type WebhookHandler struct {
	signatureKey string
	service      *Service
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

func NewWebhookHandler(signatureKey string, service *Service, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		signatureKey: signatureKey,
		service:      service,
		metrics:      m,
		logger:       logger,
	}
}

// Handle verifies the signature over the exact notification URL plus raw
// body, then reconciles. Anything the service reconciles (including
// unknown orders and replays) is acknowledged with 200 so the provider
// stops retrying; only transient failures return 5xx.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.signatureKey, buildAbsoluteURL(r), payload, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("payment webhook signature rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt providerEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode payment event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.Data.Payment.OrderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	outcome := mapProviderStatus(evt.Data.Payment.Status)
	if err := h.service.ReconcileOrder(r.Context(), evt.Data.Payment.OrderID, evt.Data.Payment.ID, outcome); err != nil {
		h.logger.Error("payment reconcile failed",
			"order_id", evt.Data.Payment.OrderID,
			"event_id", evt.EventID,
			"error", err,
		)
		h.metrics.ObserveWebhookLatency("error", time.Since(start).Seconds())
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWebhookLatency(outcomeLabel(outcome), time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// verifySignature checks an HMAC-SHA256 over (notification URL + raw
// body), base64-encoded, byte-for-byte. No whitespace or field-order
// tolerance: the signature covers the exact payload as delivered.
func verifySignature(key, url string, body []byte, header string) bool {
	if key == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(url))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

// buildAbsoluteURL reconstructs the public notification URL the provider
// signed, honoring proxy forwarding headers.
func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
