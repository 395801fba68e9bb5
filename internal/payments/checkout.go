package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caredial/telehealth-platform/pkg/logging"
)

var tracer = otel.Tracer("caredial.internal.payments")

// CheckoutSession is a hosted payment page created at the provider.
type CheckoutSession struct {
	CheckoutID  string
	OrderID     string
	CheckoutURL string
}

// CheckoutClient is the provider capability the reconciliation controller
// depends on.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	FetchOrderStatus(ctx context.Context, orderID string) (string, error)
}

// CheckoutParams describes one consultation checkout.
type CheckoutParams struct {
	ConsultationID uuid.UUID
	Description    string
	AmountCents    int32
	Currency       string
}

// ProviderClient talks to the hosted-checkout provider over its REST API.
type ProviderClient struct {
	accessToken string
	baseURL     string
	successURL  string
	cancelURL   string
	httpClient  *http.Client
	logger      *logging.Logger
}

func NewProviderClient(accessToken, baseURL, successURL, cancelURL string, logger *logging.Logger) *ProviderClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProviderClient{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		successURL:  successURL,
		cancelURL:   cancelURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// CreateCheckout creates a hosted payment link. The consultation id doubles
// as the idempotency key, so a retried initiate call cannot open a second
// provider order for the same consultation.
func (c *ProviderClient) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("payments: no provider credentials configured")
	}

	ctx, span := tracer.Start(ctx, "provider.create_checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("caredial.consultation_id", params.ConsultationID.String()),
		attribute.Int("caredial.amount_cents", int(params.AmountCents)),
	)

	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	name := strings.TrimSpace(params.Description)
	if name == "" {
		name = "Consultation"
	}

	body := map[string]any{
		"idempotency_key": params.ConsultationID.String(),
		"order": map[string]any{
			"metadata": map[string]string{
				"consultation_id": params.ConsultationID.String(),
			},
			"line_items": []map[string]any{
				{
					"name":     name,
					"quantity": "1",
					"base_price_money": map[string]any{
						"amount":   params.AmountCents,
						"currency": currency,
					},
				},
			},
		},
		"checkout_options": map[string]any{
			"redirect_url": c.successURL,
			"cancel_url":   c.cancelURL,
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout payload: %w", err)
	}

	apiURL := c.baseURL + "/v2/online-checkout/payment-links"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: provider status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		PaymentLink struct {
			ID      string `json:"id"`
			URL     string `json:"url"`
			OrderID string `json:"order_id"`
		} `json:"payment_link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: checkout decode: %w", err)
	}
	if parsed.PaymentLink.URL == "" || parsed.PaymentLink.OrderID == "" {
		return nil, fmt.Errorf("payments: provider response missing url or order id")
	}

	return &CheckoutSession{
		CheckoutID:  parsed.PaymentLink.ID,
		OrderID:     parsed.PaymentLink.OrderID,
		CheckoutURL: parsed.PaymentLink.URL,
	}, nil
}

// FetchOrderStatus reads the provider's current view of an order. Used by
// the success-page fallback when the webhook has not landed yet.
func (c *ProviderClient) FetchOrderStatus(ctx context.Context, orderID string) (string, error) {
	if c.accessToken == "" || orderID == "" {
		return "", fmt.Errorf("payments: missing token or order id")
	}

	ctx, span := tracer.Start(ctx, "provider.fetch_order")
	defer span.End()
	span.SetAttributes(attribute.String("caredial.order_id", orderID))

	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("payments: order request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payments: order http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("payments: order status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Order struct {
			State string `json:"state"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("payments: order decode: %w", err)
	}
	return payload.Order.State, nil
}
