package payments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/api/respond"
	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Handler exposes checkout initiation and the success-page fallback.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// InitiateCheckout handles POST /consultations/{consultationID}/checkout.
func (h *Handler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	consultationID, err := uuid.Parse(chi.URLParam(r, "consultationID"))
	if err != nil {
		respond.Error(w, h.logger, apperror.Validation("consultationId", "must be a UUID"))
		return
	}

	result, err := h.service.InitiateCheckout(r.Context(), consultationID, actor)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, result)
}

// SuccessReturn handles GET /payments/success?orderId=..., the redirect
// target the patient lands on after paying. It reconciles immediately
// instead of waiting for the webhook.
func (h *Handler) SuccessReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		respond.Error(w, h.logger, apperror.Validation("orderId", "is required"))
		return
	}

	payment, err := h.service.ReconcileSuccessReturn(r.Context(), orderID, actor)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, payment)
}
