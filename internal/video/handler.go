package video

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/api/respond"
	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Handler exposes join and close over HTTP.
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

// Join handles POST /consultations/{consultationID}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.service.Join(r.Context(), consultationID, actor)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Close handles POST /consultations/{consultationID}/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
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

	closed, err := h.service.Close(r.Context(), consultationID, actor)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, closed)
}
