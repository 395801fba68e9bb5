package consultation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/api/respond"
	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Handler exposes consultation CRUD and status transitions.
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

type createRequest struct {
	Specialty        string  `json:"specialty"`
	DoctorID         *string `json:"doctorId,omitempty"`
	ScheduledStartAt *string `json:"scheduledStartAt,omitempty"`
}

// Create handles POST /consultations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperror.Validation("body", "invalid JSON payload"))
		return
	}

	params := CreateParams{Specialty: Specialty(req.Specialty)}
	if req.DoctorID != nil {
		doctorID, err := uuid.Parse(*req.DoctorID)
		if err != nil {
			respond.Error(w, h.logger, apperror.Validation("doctorId", "must be a UUID"))
			return
		}
		params.DoctorID = &doctorID
	}
	if req.ScheduledStartAt != nil {
		startAt, err := time.Parse(time.RFC3339, *req.ScheduledStartAt)
		if err != nil {
			respond.Error(w, h.logger, apperror.Validation("scheduledStartAt", "must be RFC 3339"))
			return
		}
		startAt = startAt.UTC()
		params.ScheduledStartAt = &startAt
	}

	created, err := h.service.Create(r.Context(), actor, params)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, created)
}

// Get handles GET /consultations/{consultationID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "consultationID"))
	if err != nil {
		respond.Error(w, h.logger, apperror.Validation("consultationId", "must be a UUID"))
		return
	}

	c, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

type patchStatusRequest struct {
	Status    string  `json:"status"`
	UpdatedAt *string `json:"updatedAt,omitempty"`
}

// PatchStatus handles PATCH /consultations/{consultationID}/status. The
// optional updatedAt echoes the caller's last-read timestamp and acts as
// an optimistic concurrency token.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "consultationID"))
	if err != nil {
		respond.Error(w, h.logger, apperror.Validation("consultationId", "must be a UUID"))
		return
	}

	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperror.Validation("body", "invalid JSON payload"))
		return
	}
	if req.Status == "" {
		respond.Error(w, h.logger, apperror.Validation("status", "is required"))
		return
	}

	var expectedUpdatedAt *time.Time
	if req.UpdatedAt != nil {
		parsed, err := time.Parse(time.RFC3339Nano, *req.UpdatedAt)
		if err != nil {
			respond.Error(w, h.logger, apperror.Validation("updatedAt", "must be RFC 3339"))
			return
		}
		expectedUpdatedAt = &parsed
	}

	updated, err := h.service.ChangeStatus(r.Context(), actor, id, Status(req.Status), expectedUpdatedAt)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}
