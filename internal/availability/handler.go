package availability

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/caredial/telehealth-platform/internal/api/respond"
	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/internal/auth"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

// Handler exposes the availability query.
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

type availabilityResponse struct {
	Date    string               `json:"date"`
	Doctors []DoctorAvailability `json:"doctors"`
}

// Get handles GET /availability?specialty=&date=&tz=&doctorId=.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.ActorFromContext(r.Context()); !ok {
		respond.Error(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	q := Query{
		Specialty: consultation.Specialty(r.URL.Query().Get("specialty")),
		Date:      r.URL.Query().Get("date"),
		PatientTZ: r.URL.Query().Get("tz"),
	}
	if raw := r.URL.Query().Get("doctorId"); raw != "" {
		doctorID, err := uuid.Parse(raw)
		if err != nil {
			respond.Error(w, h.logger, apperror.Validation("doctorId", "must be a UUID"))
			return
		}
		q.DoctorID = &doctorID
	}
	if q.Date == "" {
		respond.Error(w, h.logger, apperror.Validation("date", "is required"))
		return
	}

	doctors, err := h.service.GetAvailability(r.Context(), q)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, availabilityResponse{Date: q.Date, Doctors: doctors})
}
