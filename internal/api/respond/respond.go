// Package respond writes the API's JSON envelopes: plain payloads on
// success, a structured {code, message, field, details} object on error.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/caredial/telehealth-platform/internal/apperror"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

type errorBody struct {
	Error *apperror.Error `json:"error"`
}

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Error maps err onto the structured error envelope. Internal errors are
// logged with their cause and returned without it.
func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	appErr := apperror.From(err)
	if appErr.HTTPStatus() >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "code", string(appErr.Code), "error", err)
	}
	JSON(w, appErr.HTTPStatus(), errorBody{Error: appErr})
}
