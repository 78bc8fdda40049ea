package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/tidwall/gjson"

	"github.com/secnex/crm-gateway/crm"
	"github.com/secnex/crm-gateway/models"
)

const internalError = "internal server error"

type partialUploadResponse struct {
	models.ErrorResponse
	Results []models.AttachmentStatus `json:"results"`
}

// writeError maps crm errors to responses. Client mistakes are 400; every
// upstream or login failure is a 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *crm.ValidationError
		partial    *crm.PartialUploadError
		auth       *crm.AuthenticationError
		upstream   *crm.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: validation.Message})
	case errors.As(err, &partial):
		statuses := make([]models.AttachmentStatus, len(partial.Results))
		for i, res := range partial.Results {
			statuses[i] = models.AttachmentStatus{Filename: res.Filename, Status: models.StatusUploaded}
			if res.Err != nil {
				statuses[i].Status = models.StatusFailed
				statuses[i].Error = res.Err.Error()
			}
		}
		writeJSON(w, http.StatusInternalServerError, partialUploadResponse{
			ErrorResponse: models.ErrorResponse{Message: internalError, Error: partial.Err.Error()},
			Results:       statuses,
		})
	case errors.As(err, &auth):
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Message: internalError, Error: "authentication failed"})
	case errors.As(err, &upstream):
		detail := interface{}(upstream.Error())
		if len(upstream.Body) > 0 {
			detail = embed(upstream.Body)
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Message: internalError, Error: detail})
	default:
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Message: internalError, Error: err.Error()})
	}
}

// embed returns body as raw JSON when it is valid JSON, otherwise as a string.
func embed(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	if gjson.ValidBytes(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
