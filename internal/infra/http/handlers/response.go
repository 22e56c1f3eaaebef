package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type ErrorResponse struct {
	Error   string                    `json:"error"`
	Code    string                    `json:"code,omitempty"`
	Fields  []string                  `json:"fields,omitempty"`
	Details []usecase.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("encoding response")
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps use case errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		rejection *entity.RejectionError
		inputErr  *usecase.InputError
		notFound  *entity.NotFoundError
		storeErr  *entity.StoreIOError
		authErr   *entity.AuthError
		transport *entity.TransportError
	)
	switch {
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: rejection.Error(), Code: "REJECTED", Fields: rejection.Fields})
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: inputErr.Error(), Code: "INVALID_INPUT", Details: inputErr.Errors})
	case errors.As(err, &notFound):
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", notFound.Error())
	case errors.As(err, &storeErr):
		logrus.WithError(err).Error("store failure")
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", storeErr.Error())
	case errors.As(err, &authErr), errors.As(err, &transport):
		writeErrorResponse(w, http.StatusInternalServerError, "CRM_UNAVAILABLE", err.Error())
	default:
		logrus.WithError(err).Error("unexpected error")
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
