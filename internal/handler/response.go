package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	codeInvalidRequest   = "invalid_request"
	codeAlreadyFulfilled = "already_fulfilled"
	codeNotFound         = "not_found"
	codeConflict         = "conflict"
	codeValidation       = "validation_error"
	codeInternal         = "internal_error"
)

type ErrorResponsePayload struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

func writeJSON(w http.ResponseWriter, status int, v any, log logrus.FieldLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte, log logrus.FieldLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

func errorBody(code, detail string) []byte {
	body, _ := json.Marshal(ErrorResponsePayload{Detail: detail, ErrorCode: code})
	return body
}

func writeError(w http.ResponseWriter, status int, code, detail string, log logrus.FieldLogger) {
	writeJSON(w, status, ErrorResponsePayload{Detail: detail, ErrorCode: code}, log)
}

func writeInternalError(w http.ResponseWriter, err error, log logrus.FieldLogger) {
	log.WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, codeInternal, "An unexpected error occurred", log)
}
