package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"scenesound/internal/apperror"
	"scenesound/internal/logger"
)

// writeJSON encodes data with the given status code.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError maps err onto its status code and a JSON error body.
func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, logger, status, map[string]string{"error": err.Error()})
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
