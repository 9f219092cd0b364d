package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/lookalike/internal/embedding"
	"github.com/kozaktomas/lookalike/internal/index"
	"github.com/kozaktomas/lookalike/internal/match"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Messages returned to clients for lookup outcomes.
const (
	msgUnidentifiedImage = "Cannot identify image file"
	msgNoFaces           = "Can't find faces on image"
	msgTooManyFaces      = "Number of faces on given image is more than 1"
	msgNoMatch           = "Suitable results not found"
	msgNotReady          = "service not ready"
	msgEmbeddingFailed   = "embedding service unavailable"
	msgInternal          = "internal server error"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps a lookup error to an HTTP status and client message.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, embedding.ErrUnidentifiedImage):
		return http.StatusUnsupportedMediaType, msgUnidentifiedImage
	case errors.Is(err, embedding.ErrNoFaces):
		return http.StatusUnprocessableEntity, msgNoFaces
	case errors.Is(err, embedding.ErrTooManyFaces):
		return http.StatusNotAcceptable, msgTooManyFaces
	case errors.Is(err, match.ErrInvalidParameter),
		errors.Is(err, index.ErrDimensionMismatch),
		errors.Is(err, index.ErrInvalidK):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, match.ErrNoMatchFound):
		return http.StatusNotFound, msgNoMatch
	case errors.Is(err, index.ErrNotReady):
		return http.StatusServiceUnavailable, msgNotReady
	case errors.Is(err, embedding.ErrService):
		return http.StatusBadGateway, msgEmbeddingFailed
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, defaultVal int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
