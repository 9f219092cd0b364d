package middleware

import (
	"encoding/json"
	"net/http"
)

// respondError writes {"error": message} as JSON with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
