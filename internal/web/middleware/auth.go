package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared secret on lookup requests.
const APIKeyHeader = "X-Key"

// RequireAPIKey is middleware that requires the X-Key header to equal secret.
// An empty secret disables the check.
func RequireAPIKey(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				respondError(w, http.StatusBadRequest, "X-Key header invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
