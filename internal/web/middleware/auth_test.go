package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKey(t *testing.T) {
	handler := RequireAPIKey("s3cr3t")(okHandler())

	tests := []struct {
		name       string
		key        string
		setHeader  bool
		wantStatus int
	}{
		{"valid key", "s3cr3t", true, http.StatusOK},
		{"wrong key", "guess", true, http.StatusBadRequest},
		{"prefix of key", "s3cr", true, http.StatusBadRequest},
		{"missing header", "", false, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stars", nil)
			if tc.setHeader {
				req.Header.Set(APIKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusBadRequest {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decoding body: %v", err)
				}
				if body["error"] != "X-Key header invalid" {
					t.Errorf("unexpected body: %s", rec.Body.String())
				}
			}
		})
	}
}

func TestRequireAPIKey_EmptySecretDisablesCheck(t *testing.T) {
	handler := RequireAPIKey("")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stars", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
