package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestNewMuxRouting tests that the mux reaches every endpoint
func TestNewMuxRouting(t *testing.T) {
	env := testEnv(t)
	handler := NewMux(env)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", http.StatusOK},
		{"detect", http.MethodPost, "/v1/detect?publisher=pub", http.StatusOK},
		{"credentials issue requires body", http.MethodPost, "/v1/credentials", http.StatusBadRequest},
		{"revoke requires body", http.MethodPost, "/v1/credentials/revoke", http.StatusBadRequest},
		{"allowlist requires body", http.MethodPost, "/v1/allowlist", http.StatusBadRequest},
		{"allowlist remove requires body", http.MethodPost, "/v1/allowlist/remove", http.StatusBadRequest},
		{"validate requires body", http.MethodPost, "/v1/access/validate", http.StatusBadRequest},
		{"sessions list requires subject", http.MethodGet, "/v1/sessions", http.StatusBadRequest},
		{"session by id missing", http.MethodGet, "/v1/sessions/ghost", http.StatusNotFound},
		{"preflight", http.MethodOptions, "/v1/detect", http.StatusNoContent},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("User-Agent", "Mozilla/5.0")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.wantStatus)
			}
		})
	}
}

// TestNewMuxCORSHeaders tests that middleware wraps the routed handlers
func TestNewMuxCORSHeaders(t *testing.T) {
	env := testEnv(t)
	handler := NewMux(env)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
