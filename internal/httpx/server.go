package httpx

import (
	"net/http"
)

// NewMux wires the admission API routes and wraps them with the CORS,
// metrics and request-logging middleware.
func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)

	// Detection
	mux.HandleFunc("/v1/detect", e.Detect)

	// Credentials and admission
	mux.HandleFunc("/v1/credentials", e.IssueCredential)
	mux.HandleFunc("/v1/credentials/revoke", e.RevokeCredential)
	mux.HandleFunc("/v1/allowlist", e.AllowListAdd)
	mux.HandleFunc("/v1/allowlist/remove", e.AllowListRemove)
	mux.HandleFunc("/v1/access/validate", e.ValidateAccess)

	// Sessions
	mux.HandleFunc("/v1/sessions", e.Sessions)
	mux.HandleFunc("/v1/sessions/", e.SessionByID)

	return RequestLogger(MetricsMiddleware(e.Metrics)(cors(mux)))
}
