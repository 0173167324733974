package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crawlfence/crawlfence/internal/credential"
	"github.com/crawlfence/crawlfence/internal/detect"
	"github.com/crawlfence/crawlfence/internal/metrics"
	"github.com/crawlfence/crawlfence/internal/session"
	cfg "github.com/crawlfence/crawlfence/pkg/config"
)

// Env carries the handler dependencies. Handlers are methods on Env so
// tests can build one with exactly the pieces they need.
type Env struct {
	Cfg          cfg.Config
	Detector     *detect.Detector
	Credentials  *credential.Store
	SessionStore *session.Store
	Metrics      *metrics.Metrics

	// Ready reports whether downstream dependencies are reachable.
	// Optional; nil means always ready.
	Ready func() error
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Ready != nil {
		if err := e.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// POST /v1/detect?publisher=<id> — classifies the inbound request itself.
// The caller forwards the original visitor headers; the verdict comes back
// as JSON.
func (e Env) Detect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	publisher := r.URL.Query().Get("publisher")
	if publisher == "" {
		publisher = "default"
	}

	v := e.Detector.Detect(r.Context(), r, publisher)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /v1/credentials — issues (or returns the existing active)
// credential for a counterparty.
func (e Env) IssueCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CounterpartyID string `json:"counterparty_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CounterpartyID == "" {
		http.Error(w, "counterparty_id is required", http.StatusBadRequest)
		return
	}

	cred, err := e.Credentials.Issue(r.Context(), req.CounterpartyID)
	if err != nil {
		http.Error(w, "failed to issue credential", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":              cred.ID,
		"token":           cred.Token,
		"counterparty_id": cred.CounterpartyID,
		"status":          cred.Status,
		"created_at":      cred.CreatedAt,
	})
}

// POST /v1/credentials/revoke — permanently disables a credential by id.
func (e Env) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CredentialID string `json:"credential_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CredentialID == "" {
		http.Error(w, "credential_id is required", http.StatusBadRequest)
		return
	}

	found, err := e.Credentials.Revoke(r.Context(), req.CredentialID)
	if err != nil {
		http.Error(w, "failed to revoke credential", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "credential not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"revoked": true})
}

// POST /v1/allowlist — grants a token access to a publisher.
func (e Env) AllowListAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token       string         `json:"token"`
		PublisherID string         `json:"publisher_id"`
		AccessLevel map[string]any `json:"access_level"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.PublisherID == "" {
		http.Error(w, "token and publisher_id are required", http.StatusBadRequest)
		return
	}

	added, err := e.Credentials.AllowListAdd(r.Context(), req.Token, req.PublisherID, req.AccessLevel)
	if err != nil {
		http.Error(w, "failed to update allow-list", http.StatusInternalServerError)
		return
	}
	if !added {
		http.Error(w, "unknown credential", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"added": true})
}

// POST /v1/allowlist/remove — withdraws a token's access to a publisher.
func (e Env) AllowListRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token       string `json:"token"`
		PublisherID string `json:"publisher_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.PublisherID == "" {
		http.Error(w, "token and publisher_id are required", http.StatusBadRequest)
		return
	}

	if err := e.Credentials.AllowListRemove(r.Context(), req.Token, req.PublisherID); err != nil {
		http.Error(w, "failed to update allow-list", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"removed": true})
}

// POST /v1/access/validate — the hot-path admission check: allow-list
// membership, credential status and rate limits, with usage metering on
// success.
func (e Env) ValidateAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token          string         `json:"token"`
		PublisherID    string         `json:"publisher_id"`
		IPAddress      string         `json:"ip_address"`
		UserAgent      string         `json:"user_agent"`
		Path           string         `json:"path"`
		ContentType    string         `json:"content_type"`
		UnitsProcessed int64          `json:"units_processed"`
		ContentBytes   int64          `json:"content_bytes"`
		Metadata       map[string]any `json:"metadata"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.PublisherID == "" {
		http.Error(w, "token and publisher_id are required", http.StatusBadRequest)
		return
	}

	ok, reason, err := e.Credentials.Validate(r.Context(), req.Token, req.PublisherID, credential.RequestContext{
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		Path:           req.Path,
		ContentType:    req.ContentType,
		UnitsProcessed: req.UnitsProcessed,
		ContentBytes:   req.ContentBytes,
		Metadata:       req.Metadata,
	})
	if err != nil {
		http.Error(w, "validation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusForbidden)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"allowed": ok, "reason": reason})
}

// /v1/sessions — POST creates a session, GET lists a subject's sessions.
func (e Env) Sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			UserID string `json:"user_id"`
			Email  string `json:"email"`
			Role   string `json:"user_type"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		id, err := e.SessionStore.Create(r.Context(), session.Subject{
			ID:    req.UserID,
			Email: req.Email,
			Role:  req.Role,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": id})

	case http.MethodGet:
		subject := r.URL.Query().Get("user_id")
		if subject == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		sessions := e.SessionStore.ListForSubject(r.Context(), subject)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"session_ids": ids})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /v1/sessions/{id} — GET fetches and refreshes, DELETE ends.
func (e Env) SessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, ok := e.SessionStore.Get(r.Context(), id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess)

	case http.MethodDelete:
		if !e.SessionStore.End(r.Context(), id) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ended": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// decodeJSON enforces the content type and parses the body. It writes the
// error response itself and reports whether the caller should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}
