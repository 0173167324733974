// Package audit is the asynchronous durable-record pipeline. Detection
// verdicts and credential usage are enqueued as Records and fanned out to
// one or more sinks (log, Kafka, Postgres). Enqueue failures are reported
// to the caller but are never allowed to fail the originating request.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record kinds.
const (
	KindDetection = "detection"
	KindUsage     = "usage"
)

// Record is one audit entry. Detection records carry the pre-corroboration
// verdict; usage records carry metered credential access.
type Record struct {
	ID   string `json:"id"`
	TS   string `json:"ts"` // ISO8601
	Kind string `json:"kind"`

	PublisherID  string `json:"publisher_id,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method,omitempty"`

	// Detection fields.
	IsBot            bool     `json:"is_bot,omitempty"`
	IsAICrawler      bool     `json:"is_ai_crawler,omitempty"`
	AgentName        string   `json:"agent_name,omitempty"`
	AgentCategory    string   `json:"agent_category,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
	DetectionMethods []string `json:"detection_methods,omitempty"`

	// Usage fields.
	UnitsProcessed int64  `json:"units_processed,omitempty"`
	ContentBytes   int64  `json:"content_bytes,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
}

// NewRecord returns a Record with identity and timestamp filled in.
func NewRecord(kind string) Record {
	return Record{
		ID:   uuid.NewString(),
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Kind: kind,
	}
}
