package credential

import (
	"time"

	"gorm.io/datatypes"
)

// Status of an access credential. Active -> Revoked is the only driven
// transition and is terminal; Expired and Suspended are reserved for
// future policy.
type Status string

const (
	StatusActive    Status = "active"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// AccessCredential is the durable record of a long-lived access token
// issued to a counterparty. Rows are never deleted; revocation is a
// status change.
type AccessCredential struct {
	ID string `gorm:"primaryKey;size:36"`

	// Token is the opaque credential string presented by callers.
	Token string `gorm:"uniqueIndex;size:255;not null"`

	// CounterpartyID identifies the crawler operator the credential
	// was issued to.
	CounterpartyID string `gorm:"index;not null;size:64"`

	Status    Status `gorm:"index;size:16;not null"`
	CreatedAt time.Time
	RevokedAt *time.Time

	TotalRequests       int64 `gorm:"not null;default:0"`
	TotalUnitsProcessed int64 `gorm:"not null;default:0"`

	Settings datatypes.JSONMap `gorm:"type:json"`
	Metadata datatypes.JSONMap `gorm:"type:json"`
}

// UsageRecord is one metered, billable credential access.
type UsageRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	CredentialID string `gorm:"index;not null;size:36"`
	PublisherID  string `gorm:"index;not null;size:64"`

	IPAddress   string `gorm:"size:64"`
	UserAgent   string `gorm:"size:512"`
	Path        string `gorm:"size:512"`
	ContentType string `gorm:"size:128"`

	UnitsProcessed int64
	ContentBytes   int64

	Metadata datatypes.JSONMap `gorm:"type:json"`
}
