// Package credential manages long-lived access credentials: issuance,
// per-publisher allow-listing, validation against rate limits, usage
// metering and revocation. Durable state lives in Postgres; a cached
// summary per token serves the fast validation path.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/crawlfence/crawlfence/internal/audit"
	"github.com/crawlfence/crawlfence/internal/metrics"
	"github.com/crawlfence/crawlfence/internal/ratelimit"
)

const summaryTTL = 30 * 24 * time.Hour

// Validation rejection reasons.
const (
	ReasonNotAllowListed    = "not_allowlisted"
	ReasonRateLimited       = "rate_limited"
	ReasonUnknownCredential = "unknown_credential"
	ReasonCacheUnavailable  = "allowlist_unavailable"
)

// Summary is the cached fast-path view of a credential.
type Summary struct {
	ID             string           `json:"id"`
	CounterpartyID string           `json:"counterparty_id"`
	Status         Status           `json:"status"`
	CreatedAt      string           `json:"created_at"`
	RateLimits     ratelimit.Limits `json:"rate_limits"`
}

// RequestContext carries the metered attributes of a validated request.
type RequestContext struct {
	IPAddress      string
	UserAgent      string
	Path           string
	ContentType    string
	UnitsProcessed int64
	ContentBytes   int64
	Metadata       map[string]interface{}
}

// Store coordinates the durable credential records, their cached
// summaries, the per-publisher allow-lists and the rate limiter.
type Store struct {
	durable durable
	rdb     *redis.Client
	limiter *ratelimit.Limiter

	// Emit hands usage records to the audit pipeline. Optional.
	Emit func(audit.Record) error

	// Metrics is optional.
	Metrics *metrics.Metrics

	now func() time.Time
}

// NewStore builds a Store over a gorm handle and the shared cache.
func NewStore(db *gorm.DB, rdb *redis.Client, limiter *ratelimit.Limiter) *Store {
	return &Store{
		durable: &gormDurable{db: db},
		rdb:     rdb,
		limiter: limiter,
		now:     time.Now,
	}
}

// Migrate creates the credential tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccessCredential{}, &UsageRecord{})
}

func summaryKey(token string) string {
	return fmt.Sprintf("token_info:%s", token)
}

func allowListKey(publisher string) string {
	return fmt.Sprintf("publisher:%s:allowed_tokens", publisher)
}

func accessLevelKey(publisher, token string) string {
	return fmt.Sprintf("publisher:%s:token:%s", publisher, token)
}

// mintToken builds an opaque credential string embedding a random nonce
// and the issuance time.
func mintToken(now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credential: nonce: %w", err)
	}
	return fmt.Sprintf("cfk_%s%x", hex.EncodeToString(nonce), now.Unix()), nil
}

// Issue returns the counterparty's Active credential, minting one if none
// exists. Issuance is idempotent while a credential remains Active.
func (s *Store) Issue(ctx context.Context, counterparty string) (*AccessCredential, error) {
	existing, err := s.durable.ActiveByCounterparty(ctx, counterparty)
	if err != nil {
		return nil, fmt.Errorf("credential: lookup for %s: %w", counterparty, err)
	}
	if existing != nil {
		log.Printf("credential: %s already holds active credential %s", counterparty, existing.ID)
		return existing, nil
	}

	now := s.now().UTC()
	token, err := mintToken(now)
	if err != nil {
		return nil, err
	}

	cred := &AccessCredential{
		ID:             uuid.NewString(),
		Token:          token,
		CounterpartyID: counterparty,
		Status:         StatusActive,
		CreatedAt:      now,
		Settings: map[string]interface{}{
			"creation_date": now.Format(time.RFC3339),
		},
		Metadata: map[string]interface{}{
			"created_via": "counterparty_setup",
		},
	}

	if err := s.durable.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("credential: create for %s: %w", counterparty, err)
	}

	s.cacheSummary(ctx, cred)

	log.Printf("credential: issued %s to %s", cred.ID, counterparty)
	return cred, nil
}

// cacheSummary writes the fast-path summary record. Failures are logged,
// not fatal: the summary can be refreshed later.
func (s *Store) cacheSummary(ctx context.Context, cred *AccessCredential) {
	sum := Summary{
		ID:             cred.ID,
		CounterpartyID: cred.CounterpartyID,
		Status:         cred.Status,
		CreatedAt:      cred.CreatedAt.Format(time.RFC3339),
		RateLimits:     limitsFromSettings(cred.Settings),
	}
	b, _ := json.Marshal(sum)
	if err := s.rdb.Set(ctx, summaryKey(cred.Token), b, summaryTTL).Err(); err != nil {
		log.Printf("credential: summary cache write: %v", err)
	}
}

func limitsFromSettings(settings map[string]interface{}) ratelimit.Limits {
	limits := ratelimit.Limits{}
	raw, ok := settings["rate_limits"].(map[string]interface{})
	if !ok {
		return limits
	}
	if v, ok := raw["per_minute"].(float64); ok {
		limits.PerMinute = int64(v)
	}
	if v, ok := raw["per_day"].(float64); ok {
		limits.PerDay = int64(v)
	}
	if v, ok := raw["per_month"].(float64); ok {
		limits.PerMonth = int64(v)
	}
	return limits
}

// CachedSummary resolves a token through the fast path. A cache error
// behaves as "no summary".
func (s *Store) CachedSummary(ctx context.Context, token string) (*Summary, bool) {
	raw, err := s.rdb.Get(ctx, summaryKey(token)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("credential: summary cache read: %v", err)
		return nil, false
	}
	var sum Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		log.Printf("credential: malformed summary for token: %v", err)
		return nil, false
	}
	return &sum, true
}

// AllowListAdd grants a credential access to a publisher. The credential
// must resolve via the fast path. The set membership and access-level
// payload are written together so a half-added entry cannot exist.
func (s *Store) AllowListAdd(ctx context.Context, token, publisher string, accessLevel map[string]interface{}) (bool, error) {
	if _, ok := s.CachedSummary(ctx, token); !ok {
		return false, nil
	}

	payload := map[string]interface{}{
		"added_at":     s.now().UTC().Format(time.RFC3339),
		"access_level": accessLevel,
	}
	if accessLevel == nil {
		payload["access_level"] = map[string]interface{}{}
	}
	b, _ := json.Marshal(payload)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, allowListKey(publisher), token)
		pipe.Set(ctx, accessLevelKey(publisher, token), b, 0)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("credential: allow-list add for %s: %w", publisher, err)
	}

	log.Printf("credential: token added to publisher %s allow-list", publisher)
	return true, nil
}

// AllowListRemove drops a credential from a publisher's allow-list.
// Idempotent: removing a non-member is not an error.
func (s *Store) AllowListRemove(ctx context.Context, token, publisher string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, allowListKey(publisher), token)
		pipe.Del(ctx, accessLevelKey(publisher, token))
		return nil
	})
	if err != nil {
		return fmt.Errorf("credential: allow-list remove for %s: %w", publisher, err)
	}
	return nil
}

// Validate admits or rejects a credentialed request for a publisher.
// Checks short-circuit in order: allow-list membership, rate limits,
// summary resolution. On success the usage is recorded before returning;
// a usage-recording failure is returned as err because silently dropping
// a billable record is unacceptable.
func (s *Store) Validate(ctx context.Context, token, publisher string, reqCtx RequestContext) (ok bool, reason string, err error) {
	defer func() {
		if s.Metrics != nil {
			s.Metrics.ObserveValidation(ok, reason)
		}
	}()

	member, merr := s.rdb.SIsMember(ctx, allowListKey(publisher), token).Result()
	if merr != nil {
		log.Printf("credential: allow-list check: %v", merr)
		return false, ReasonCacheUnavailable, nil
	}
	if !member {
		return false, ReasonNotAllowListed, nil
	}

	sum, found := s.CachedSummary(ctx, token)
	limits := ratelimit.Limits{}
	if found {
		limits = sum.RateLimits
	}

	res := s.limiter.Allow(ctx, token, publisher, limits)
	if !res.Allowed {
		log.Printf("credential: rate limit exceeded publisher=%s window=%s count=%d limit=%d",
			publisher, res.Window, res.Count, res.Limit)
		if s.Metrics != nil {
			s.Metrics.RateLimitRejections.WithLabelValues(res.Window).Inc()
		}
		return false, ReasonRateLimited, nil
	}

	// The summary must still resolve; a revoked credential loses its
	// summary and stops passing here even before allow-list cleanup.
	if !found {
		return false, ReasonUnknownCredential, nil
	}

	if err := s.recordUsage(ctx, token, publisher, reqCtx); err != nil {
		return false, "", fmt.Errorf("credential: record usage: %w", err)
	}

	return true, "", nil
}

func (s *Store) recordUsage(ctx context.Context, token, publisher string, reqCtx RequestContext) error {
	rec := &UsageRecord{
		PublisherID:    publisher,
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
		Path:           reqCtx.Path,
		ContentType:    reqCtx.ContentType,
		UnitsProcessed: reqCtx.UnitsProcessed,
		ContentBytes:   reqCtx.ContentBytes,
		Metadata:       reqCtx.Metadata,
	}

	if err := s.durable.RecordUsage(ctx, token, rec); err != nil {
		return err
	}

	if s.Emit != nil {
		arec := audit.NewRecord(audit.KindUsage)
		arec.CredentialID = rec.CredentialID
		arec.PublisherID = publisher
		arec.IPAddress = reqCtx.IPAddress
		arec.UserAgent = reqCtx.UserAgent
		arec.Path = reqCtx.Path
		arec.ContentType = reqCtx.ContentType
		arec.UnitsProcessed = reqCtx.UnitsProcessed
		arec.ContentBytes = reqCtx.ContentBytes
		if err := s.Emit(arec); err != nil {
			log.Printf("credential: audit emit: %v", err)
		}
	}

	return nil
}

// Revoke sets the credential's durable status to Revoked, then best-effort
// removes it from every publisher's allow-list and deletes its cached
// summary. The durable status change must succeed for revocation to be
// reported successful; downstream cleanup failures are logged only.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	cred, err := s.durable.ByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("credential: revoke lookup %s: %w", id, err)
	}
	if cred == nil {
		log.Printf("credential: revoke: %s not found", id)
		return false, nil
	}

	if err := s.durable.MarkRevoked(ctx, id, s.now().UTC()); err != nil {
		return false, fmt.Errorf("credential: revoke %s: %w", id, err)
	}

	// Defense-in-depth cleanup: scan every publisher allow-list. O(number
	// of publishers), acceptable because revocation is rare and not
	// latency-critical.
	iter := s.rdb.Scan(ctx, 0, "publisher:*:allowed_tokens", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.SRem(ctx, iter.Val(), cred.Token).Err(); err != nil {
			log.Printf("credential: revoke cleanup %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("credential: revoke scan: %v", err)
	}

	if err := s.rdb.Del(ctx, summaryKey(cred.Token)).Err(); err != nil {
		log.Printf("credential: revoke summary delete: %v", err)
	}

	log.Printf("credential: revoked %s", id)
	return true, nil
}
