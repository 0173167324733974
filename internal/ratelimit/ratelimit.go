// Package ratelimit implements sliding fixed-window counters over the
// shared cache. Each check increments a minute, day and month counter for
// the (credential, publisher) pair and compares the post-increment counts
// against the credential's limits: the request that causes an overage is
// itself counted, so limits are inclusive of the breaching request. That
// off-by-one relative to a look-ahead limiter is the contract, not a bug.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits are the per-window request budgets for a credential.
type Limits struct {
	PerMinute int64 `json:"per_minute"`
	PerDay    int64 `json:"per_day"`
	PerMonth  int64 `json:"per_month"`
}

// DefaultLimits applies when a credential carries no explicit settings.
var DefaultLimits = Limits{PerMinute: 60, PerDay: 5000, PerMonth: 100000}

// Result reports the limiter's decision. When denied, Window names the
// exhausted window and Count/Limit carry the numbers behind the decision.
type Result struct {
	Allowed bool
	Window  string
	Count   int64
	Limit   int64
}

type window struct {
	name   string
	layout string
	ttl    time.Duration
}

// Bucket labels are derived from UTC time truncated to the window
// granularity; TTLs equal the window length so counters expire on
// their own.
var windows = []window{
	{"minute", "200601021504", 60 * time.Second},
	{"daily", "20060102", 86400 * time.Second},
	{"monthly", "200601", 2592000 * time.Second},
}

// Limiter checks request budgets against the shared cache.
type Limiter struct {
	rdb *redis.Client

	// Now is the time source; overridable for tests.
	Now func() time.Time
}

func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, Now: time.Now}
}

func key(credential, publisher, kind, bucket string) string {
	return fmt.Sprintf("rate_limits:%s:%s:%s:%s", credential, publisher, kind, bucket)
}

// Allow increments all three window counters for the pair and reports
// whether every post-increment count is within its limit. Increment and
// TTL-set run as one atomic batch per window so a crash cannot leave a
// counter that never expires. On cache failure the limiter fails open:
// availability wins over strict enforcement for this signal.
func (l *Limiter) Allow(ctx context.Context, credential, publisher string, limits Limits) Result {
	if limits.PerMinute <= 0 {
		limits.PerMinute = DefaultLimits.PerMinute
	}
	if limits.PerDay <= 0 {
		limits.PerDay = DefaultLimits.PerDay
	}
	if limits.PerMonth <= 0 {
		limits.PerMonth = DefaultLimits.PerMonth
	}

	now := l.Now().UTC()

	incrs := make([]*redis.IntCmd, len(windows))
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, w := range windows {
			k := key(credential, publisher, w.name, now.Format(w.layout))
			incrs[i] = pipe.Incr(ctx, k)
			pipe.Expire(ctx, k, w.ttl)
		}
		return nil
	})
	if err != nil {
		log.Printf("ratelimit: cache unavailable, failing open: %v", err)
		return Result{Allowed: true}
	}

	budgets := []int64{limits.PerMinute, limits.PerDay, limits.PerMonth}
	for i, w := range windows {
		count := incrs[i].Val()
		if count > budgets[i] {
			return Result{Allowed: false, Window: w.name, Count: count, Limit: budgets[i]}
		}
	}

	return Result{Allowed: true}
}
