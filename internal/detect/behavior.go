package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	// historyDepth is the number of recent requests retained per
	// (publisher, address) pair.
	historyDepth = 100
	// minBehaviorSamples is the minimum number of timestamped entries
	// required before behavioral statistics mean anything.
	minBehaviorSamples = 10

	historyTTLSeconds = 3600
)

// historyEntry is one recorded request in the shared cache.
type historyEntry struct {
	Timestamp  float64 `json:"timestamp"` // epoch seconds
	Path       string  `json:"path"`
	Method     string  `json:"method"`
	IsBot      bool    `json:"is_bot"`
	Confidence float64 `json:"confidence"`
}

func historyKey(publisher, addr string) string {
	return fmt.Sprintf("requests:%s:%s", publisher, addr)
}

// analyzeBehavior inspects the recent request history for a client and
// derives rate and inter-arrival statistics. Cache failures and malformed
// entries are swallowed: behavioral signals are best-effort and must never
// fail the request.
func analyzeBehavior(ctx context.Context, rdb *redis.Client, publisher, addr string) []contribution {
	entries, err := rdb.LRange(ctx, historyKey(publisher, addr), 0, historyDepth-1).Result()
	if err != nil {
		log.Printf("detect: behavior history read: %v", err)
		return nil
	}

	timestamps := make([]float64, 0, len(entries))
	for _, raw := range entries {
		var e historyEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("detect: malformed history entry: %v", err)
			continue
		}
		// An absent timestamp unmarshals to zero and would drag the
		// window span down to the epoch.
		if e.Timestamp <= 0 {
			continue
		}
		timestamps = append(timestamps, e.Timestamp)
	}

	if len(timestamps) < minBehaviorSamples {
		return nil
	}

	minTS, maxTS := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
	}

	span := maxTS - minTS
	if span <= 0 {
		return nil
	}

	var out []contribution

	if rps := float64(len(timestamps)) / span; rps > 10 {
		out = append(out, contribution{confidence: 0.8, method: "high_frequency", flagsBot: true})
	}

	// Zero variance across every consecutive interval means a programmatic,
	// non-jittered cadence. Humans don't click on a metronome.
	intervals := make(map[float64]struct{}, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals[timestamps[i]-timestamps[i-1]] = struct{}{}
	}
	if len(intervals) == 1 {
		out = append(out, contribution{confidence: 0.9, method: "consistent_timing", flagsBot: true})
	}

	return out
}
