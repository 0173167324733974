package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	reputationTTL = 24 * time.Hour

	// Scores below this mark an address as suspicious.
	reputationThreshold = 0.5
	// Score written when high-confidence bot activity is observed.
	derogatoryScore = 0.3
)

// reputationRecord is the cached derogatory score for a network address.
// Lower scores are more suspicious. Records are overwritten, not merged.
type reputationRecord struct {
	Score            float64  `json:"score"`
	LastUpdated      float64  `json:"last_updated"`
	DetectionMethods []string `json:"detection_methods"`
}

func reputationKey(addr string) string {
	return fmt.Sprintf("ip_reputation:%s", addr)
}

// checkReputation reads the reputation record for an address. A read
// failure or missing/garbled record behaves as "no derogatory signal".
func checkReputation(ctx context.Context, rdb *redis.Client, addr string) []contribution {
	raw, err := rdb.Get(ctx, reputationKey(addr)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("detect: reputation read: %v", err)
		return nil
	}

	var rec reputationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil
	}

	if rec.Score < reputationThreshold {
		return []contribution{{confidence: 0.7, method: "ip_reputation", flagsBot: true}}
	}
	return nil
}

// writeReputation overwrites the record for an address with a derogatory
// score. Write failures are logged and swallowed.
func writeReputation(ctx context.Context, rdb *redis.Client, addr string, methods []string, now time.Time) {
	rec := reputationRecord{
		Score:            derogatoryScore,
		LastUpdated:      float64(now.UnixNano()) / 1e9,
		DetectionMethods: methods,
	}
	b, _ := json.Marshal(rec)
	if err := rdb.Set(ctx, reputationKey(addr), b, reputationTTL).Err(); err != nil {
		log.Printf("detect: reputation write: %v", err)
	}
}
