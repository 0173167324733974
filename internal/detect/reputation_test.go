package detect

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// TestCheckReputation tests the derogatory-score read path
func TestCheckReputation(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		_, rdb := testRedis(t)
		if out := checkReputation(ctx, rdb, "1.2.3.4"); len(out) != 0 {
			t.Errorf("contributions = %v, want none", out)
		}
	})

	t.Run("derogatory score flags the address", func(t *testing.T) {
		mr, rdb := testRedis(t)
		b, _ := json.Marshal(reputationRecord{Score: 0.3, LastUpdated: 1000})
		mr.Set(reputationKey("1.2.3.4"), string(b))

		out := checkReputation(ctx, rdb, "1.2.3.4")
		if len(out) != 1 {
			t.Fatalf("contributions = %d, want 1", len(out))
		}
		c := out[0]
		if c.method != "ip_reputation" || c.confidence != 0.7 || !c.flagsBot {
			t.Errorf("got %+v, want ip_reputation 0.7 flagging bot", c)
		}
	})

	t.Run("clean score passes", func(t *testing.T) {
		mr, rdb := testRedis(t)
		b, _ := json.Marshal(reputationRecord{Score: 0.9, LastUpdated: 1000})
		mr.Set(reputationKey("1.2.3.4"), string(b))

		if out := checkReputation(ctx, rdb, "1.2.3.4"); len(out) != 0 {
			t.Errorf("contributions = %v, want none", out)
		}
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		mr, rdb := testRedis(t)
		b, _ := json.Marshal(reputationRecord{Score: 0.5})
		mr.Set(reputationKey("1.2.3.4"), string(b))

		if out := checkReputation(ctx, rdb, "1.2.3.4"); len(out) != 0 {
			t.Errorf("contributions = %v, want none at exactly 0.5", out)
		}
	})

	t.Run("garbled record behaves as clean", func(t *testing.T) {
		mr, rdb := testRedis(t)
		mr.Set(reputationKey("1.2.3.4"), "{nope")

		if out := checkReputation(ctx, rdb, "1.2.3.4"); len(out) != 0 {
			t.Errorf("contributions = %v, want none", out)
		}
	})
}

// TestWriteReputation tests the derogatory-score write path
func TestWriteReputation(t *testing.T) {
	ctx := context.Background()
	mr, rdb := testRedis(t)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	writeReputation(ctx, rdb, "1.2.3.4", []string{"ua_parser", "browser_fingerprint"}, now)

	raw, err := mr.Get(reputationKey("1.2.3.4"))
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	var rec reputationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Score != 0.3 {
		t.Errorf("Score = %v, want 0.3", rec.Score)
	}
	if len(rec.DetectionMethods) != 2 {
		t.Errorf("DetectionMethods = %v, want the two contributing methods", rec.DetectionMethods)
	}

	ttl := mr.TTL(reputationKey("1.2.3.4"))
	if ttl != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", ttl)
	}

	// A later write overwrites, never merges.
	writeReputation(ctx, rdb, "1.2.3.4", []string{"known_pattern"}, now.Add(time.Hour))
	raw, _ = mr.Get(reputationKey("1.2.3.4"))
	_ = json.Unmarshal([]byte(raw), &rec)
	if len(rec.DetectionMethods) != 1 || rec.DetectionMethods[0] != "known_pattern" {
		t.Errorf("DetectionMethods = %v, want overwritten value", rec.DetectionMethods)
	}
}
