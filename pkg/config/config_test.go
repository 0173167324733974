package config

import (
	"testing"
	"time"
)

// TestLoadDefaults tests default configuration values
func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_ADDR", "TRUST_PROXY", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "DATABASE_URL", "AUDIT_OUTPUTS", "AUDIT_PG_TABLE",
		"SESSION_TTL",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.ServerAddr != ":19790" {
		t.Errorf("ServerAddr = %q, want :19790", cfg.ServerAddr)
	}
	if cfg.TrustProxy {
		t.Error("TrustProxy = true, want false")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
	if len(cfg.AuditOutputs) != 1 || cfg.AuditOutputs[0] != "log" {
		t.Errorf("AuditOutputs = %v, want [log]", cfg.AuditOutputs)
	}
	if cfg.AuditTable != "audit_records" {
		t.Errorf("AuditTable = %q, want audit_records", cfg.AuditTable)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.SessionTTL)
	}
}

// TestLoadFromEnv tests environment variable overrides
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":8088")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("REDIS_ADDR", "redis-1:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/crawlfence")
	t.Setenv("AUDIT_OUTPUTS", "log, postgres")
	t.Setenv("AUDIT_PG_TABLE", "audit_custom")
	t.Setenv("SESSION_TTL", "15m")

	cfg := Load()

	if cfg.ServerAddr != ":8088" {
		t.Errorf("ServerAddr = %q, want :8088", cfg.ServerAddr)
	}
	if !cfg.TrustProxy {
		t.Error("TrustProxy = false, want true")
	}
	if cfg.RedisAddr != "redis-1:6380" || cfg.RedisDB != 3 {
		t.Errorf("redis = %q/%d, want redis-1:6380/3", cfg.RedisAddr, cfg.RedisDB)
	}
	if len(cfg.AuditOutputs) != 2 || cfg.AuditOutputs[1] != "postgres" {
		t.Errorf("AuditOutputs = %v, want trimmed [log postgres]", cfg.AuditOutputs)
	}
	if cfg.AuditTable != "audit_custom" {
		t.Errorf("AuditTable = %q, want audit_custom", cfg.AuditTable)
	}
	if cfg.SessionTTL != 15*time.Minute {
		t.Errorf("SessionTTL = %v, want 15m", cfg.SessionTTL)
	}
}

// TestHelpers tests the env parsing helpers on malformed input
func TestHelpers(t *testing.T) {
	t.Run("getInt ignores garbage", func(t *testing.T) {
		t.Setenv("REDIS_DB", "not-a-number")
		if got := getInt("REDIS_DB", 7); got != 7 {
			t.Errorf("getInt = %d, want fallback 7", got)
		}
	})

	t.Run("getDuration ignores garbage", func(t *testing.T) {
		t.Setenv("SESSION_TTL", "soon")
		if got := getDuration("SESSION_TTL", time.Minute); got != time.Minute {
			t.Errorf("getDuration = %v, want fallback 1m", got)
		}
	})

	t.Run("getBool variants", func(t *testing.T) {
		for v, want := range map[string]bool{"1": true, "yes": true, "T": true, "0": false, "no": false} {
			t.Setenv("TRUST_PROXY", v)
			if got := getBool("TRUST_PROXY", !want); got != want {
				t.Errorf("getBool(%q) = %v, want %v", v, got, want)
			}
		}
	})

	t.Run("getStringSlice drops empty entries", func(t *testing.T) {
		t.Setenv("AUDIT_OUTPUTS", "log,, kafka ,")
		got := getStringSlice("AUDIT_OUTPUTS", "log")
		if len(got) != 2 || got[0] != "log" || got[1] != "kafka" {
			t.Errorf("getStringSlice = %v, want [log kafka]", got)
		}
	})
}
