package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerAddr string
	TrustProxy bool

	// Redis (shared cache for detection history, reputation, rate limits,
	// allow-lists, credential summaries and sessions).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Postgres DSN for durable credential and usage storage.
	DatabaseURL string

	// Audit pipeline outputs: log, kafka, postgres.
	AuditOutputs []string
	AuditTable   string // table name for the postgres audit sink

	SessionTTL time.Duration
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:    getOr("SERVER_ADDR", ":19790"),
		TrustProxy:    getBool("TRUST_PROXY", false),
		RedisAddr:     getOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getOr("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		DatabaseURL:   getOr("DATABASE_URL", ""),
		AuditOutputs:  getStringSlice("AUDIT_OUTPUTS", "log"),
		AuditTable:    getOr("AUDIT_PG_TABLE", "audit_records"),
		SessionTTL:    getDuration("SESSION_TTL", 30*time.Minute),
	}
}
