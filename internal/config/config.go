// Package config provides a minimal environment-backed configuration loader
// used by the ledger bootstrap (cmd/ledger/main.go), in the same spirit as
// kernel/internal/config/config.go: a flat struct, permissive strconv
// parsing, explicit defaults, no config file or flag library.
package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultAdminPasswordPlaceholder is the value ADMIN_PASSWORD ships with in
// every environment template; a deployment that never overrides it has not
// actually configured a master operator and master auth stays disabled.
const DefaultAdminPasswordPlaceholder = "change-this-in-dashboard"

// DefaultCORSOriginPlaceholder mirrors the same idea for CORS_ORIGIN.
const DefaultCORSOriginPlaceholder = "*"

const (
	defaultListenAddr                = ":8080"
	defaultAuditIngestTimeoutMs       = 5000
	defaultConfirmationScanLimit      = 500
	defaultSearchCacheTTLSeconds      = 30
	defaultJWKSStyleSessionTTLMinutes = 60
)

// Config holds every environment-derived runtime setting the ledger reads.
type Config struct {
	ListenAddr string // LISTEN_ADDR

	DatabaseURL            string // DATABASE_URL — optional durable shard store
	SearchIndexDatabaseURL string // SEARCH_INDEX_DATABASE_URL — optional SQL-backed search index

	AdminPassword      string // ADMIN_PASSWORD
	AdminDemoPassword  string // ADMIN_DEMO_PASSWORD
	AdminSessionSecret string // ADMIN_SESSION_SECRET
	SessionTTLMinutes  int

	PopSignerSecretKeyB64 string // POP_SIGNER_SECRET_KEY_B64
	PopSignerPubkeyB58    string // POP_SIGNER_PUBKEY
	EnforceOnchainPop     bool   // ENFORCE_ONCHAIN_POP

	AuditImmutableMode      string // AUDIT_IMMUTABLE_MODE
	AuditIngestURL          string // AUDIT_IMMUTABLE_INGEST_URL
	AuditIngestToken        string // AUDIT_IMMUTABLE_INGEST_TOKEN
	AuditIngestTimeoutMs    int    // AUDIT_IMMUTABLE_INGEST_FETCH_TIMEOUT_MS
	ConfirmationScanLimit   int    // CONFIRMATION_CODE_SCAN_LIMIT
	SearchCacheTTLSeconds   int    // SEARCH_CACHE_TTL_SECONDS

	S3Bucket string // S3_BUCKET
	S3Prefix string // S3_PREFIX

	KVIndexRedisAddr string // KV_INDEX_REDIS_ADDR

	KafkaBrokers []string // KAFKA_BROKERS (comma-separated)
	KafkaTopic   string   // KAFKA_TOPIC

	CORSOrigin string // CORS_ORIGIN
}

// LoadFromEnv reads every recognized environment variable and returns a
// populated Config, applying the same defaults the spec calls out.
func LoadFromEnv() *Config {
	cfg := &Config{
		ListenAddr: os.Getenv("LISTEN_ADDR"),

		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SearchIndexDatabaseURL: os.Getenv("SEARCH_INDEX_DATABASE_URL"),

		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		AdminDemoPassword:  os.Getenv("ADMIN_DEMO_PASSWORD"),
		AdminSessionSecret: os.Getenv("ADMIN_SESSION_SECRET"),

		PopSignerSecretKeyB64: os.Getenv("POP_SIGNER_SECRET_KEY_B64"),
		PopSignerPubkeyB58:    os.Getenv("POP_SIGNER_PUBKEY"),

		AuditImmutableMode: os.Getenv("AUDIT_IMMUTABLE_MODE"),
		AuditIngestURL:     os.Getenv("AUDIT_IMMUTABLE_INGEST_URL"),
		AuditIngestToken:   os.Getenv("AUDIT_IMMUTABLE_INGEST_TOKEN"),

		S3Bucket: os.Getenv("S3_BUCKET"),
		S3Prefix: os.Getenv("S3_PREFIX"),

		KVIndexRedisAddr: os.Getenv("KV_INDEX_REDIS_ADDR"),

		KafkaTopic: os.Getenv("KAFKA_TOPIC"),

		CORSOrigin: os.Getenv("CORS_ORIGIN"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		parts := strings.Split(raw, ",")
		brokers := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				brokers = append(brokers, p)
			}
		}
		cfg.KafkaBrokers = brokers
	}

	// ENFORCE_ONCHAIN_POP defaults true; any of 0/false/off/no disables it.
	cfg.EnforceOnchainPop = true
	if v := strings.TrimSpace(os.Getenv("ENFORCE_ONCHAIN_POP")); v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "off", "no":
			cfg.EnforceOnchainPop = false
		}
	}

	cfg.AuditIngestTimeoutMs = defaultAuditIngestTimeoutMs
	if v := os.Getenv("AUDIT_IMMUTABLE_INGEST_FETCH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AuditIngestTimeoutMs = n
		}
	}

	cfg.ConfirmationScanLimit = defaultConfirmationScanLimit
	if v := os.Getenv("CONFIRMATION_CODE_SCAN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConfirmationScanLimit = n
		}
	}

	cfg.SearchCacheTTLSeconds = defaultSearchCacheTTLSeconds
	if v := os.Getenv("SEARCH_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SearchCacheTTLSeconds = n
		}
	}

	cfg.SessionTTLMinutes = defaultJWKSStyleSessionTTLMinutes
	if v := os.Getenv("ADMIN_SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLMinutes = n
		}
	}

	return cfg
}

// MasterAuthEnabled reports whether ADMIN_PASSWORD has actually been set to
// something other than the shipped placeholder.
func (c *Config) MasterAuthEnabled() bool {
	return c.AdminPassword != "" && c.AdminPassword != DefaultAdminPasswordPlaceholder
}

// DemoAuthEnabled reports whether ADMIN_DEMO_PASSWORD is present.
func (c *Config) DemoAuthEnabled() bool {
	return c.AdminDemoPassword != ""
}

// CORSOriginIsDefault reports whether CORS_ORIGIN is unset or still the
// placeholder — a warning-only condition per the readiness checks.
func (c *Config) CORSOriginIsDefault() bool {
	return c.CORSOrigin == "" || c.CORSOrigin == DefaultCORSOriginPlaceholder
}
