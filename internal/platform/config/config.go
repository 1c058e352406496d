// Package config builds runtime configuration from environment variables so
// main stays lean. Absent optional backends (postgres, redis, kafka) leave the
// engine on its in-memory implementations.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server binary needs at startup.
type Config struct {
	Addr string

	// DatabaseURL enables the postgres ledger store when set.
	DatabaseURL string

	// RedisURL enables the attestation token store and compliance cache.
	RedisURL string

	// KafkaBrokers and KafkaAuditTopic enable the Kafka audit publisher.
	KafkaBrokers    []string
	KafkaAuditTopic string

	// AttestationSigningKey is the shared HMAC key for attestation tokens.
	AttestationSigningKey string
	AttestationIssuer     string

	// AutoMint makes the scheduler mint records whose freeze window elapsed
	// instead of only signaling.
	AutoMint bool

	// SweepInterval is how often the scheduler scans the ledger.
	SweepInterval time.Duration

	// FreezeWindow and RetentionPeriod override policy defaults when set;
	// intended for non-production environments.
	FreezeWindow    time.Duration
	RetentionPeriod time.Duration

	LogLevel string
}

// FromEnv reads configuration from the PROVENANCE_* environment.
func FromEnv() Config {
	return Config{
		Addr:                  envOr("PROVENANCE_ADDR", ":8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic:       envOr("KAFKA_AUDIT_TOPIC", "provenance.audit"),
		AttestationSigningKey: envOr("ATTESTATION_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AttestationIssuer:     os.Getenv("ATTESTATION_ISSUER"),
		AutoMint:              os.Getenv("PROVENANCE_AUTO_MINT") == "true",
		SweepInterval:         envDuration("PROVENANCE_SWEEP_INTERVAL", time.Minute),
		FreezeWindow:          envDuration("PROVENANCE_FREEZE_WINDOW", 0),
		RetentionPeriod:       envDuration("PROVENANCE_RETENTION_PERIOD", 0),
		LogLevel:              envOr("PROVENANCE_LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
