// Package config assembles the engine's runtime configuration from the
// environment so composition roots stay lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage points the engine at its backing services. Empty values mean the
// in-memory implementations are used instead.
type Storage struct {
	PostgresDSN string
	RedisURL    string
	// KafkaBrokers enables the Kafka audit publisher when non-empty.
	KafkaBrokers []string
}

// Policy carries the tunable decision parameters. Zero values defer to each
// component's defaults.
type Policy struct {
	// CredentialMinAge is how long a credential must be bound before it can
	// support the strongest tier.
	CredentialMinAge time.Duration
	// FraudWindow is the trailing fraud-free window the strongest tier
	// requires.
	FraudWindow time.Duration
	// AbuseThreshold is how many throttle events raise one abuse signal.
	AbuseThreshold int
	// ResourceEpsilonBudget bounds cumulative privacy spend per resource.
	ResourceEpsilonBudget float64
	// MinK is the smallest cohort size any aggregation may release.
	MinK int
}

// Core is the full engine configuration.
type Core struct {
	Storage Storage
	Policy  Policy
	// AuditBuffer sizes the in-process audit event channel.
	AuditBuffer int
	LogLevel    string
}

// FromEnv builds a Core config from environment variables.
func FromEnv() Core {
	return Core{
		Storage: Storage{
			PostgresDSN:  os.Getenv("QUORUM_POSTGRES_DSN"),
			RedisURL:     os.Getenv("QUORUM_REDIS_URL"),
			KafkaBrokers: envList("QUORUM_KAFKA_BROKERS"),
		},
		Policy: Policy{
			CredentialMinAge:      envDuration("QUORUM_CREDENTIAL_MIN_AGE"),
			FraudWindow:           envDuration("QUORUM_FRAUD_WINDOW"),
			AbuseThreshold:        envInt("QUORUM_ABUSE_THRESHOLD"),
			ResourceEpsilonBudget: envFloat("QUORUM_EPSILON_BUDGET"),
			MinK:                  envInt("QUORUM_MIN_K"),
		},
		AuditBuffer: envIntDefault("QUORUM_AUDIT_BUFFER", 1024),
		LogLevel:    envDefault("QUORUM_LOG_LEVEL", "info"),
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envDuration(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

func envIntDefault(key string, fallback int) int {
	if n := envInt(key); n > 0 {
		return n
	}
	return fallback
}

func envFloat(key string) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return f
}
