package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration for the lifecycle subsystem.
// FromEnv builds it from environment variables so main stays lean.
type Config struct {
	// MasterPassphrase seeds the per-category keyring. Category keys are
	// derived once at startup; there is no runtime rotation.
	MasterPassphrase string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Sweep    SweepConfig
}

// PostgresConfig holds connection settings for the record store backend.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds connection settings for the erasure-request registry.
// An empty URL disables Redis (the in-memory registry is used instead).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit outbox relay. Empty Brokers
// disables the relay; audit rows still land in the store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SweepConfig controls the retention sweep daemon.
type SweepConfig struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string
	// Jitter delays each run by a random duration in [0, Jitter) so
	// replicas started together do not sweep in lockstep.
	Jitter time.Duration
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	cfg := Config{
		MasterPassphrase: getEnv("CUSTODIAN_MASTER_PASSPHRASE", "dev-passphrase-change-in-production"),
		Postgres: PostgresConfig{
			URL:          os.Getenv("CUSTODIAN_POSTGRES_URL"),
			MaxOpenConns: getEnvInt("CUSTODIAN_POSTGRES_MAX_OPEN", 10),
			MaxIdleConns: getEnvInt("CUSTODIAN_POSTGRES_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTODIAN_REDIS_URL"),
			PoolSize:     getEnvInt("CUSTODIAN_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("CUSTODIAN_REDIS_MIN_IDLE", 2),
			DialTimeout:  getEnvDuration("CUSTODIAN_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("CUSTODIAN_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("CUSTODIAN_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("CUSTODIAN_KAFKA_BROKERS")),
			Topic:   getEnv("CUSTODIAN_KAFKA_AUDIT_TOPIC", "custodian.audit"),
		},
		Sweep: SweepConfig{
			Schedule: getEnv("CUSTODIAN_SWEEP_SCHEDULE", "17 * * * *"),
			Jitter:   getEnvDuration("CUSTODIAN_SWEEP_JITTER", 2*time.Minute),
		},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
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
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
