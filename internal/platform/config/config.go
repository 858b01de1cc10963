package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay twelve-factor.
type Server struct {
	Addr string

	// PostgresDSN enables the postgres-backed document and audit stores when
	// set; empty means in-memory stores (dev and tests).
	PostgresDSN string

	// RedisURL enables the redis proof cache when set.
	RedisURL string

	// KafkaBrokers and KafkaTopic enable mirroring of status-log audit events
	// to a topic when brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSigningKey string

	// AdminTokenHash is a bcrypt hash of the admin token required by the
	// administrative reopen/reverify endpoints.
	AdminTokenHash string

	// SubmitTimeout bounds a single ledger submission; past it the outcome is
	// treated as unknown, not failed.
	SubmitTimeout time.Duration

	// SubmitAttempts bounds identical-payload retries on connectivity failure.
	SubmitAttempts int

	// SweepInterval drives the periodic reconciliation sweep; zero disables it.
	SweepInterval time.Duration

	// HTTP server timeouts. WriteTimeout must stay above the router's request
	// timeout or long ledger submissions get cut off mid-response.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("PROVENANCE_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("PROVENANCE_POSTGRES_DSN"),
		RedisURL:       os.Getenv("PROVENANCE_REDIS_URL"),
		KafkaTopic:     envOr("PROVENANCE_KAFKA_TOPIC", "provenance.status-log"),
		JWTSigningKey:  os.Getenv("PROVENANCE_JWT_SIGNING_KEY"),
		AdminTokenHash: os.Getenv("PROVENANCE_ADMIN_TOKEN_HASH"),
		SubmitTimeout:  durationOr("PROVENANCE_SUBMIT_TIMEOUT", 30*time.Second),
		SubmitAttempts: intOr("PROVENANCE_SUBMIT_ATTEMPTS", 3),
		SweepInterval:  durationOr("PROVENANCE_SWEEP_INTERVAL", 0),

		ReadHeaderTimeout: durationOr("PROVENANCE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       durationOr("PROVENANCE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      durationOr("PROVENANCE_HTTP_WRITE_TIMEOUT", 65*time.Second),
		IdleTimeout:       durationOr("PROVENANCE_HTTP_IDLE_TIMEOUT", 120*time.Second),
	}
	if cfg.JWTSigningKey == "" {
		// Development default; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if brokers := os.Getenv("PROVENANCE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

// RedisConfig holds tuning for the redis client beyond the URL.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisFromEnv builds a RedisConfig with defaults suitable for a cache.
func RedisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("PROVENANCE_REDIS_URL"),
		PoolSize:     intOr("PROVENANCE_REDIS_POOL_SIZE", 10),
		MinIdleConns: intOr("PROVENANCE_REDIS_MIN_IDLE", 2),
		DialTimeout:  durationOr("PROVENANCE_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationOr("PROVENANCE_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationOr("PROVENANCE_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
