package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string

	// RedisAddr is the host:port of the redis instance backing the
	// aggregation cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ListenAddr string

	// JWTSecret signs owner session tokens. Must be set in production.
	JWTSecret string

	// SessionTTL is how long an owner session token stays valid.
	SessionTTL time.Duration

	// KeyExpirationDays is the validity window applied to newly issued
	// API keys.
	KeyExpirationDays int

	// SummaryCacheTTL is how long computed summaries and user stats
	// stay in the aggregation cache before being recomputed.
	SummaryCacheTTL time.Duration
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:       os.Getenv("APP_DATABASE_URL"),
		RedisAddr:         getenv("APP_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("APP_REDIS_PASSWORD"),
		ListenAddr:        getenv("APP_LISTEN_ADDR", ":8080"),
		JWTSecret:         getenv("APP_JWT_SECRET", "changeme"),
		SessionTTL:        24 * time.Hour,
		KeyExpirationDays: 365,
		SummaryCacheTTL:   300 * time.Second,
	}

	if v := os.Getenv("APP_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	if v := os.Getenv("APP_KEY_EXPIRATION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.KeyExpirationDays = days
		}
	}

	if v := os.Getenv("APP_SUMMARY_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SummaryCacheTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("APP_SESSION_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			cfg.SessionTTL = time.Duration(hours) * time.Hour
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
