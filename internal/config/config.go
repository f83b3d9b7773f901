package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/raindrop/identity-service/pkg/errors"
)

type Config struct {
	HTTPAddr            string
	PostgresDSN         string
	RedisAddr           string
	KafkaBrokers        []string
	JWTSecret           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	CleanupInterval     time.Duration
	DeepCleanupInterval time.Duration
	RevocationBackend   string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:            os.Getenv("HTTP_ADDR"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AccessTokenTTL:      parseDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:     parseDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CleanupInterval:     parseDuration("CLEANUP_INTERVAL", 5*time.Minute),
		DeepCleanupInterval: parseDuration("DEEP_CLEANUP_INTERVAL", 24*time.Hour),
		RevocationBackend:   os.Getenv("REVOCATION_BACKEND"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=identity sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.RevocationBackend == "" {
		cfg.RevocationBackend = "postgres"
	}
	if cfg.RevocationBackend != "postgres" && cfg.RevocationBackend != "redis" {
		return nil, fmt.Errorf("unknown REVOCATION_BACKEND %q", cfg.RevocationBackend)
	}

	// Every previously issued token dies with the secret, so refusing to
	// boot without one beats minting tokens nobody can verify later.
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is not set", pkgerrors.ErrSigningKeyMisconfigured)
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"access_token_ttl", cfg.AccessTokenTTL,
		"refresh_token_ttl", cfg.RefreshTokenTTL,
		"cleanup_interval", cfg.CleanupInterval,
		"revocation_backend", cfg.RevocationBackend)
	return cfg, nil
}

func parseDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}
