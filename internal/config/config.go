// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Addr            string
	ShutdownTimeout time.Duration

	// Database configuration. Empty DSN selects the in-memory stores.
	PostgresDSN string

	// Token signing
	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	// Content fingerprinting: sha256, md5 or blake3.
	ChecksumAlgorithm string

	// Report generation backend. Empty URL disables the backend and every
	// report takes the local fallback path.
	ReportBackendURL string
	ReportModel      string
	ReportTimeout    time.Duration

	// Request limits
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads configuration from the environment. When envFile is non-empty
// its variables are loaded first; explicit environment always wins.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Addr:               getEnv("COREVAULT_ADDR", ":8080"),
		ShutdownTimeout:    getEnvAsDuration("COREVAULT_SHUTDOWN_TIMEOUT", 10*time.Second),
		PostgresDSN:        getEnv("COREVAULT_PG_DSN", ""),
		TokenSecret:        getEnv("COREVAULT_TOKEN_SECRET", ""),
		TokenIssuer:        getEnv("COREVAULT_TOKEN_ISSUER", "corevault-api"),
		TokenTTL:           getEnvAsDuration("COREVAULT_TOKEN_TTL", 15*time.Minute),
		ChecksumAlgorithm:  getEnv("COREVAULT_CHECKSUM_ALGORITHM", "sha256"),
		ReportBackendURL:   getEnv("COREVAULT_REPORT_BACKEND_URL", ""),
		ReportModel:        getEnv("COREVAULT_REPORT_MODEL", "llama3.1:8b"),
		ReportTimeout:      getEnvAsDuration("COREVAULT_REPORT_TIMEOUT", 2*time.Minute),
		RateLimitPerSecond: getEnvAsFloat("COREVAULT_RATE_LIMIT_RPS", 50),
		RateLimitBurst:     getEnvAsInt("COREVAULT_RATE_LIMIT_BURST", 100),
		MaxBodyBytes:       int64(getEnvAsInt("COREVAULT_MAX_BODY_BYTES", 32<<20)),
	}

	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("COREVAULT_TOKEN_SECRET is required")
	}
	switch cfg.ChecksumAlgorithm {
	case "sha256", "md5", "blake3":
	default:
		return nil, fmt.Errorf("unsupported COREVAULT_CHECKSUM_ALGORITHM %q", cfg.ChecksumAlgorithm)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
