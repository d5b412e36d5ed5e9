package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// CloudKit
	CloudKitBaseURL           string
	CloudKitContainer         string
	CloudKitEnvironment       string
	CloudKitDatabase          string
	CloudKitAPIToken          string
	CloudKitResultsLimit      int
	CloudKitRequestsPerSecond float64
	CloudKitTimeout           time.Duration

	// Sync
	SyncInterval     time.Duration
	SyncPurgeOnStart bool

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CloudKitContainer = os.Getenv("CLOUDKIT_CONTAINER")
	if cfg.CloudKitContainer == "" {
		missing = append(missing, "CLOUDKIT_CONTAINER")
	}

	cfg.CloudKitAPIToken = os.Getenv("CLOUDKIT_API_TOKEN")
	if cfg.CloudKitAPIToken == "" {
		missing = append(missing, "CLOUDKIT_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CloudKitBaseURL = getEnvString("CLOUDKIT_BASE_URL", "https://api.apple-cloudkit.com")
	cfg.CloudKitEnvironment = getEnvString("CLOUDKIT_ENVIRONMENT", "production")
	cfg.CloudKitDatabase = getEnvString("CLOUDKIT_DATABASE", "public")
	cfg.CloudKitResultsLimit = getEnvInt("CLOUDKIT_RESULTS_LIMIT", 200)
	cfg.CloudKitRequestsPerSecond = getEnvFloat("CLOUDKIT_REQUESTS_PER_SECOND", 5)
	cfg.CloudKitTimeout = getEnvDuration("CLOUDKIT_TIMEOUT", 30*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 10*time.Minute)
	cfg.SyncPurgeOnStart = getEnvBool("SYNC_PURGE_ON_START", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の範囲を検証する。
func (c *Config) validate() error {
	switch c.CloudKitEnvironment {
	case "development", "production":
	default:
		return fmt.Errorf("CLOUDKIT_ENVIRONMENT must be development or production: %q", c.CloudKitEnvironment)
	}
	switch c.CloudKitDatabase {
	case "public", "private", "shared":
	default:
		return fmt.Errorf("CLOUDKIT_DATABASE must be public, private or shared: %q", c.CloudKitDatabase)
	}
	if c.CloudKitResultsLimit < 1 || c.CloudKitResultsLimit > 200 {
		return fmt.Errorf("CLOUDKIT_RESULTS_LIMIT must be between 1 and 200: %d", c.CloudKitResultsLimit)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive: %v", c.SyncInterval)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
