package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (fetch cache)
	Redis RedisConfig

	// External sources
	Barchart BarchartConfig

	// Continuous series building
	Futures FuturesConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// BarchartConfig holds the Barchart historical data endpoint settings
type BarchartConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Throttle: requests per second and burst, plus random jitter per call
	RatePerSecond float64
	Burst         int
	MaxJitter     time.Duration

	MaxRecords int
}

// FuturesConfig holds continuous-series build defaults
type FuturesConfig struct {
	CyclesFile         string
	MinVolume          int64 // < 0 disables the volume filter
	DropIncompleteDays bool
	MaxSteps           int
	CacheTTL           time.Duration
	ExportDir          string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Barchart: BarchartConfig{
			BaseURL:       getEnv("BARCHART_BASE_URL", "https://www.barchart.com"),
			UserAgent:     getEnv("BARCHART_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125 Safari/537.36"),
			Timeout:       getEnvAsDuration("BARCHART_TIMEOUT", "15s"),
			RatePerSecond: getEnvAsFloat("BARCHART_RATE_PER_SECOND", 0.5),
			Burst:         getEnvAsInt("BARCHART_BURST", 1),
			MaxJitter:     getEnvAsDuration("BARCHART_MAX_JITTER", "3500ms"),
			MaxRecords:    getEnvAsInt("BARCHART_MAX_RECORDS", 640),
		},

		Futures: FuturesConfig{
			CyclesFile:         getEnv("FUTURES_CYCLES_FILE", ""),
			MinVolume:          int64(getEnvAsInt("FUTURES_MIN_VOLUME", -1)),
			DropIncompleteDays: getEnvAsBool("FUTURES_DROP_INCOMPLETE_DAYS", true),
			MaxSteps:           getEnvAsInt("FUTURES_MAX_STEPS", 48),
			CacheTTL:           getEnvAsDuration("FUTURES_CACHE_TTL", "24h"),
			ExportDir:          getEnv("FUTURES_EXPORT_DIR", "."),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Barchart.RatePerSecond <= 0 {
		return fmt.Errorf("BARCHART_RATE_PER_SECOND must be > 0")
	}
	if c.Barchart.Burst < 1 {
		return fmt.Errorf("BARCHART_BURST must be >= 1")
	}
	if c.Futures.MaxSteps < 1 {
		return fmt.Errorf("FUTURES_MAX_STEPS must be >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
