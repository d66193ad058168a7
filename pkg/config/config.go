// Package config loads runtime settings from the environment, with an
// optional .env file for local development. All values have defaults except
// the tracker credentials, which Validate enforces.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for tunable settings.
const (
	DefaultRedisAddr = "localhost:6379"
	DefaultPageSize  = 50
	DefaultMaxAge    = 10 * time.Minute
	DefaultWorkers   = 4
	DefaultTimeout   = 15 * time.Second
)

// Config holds everything the CLI needs to talk to the tracker and redis.
type Config struct {
	// APIURL is the tracker's REST base URL, e.g. https://jira.example.com/rest/api/2.
	APIURL   string
	Username string
	Password string

	// RedisAddr is the host:port of the shared redis instance.
	RedisAddr string
	RedisDB   int

	// PageSize is the number of records requested per search page.
	PageSize int
	// MaxAge is how old a cache entry may be before it counts as stale.
	MaxAge time.Duration
	// Workers bounds the number of concurrent page fetches.
	Workers int
	// Timeout applies to individual tracker requests.
	Timeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	// godotenv.Load never overrides variables already set in the process.
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:    os.Getenv("ISSUEDECK_API_URL"),
		Username:  os.Getenv("ISSUEDECK_USER"),
		Password:  os.Getenv("ISSUEDECK_PASSWORD"),
		RedisAddr: getEnv("ISSUEDECK_REDIS", DefaultRedisAddr),
		RedisDB:   getEnvInt("ISSUEDECK_REDIS_DB", 0),
		PageSize:  getEnvInt("ISSUEDECK_PAGE_SIZE", DefaultPageSize),
		MaxAge:    getEnvDuration("ISSUEDECK_MAX_AGE", DefaultMaxAge),
		Workers:   getEnvInt("ISSUEDECK_WORKERS", DefaultWorkers),
		Timeout:   getEnvDuration("ISSUEDECK_TIMEOUT", DefaultTimeout),
		LogLevel:  getEnv("ISSUEDECK_LOG_LEVEL", "info"),
		LogFormat: getEnv("ISSUEDECK_LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("ISSUEDECK_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("ISSUEDECK_API_URL is not a valid URL: %w", err)
	}
	if c.Username == "" {
		return fmt.Errorf("ISSUEDECK_USER is required")
	}
	if c.Password == "" {
		return fmt.Errorf("ISSUEDECK_PASSWORD is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max age must be positive, got %s", c.MaxAge)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go duration strings ("10m") and bare integers,
// which are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
