package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/joho/godotenv"

	"wishlist_backend/internal/money"
)

type Config struct {
	ServerPort int
	Env        string
	LogLevel   string

	DBDriver         string
	DBDataSourceName string
	DBMaxOpenConns   int

	// RedisURL is empty when the cross-process relay is disabled.
	RedisURL       string
	WSChannel      string
	RelayTimeout   time.Duration
	WSWriteTimeout time.Duration

	IdempotencyBackend    string
	IdempotencyTTL        time.Duration
	IdempotencyMaxEntries int

	// MinContributionAmount is nil when no minimum is configured.
	MinContributionAmount *apd.Decimal

	SessionCookieName   string
	SessionCookieMaxAge time.Duration
	CookieSecure        bool
	CookieSameSite      string

	CORSOrigins []string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: could not load .env file, using environment only")
	}

	config := &Config{}
	var err error

	if config.ServerPort, err = getIntOrDefault("PORT", 8000); err != nil {
		return nil, err
	}
	config.Env = getEnvOrDefault("APP_ENV", "development")
	config.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	config.DBDriver = getEnvOrDefault("DB_DRIVER", "postgres")
	config.DBDataSourceName = os.Getenv("DATABASE_URL")
	if config.DBDataSourceName == "" {
		dbHost := getEnvOrDefault("WISHLIST_DB_HOST", "localhost")
		dbPort := getEnvOrDefault("WISHLIST_DB_PORT", "5432")
		dbName := getEnvOrDefault("WISHLIST_DB_DATABASE", "wishlist")
		dbUser := getEnvOrDefault("WISHLIST_DB_USERNAME", "postgres")
		dbPassword := getEnvOrDefault("WISHLIST_DB_PASSWORD", "postgres")

		config.DBDataSourceName = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			dbUser, dbPassword, dbHost, dbPort, dbName)
	}
	if config.DBMaxOpenConns, err = getIntOrDefault("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}

	// An explicitly empty REDIS_URL turns the relay off.
	if redisURL, ok := os.LookupEnv("REDIS_URL"); ok {
		config.RedisURL = strings.TrimSpace(redisURL)
	} else {
		config.RedisURL = "redis://localhost:6379/0"
	}
	config.WSChannel = getEnvOrDefault("WS_CHANNEL", "wishlist:ws_events")
	if config.RelayTimeout, err = getDurationOrDefault("RELAY_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = getDurationOrDefault("WS_WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	config.IdempotencyBackend = getEnvOrDefault("IDEMPOTENCY_BACKEND", "memory")
	if config.IdempotencyTTL, err = getDurationOrDefault("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if config.IdempotencyMaxEntries, err = getIntOrDefault("IDEMPOTENCY_MAX_ENTRIES", 10000); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(os.Getenv("MIN_CONTRIBUTION_AMOUNT")); raw != "" {
		if config.MinContributionAmount, err = money.Parse(raw); err != nil {
			return nil, fmt.Errorf("invalid MIN_CONTRIBUTION_AMOUNT: %w", err)
		}
	}

	config.SessionCookieName = getEnvOrDefault("SESSION_COOKIE_NAME", "session_id")
	maxAgeDays, err := getIntOrDefault("SESSION_COOKIE_MAX_AGE_DAYS", 365)
	if err != nil {
		return nil, err
	}
	config.SessionCookieMaxAge = time.Duration(maxAgeDays) * 24 * time.Hour
	config.CookieSecure = getEnvOrDefault("COOKIE_SECURE", "false") == "true"
	config.CookieSameSite = strings.ToLower(getEnvOrDefault("COOKIE_SAME_SITE", "lax"))

	for _, origin := range strings.Split(getEnvOrDefault("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			config.CORSOrigins = append(config.CORSOrigins, origin)
		}
	}

	return config, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("unknown APP_ENV %q", c.Env))
	}

	switch c.DBDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	switch c.IdempotencyBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("IDEMPOTENCY_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend))
	}

	if c.MinContributionAmount != nil && c.MinContributionAmount.Sign() < 0 {
		errs = append(errs, errors.New("MIN_CONTRIBUTION_AMOUNT must not be negative"))
	}
	if c.IdempotencyMaxEntries <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_MAX_ENTRIES must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}

	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown COOKIE_SAME_SITE %q", c.CookieSameSite))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
