package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	Pacto     PactoConfig
	Scheduler SchedulerConfig
	Settings  SettingsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// RateLimit is the sustained requests per second accepted by the API (0 disables limiting)
	RateLimit int
	RateBurst int
}

// IsProduction reports whether the server runs with production defaults.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
// Event publishing is skipped entirely when Enabled is false.
type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

// AuthConfig configures verification of the identity provider's access tokens.
type AuthConfig struct {
	// JWTSecret is the HMAC secret shared with the identity provider
	JWTSecret string
	// Issuer, when set, must match the token's iss claim
	Issuer string
	// Audience, when set, must be present in the token's aud claim
	Audience string
	// AdminRoles may edit settings
	AdminRoles []string
}

// PactoConfig points at the upstream gym-management API.
type PactoConfig struct {
	BaseURL string
	APIKey  string
	// DefaultMatricula is used when a sync request does not name one
	DefaultMatricula string
	Timeout          time.Duration
	// RequestsPerSecond throttles outgoing calls to the upstream API
	RequestsPerSecond float64
	PageLimit         int
	// CheckinWindowDays is how far back check-ins are fetched per sync
	CheckinWindowDays int
	// RetryAttempts covers transport errors and 5xx responses only
	RetryAttempts int
	RetryDelay    time.Duration
}

// SchedulerConfig controls the periodic stats → score → actions pipeline.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	// RunOnStart triggers one pipeline run right after startup
	RunOnStart bool
}

// SettingsConfig selects how missing risk settings are handled.
type SettingsConfig struct {
	// Strict makes absent risk weights/thresholds fatal for a scoring batch.
	// When false, built-in defaults are used and a warning is logged.
	Strict bool
}

type LogConfig struct {
	Level string
	// Format is "json" or "console"
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnvInt("SERVER_PORT", 8080),
			Env:       getEnv("ENV", "development"),
			RateLimit: getEnvInt("API_RATE_LIMIT", 20),
			RateBurst: getEnvInt("API_RATE_BURST", 40),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "retention"),
			Password: getEnv("DB_PASSWORD", "retention"),
			Database: getEnv("DB_NAME", "retention"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:     getEnv("JWT_ISSUER", ""),
			Audience:   getEnv("JWT_AUDIENCE", "authenticated"),
			AdminRoles: getEnvSlice("AUTH_ADMIN_ROLES", []string{"admin", "service_role"}),
		},
		Pacto: PactoConfig{
			BaseURL:           getEnv("PACTO_BASE_URL", "https://api.pactosistemas.com.br/v1"),
			APIKey:            getEnv("PACTO_API_KEY", ""),
			DefaultMatricula:  getEnv("PACTO_DEFAULT_MATRICULA", "MAT001"),
			Timeout:           getEnvDuration("PACTO_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("PACTO_RPS", 5),
			PageLimit:         getEnvInt("PACTO_PAGE_LIMIT", 500),
			CheckinWindowDays: getEnvInt("PACTO_CHECKIN_WINDOW_DAYS", 30),
			RetryAttempts:     getEnvInt("PACTO_RETRY_ATTEMPTS", 3),
			RetryDelay:        getEnvDuration("PACTO_RETRY_DELAY", time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:    getEnvBool("SCHEDULER_ENABLED", false),
			Interval:   getEnvDuration("SCHEDULER_INTERVAL", 6*time.Hour),
			RunOnStart: getEnvBool("SCHEDULER_RUN_ON_START", false),
		},
		Settings: SettingsConfig{
			Strict: getEnvBool("SETTINGS_STRICT", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("SCHEDULER_INTERVAL must be at least 1m, got %s", c.Scheduler.Interval)
	}
	if c.Server.IsProduction() && c.Auth.JWTSecret == "dev-secret-change-in-prod" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Pacto.RequestsPerSecond <= 0 {
		return fmt.Errorf("PACTO_RPS must be positive")
	}
	if c.Pacto.RetryAttempts < 1 {
		return fmt.Errorf("PACTO_RETRY_ATTEMPTS must be at least 1")
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
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvSlice parses comma-separated values
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
