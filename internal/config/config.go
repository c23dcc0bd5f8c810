package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kapu/cirak-widget-go/internal/constants"
)

// Chat modes
const (
	ChatModeDeterministic = "deterministic"
	ChatModeGuarded       = "guarded"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverFiles    = "files"
)

type Config struct {
	Server   ServerConfig
	Chat     ChatConfig
	Store    StoreConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Gemini   GeminiConfig
	Guard    GuardConfig
	Snapshot SnapshotConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port           int
	GinMode        string
	AllowedOrigins []string
	AdminToken     string

	// bcrypt hash of the admin login password. Empty means the admin token is the password.
	AdminPasswordHash string
	JWTSecret         string
	SessionTTL        time.Duration
}

type ChatConfig struct {
	Mode       string
	LLMTimeout time.Duration
}

type StoreConfig struct {
	Driver     string
	IntentsDir string
	WatchFiles bool
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Referer     string
	Title       string
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type GuardConfig struct {
	MaterialityThreshold int64
	UpperBound           int64
}

type SnapshotConfig struct {
	RefreshInterval time.Duration
}

type LoggingConfig struct {
	Level string
	File  string
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Read loads .env and the environment without validating. Tools that only touch the
// intent store use it with ValidateStore.
func Read() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 3001),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: parseCommaSeparated(getEnv("ALLOWED_ORIGINS", "*")),
			AdminToken:     getEnv("ADMIN_TOKEN", ""),

			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			JWTSecret:         getEnv("JWT_SECRET", ""),
			SessionTTL:        getEnvDuration("ADMIN_SESSION_TTL", 24*time.Hour),
		},
		Chat: ChatConfig{
			Mode:       strings.ToLower(getEnv("CHAT_MODE", ChatModeGuarded)),
			LLMTimeout: getEnvDuration("LLM_TIMEOUT", constants.LLMDefaults.Timeout),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
			IntentsDir: getEnv("INTENTS_DIR", "data/intents"),
			WatchFiles: getEnvBool("INTENTS_WATCH", true),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "cirak"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "cirak"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/cirak.db"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENROUTER_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", constants.LLMDefaults.BaseURL),
			Model:       getEnv("LLM_MODEL", constants.LLMDefaults.Model),
			Temperature: getEnvFloat("LLM_TEMPERATURE", constants.LLMDefaults.Temperature),
			TopP:        getEnvFloat("LLM_TOP_P", constants.LLMDefaults.TopP),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", constants.LLMDefaults.MaxTokens),
			Referer:     getEnv("LLM_HTTP_REFERER", "http://localhost:3001"),
			Title:       getEnv("LLM_APP_TITLE", "Cirak Widget"),
		},
		Gemini: GeminiConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EnableFallback: getEnvBool("GEMINI_ENABLE_FALLBACK", true),
		},
		Guard: GuardConfig{
			MaterialityThreshold: int64(getEnvInt("GUARD_MATERIALITY_THRESHOLD", int(constants.GuardConfig.MaterialityThreshold))),
			UpperBound:           int64(getEnvInt("GUARD_UPPER_BOUND", int(constants.GuardConfig.UpperBound))),
		},
		Snapshot: SnapshotConfig{
			RefreshInterval: getEnvDuration("SNAPSHOT_REFRESH_INTERVAL", constants.SnapshotConfig.RefreshInterval),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "cirak"),
		},
	}
}

func (c *Config) Validate() error {
	switch c.Chat.Mode {
	case ChatModeDeterministic, ChatModeGuarded:
	default:
		return fmt.Errorf("CHAT_MODE must be %q or %q, got %q", ChatModeDeterministic, ChatModeGuarded, c.Chat.Mode)
	}

	if err := c.ValidateStore(); err != nil {
		return err
	}
	return c.validateServer()
}

// ValidateStore checks only the intent store settings.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required for the postgres store")
		}
	case StoreDriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreDriverFiles:
		if c.Store.IntentsDir == "" {
			return fmt.Errorf("INTENTS_DIR is required for the files store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Chat.Mode == ChatModeGuarded && c.LLM.APIKey == "" && c.Gemini.APIKey == "" {
		return fmt.Errorf("guarded mode requires OPENROUTER_API_KEY or GEMINI_API_KEY")
	}
	if c.Guard.MaterialityThreshold < 0 || c.Guard.UpperBound <= c.Guard.MaterialityThreshold {
		return fmt.Errorf("GUARD_UPPER_BOUND must be greater than GUARD_MATERIALITY_THRESHOLD")
	}
	if c.Snapshot.RefreshInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_REFRESH_INTERVAL must be positive")
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = c.Server.AdminToken
	}
	if c.Server.AdminPasswordHash != "" && c.Server.JWTSecret == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH requires JWT_SECRET or ADMIN_TOKEN")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
