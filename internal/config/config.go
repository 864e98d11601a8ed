package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage modes mirror the browser storage media of the original intake pages.
const (
	StorageModeMemory  = "memory"
	StorageModeSession = "session"
	StorageModeLocal   = "local"

	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Codec    CodecConfig
	Tickets  TicketConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StorageConfig selects where the ticket list lives.
type StorageConfig struct {
	Mode              string
	DurableDriver     string
	SessionTTLMinutes int
	KeyPrefix         string
}

// CodecConfig selects how the ticket list is serialized.
type CodecConfig struct {
	Name          string
	Passphrase    string
	Salt          string
	KDFIterations int
}

// TicketConfig holds form limits.
type TicketConfig struct {
	MaxAttachments int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Load reads configuration from environment variables, applying defaults where possible.
// envFiles are passed to godotenv; a missing file is ignored.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	mode := strings.ToLower(getEnv("STORAGE_MODE", StorageModeMemory))
	driver := strings.ToLower(getEnv("STORAGE_DURABLE_DRIVER", DriverRedis))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-intake"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Storage: StorageConfig{
			Mode:              mode,
			DurableDriver:     driver,
			SessionTTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 30),
			KeyPrefix:         getEnv("STORAGE_KEY_PREFIX", "ticket-intake:"),
		},
		Codec: CodecConfig{
			Name:          strings.ToLower(getEnv("STORAGE_CODEC", defaultCodec(mode))),
			Passphrase:    getEnv("CODEC_PASSPHRASE", "ticket-intake-demo"),
			Salt:          getEnv("CODEC_SALT", "l13l_%223$"),
			KDFIterations: getEnvAsInt("CODEC_KDF_ITERATIONS", 100000),
		},
		Tickets: TicketConfig{
			MaxAttachments: getEnvAsInt("TICKET_MAX_ATTACHMENTS", 5),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown storage modes and drivers.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StorageModeMemory, StorageModeSession, StorageModeLocal:
	default:
		return fmt.Errorf("invalid STORAGE_MODE %q", c.Storage.Mode)
	}
	switch c.Storage.DurableDriver {
	case DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("invalid STORAGE_DURABLE_DRIVER %q", c.Storage.DurableDriver)
	}
	if c.Storage.Mode == StorageModeLocal && c.Storage.DurableDriver == DriverPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN required for local storage on postgres")
	}
	return nil
}

// defaultCodec matches the original pages: durable storage was Base64-wrapped,
// memory and session storage held plain JSON.
func defaultCodec(mode string) string {
	if mode == StorageModeLocal {
		return "obfuscated"
	}
	return "plain"
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL returns how long an idle session's tickets survive.
func (s StorageConfig) SessionTTL() time.Duration {
	if s.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
