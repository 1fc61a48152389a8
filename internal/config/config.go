package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Tickets  TicketsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// BodyLimitBytes caps request bodies and must leave room for the largest attachment.
	BodyLimitBytes int
	// SeedFile lists accounts loaded into the in-memory repositories in development.
	SeedFile string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MemberCacheTTL bounds how long a PWD member lookup is served from Redis.
	MemberCacheTTL time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// StorageConfig selects and configures the attachment blob store.
type StorageConfig struct {
	Driver            string
	Root              string
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// TicketsConfig controls ticket numbering.
type TicketsConfig struct {
	NumberPrefix   string
	CreateAttempts int
}

const (
	EnvDevelopment = "development"

	StorageDriverLocal  = "local"
	StorageDriverMemory = "memory"

	defaultMaxUploadBytes = 10 << 20
)

var defaultAllowedExtensions = []string{"pdf", "doc", "docx", "txt", "jpg", "jpeg", "png", "gif"}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxUpload := int64(getEnvAsInt("STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes))
	if maxUpload <= 0 {
		return nil, fmt.Errorf("invalid STORAGE_MAX_UPLOAD_BYTES: must be positive")
	}

	driver := strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverLocal))
	if driver != StorageDriverLocal && driver != StorageDriverMemory {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", driver)
	}

	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" && env != EnvDevelopment {
		return nil, fmt.Errorf("POSTGRES_DSN is required when APP_ENV=%s", env)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitBytes:        getEnvAsInt("APP_BODY_LIMIT_BYTES", int(maxUpload)+2<<20),
			SeedFile:              os.Getenv("APP_SEED_FILE"),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:           os.Getenv("REDIS_ADDR"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			MemberCacheTTL: time.Duration(getEnvAsInt("REDIS_MEMBER_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Storage: StorageConfig{
			Driver:            driver,
			Root:              getEnv("STORAGE_ROOT", "storage"),
			MaxUploadBytes:    maxUpload,
			AllowedExtensions: getEnvAsList("STORAGE_ALLOWED_EXTENSIONS", defaultAllowedExtensions),
		},
		Tickets: TicketsConfig{
			NumberPrefix:   getEnv("TICKETS_NUMBER_PREFIX", "TKT"),
			CreateAttempts: getEnvAsInt("TICKETS_CREATE_ATTEMPTS", 3),
		},
	}

	return cfg, nil
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

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
