package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Storage   StorageConfig
	Database  DatabaseConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Server    ServerConfig
	Log       LogConfig

	// BootstrapEmail, when set, becomes the first MANAGER of an empty store.
	BootstrapEmail string
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Backend string
	Timeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings. URL wins over the parts.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection settings. An empty Addr keeps rate
// limiting in process.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// RateLimitConfig is a per-actor budget of Requests per Window. Zero requests disables it.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthConfig toggles the less strict ways of identifying an actor.
type AuthConfig struct {
	// ActorHeader accepts X-Actor-Id without a token.
	ActorHeader bool
	// DevTokens exposes POST /api/v1/tokens, which issues tokens by email alone.
	DevTokens bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after merging a .env
// file from the working directory if one exists. Variables already set in the
// environment win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: reading .env: %w", err)
	}

	storageTimeout, err := getEnvDuration("TASKTRACK_STORAGE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("TASKTRACK_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TASKTRACK_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TASKTRACK_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateRequests, err := getEnvInt("TASKTRACK_RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateWindow, err := getEnvDuration("TASKTRACK_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("TASKTRACK_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("TASKTRACK_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	actorHeader, err := getEnvBool("TASKTRACK_AUTH_ACTOR_HEADER", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	devTokens, err := getEnvBool("TASKTRACK_AUTH_DEV_TOKENS", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TASKTRACK_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TASKTRACK_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	shutdownTimeout, err := getEnvDuration("TASKTRACK_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("TASKTRACK_STORAGE", BackendMemory)),
			Timeout: storageTimeout,
		},
		Database: DatabaseConfig{
			URL:      getEnv("TASKTRACK_DB_URL", ""),
			Host:     getEnv("TASKTRACK_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TASKTRACK_DB_USER", "tasktrack"),
			Password: getEnv("TASKTRACK_DB_PASSWORD", ""),
			DBName:   getEnv("TASKTRACK_DB_NAME", "tasktrack"),
			SSLMode:  getEnv("TASKTRACK_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("TASKTRACK_SQLITE_PATH", "data/tasktrack.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("TASKTRACK_REDIS_ADDR", ""),
			Password: getEnv("TASKTRACK_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		RateLimit: RateLimitConfig{
			Requests: rateRequests,
			Window:   rateWindow,
		},
		JWT: JWTConfig{
			Secret:     getEnv("TASKTRACK_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Auth: AuthConfig{
			ActorHeader: actorHeader,
			DevTokens:   devTokens,
		},
		Server: ServerConfig{
			Addr:            getEnv("TASKTRACK_SERVER_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CORSOrigins:     getEnvList("TASKTRACK_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("TASKTRACK_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("TASKTRACK_LOG_FORMAT", "json")),
		},
		BootstrapEmail: getEnv("TASKTRACK_BOOTSTRAP_MANAGER_EMAIL", ""),
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// Validate re-checks the configuration after command-line overrides.
func (c *Config) Validate() error {
	return c.validate()
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("TASKTRACK_STORAGE must be one of memory, postgres, sqlite; got %q", c.Storage.Backend)
	}

	// Without the actor header there is no way in except a token.
	if c.JWT.Secret == "" && !c.Auth.ActorHeader {
		return errors.New("TASKTRACK_JWT_SECRET is required unless TASKTRACK_AUTH_ACTOR_HEADER is enabled")
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		return errors.New("TASKTRACK_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.DevTokens && c.JWT.Secret == "" {
		return errors.New("TASKTRACK_AUTH_DEV_TOKENS requires TASKTRACK_JWT_SECRET")
	}
	if c.Auth.ActorHeader {
		log.Warn().Msg("TASKTRACK_AUTH_ACTOR_HEADER=true trusts X-Actor-Id without proof; use only behind a trusted proxy")
	}

	if c.Storage.Backend == BackendPostgres && c.Database.URL == "" && c.Database.SSLMode == "disable" {
		log.Warn().Msg("TASKTRACK_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("TASKTRACK_STORAGE_TIMEOUT must be positive, got %s", c.Storage.Timeout)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TASKTRACK_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TASKTRACK_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("TASKTRACK_RATE_LIMIT_REQUESTS must be >= 0, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window < time.Second {
		return fmt.Errorf("TASKTRACK_RATE_LIMIT_WINDOW must be at least 1s, got %s", c.RateLimit.Window)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("TASKTRACK_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("TASKTRACK_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TASKTRACK_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TASKTRACK_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("TASKTRACK_SERVER_SHUTDOWN_TIMEOUT must be positive, got %s", c.Server.ShutdownTimeout)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("TASKTRACK_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
