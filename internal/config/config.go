package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Storage     StorageConfig
	Session     SessionConfig
	Realtime    RealtimeConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	// Host defaults to loopback: the shell holds one process-wide session,
	// so every client that can reach the port acts as the signed-in user.
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
	// MaxBodySize must fit a multipart upload plus its form fields.
	MaxBodySize int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// RevocationChannel carries revoked session ids between processes.
	RevocationChannel string
}

type AuthConfig struct {
	Secret              string
	Issuer              string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RefreshInterval     time.Duration
	RequireConfirmation bool
	MinPasswordLength   int
}

type StorageConfig struct {
	Path           string
	Bucket         string
	PublicBaseURL  string
	MaxUploadBytes int64
}

type SessionConfig struct {
	Path string
}

type RealtimeConfig struct {
	Channel string
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the service can boot on a developer machine.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "taskboard"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "127.0.0.1"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
			MaxBodySize:  getInt("SERVER_MAX_BODY_SIZE", 8<<20),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "taskboard"),
			User:            getString("DB_USER", "taskboard"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:               getString("REDIS_URL", "redis://localhost:6379"),
			Password:          os.Getenv("REDIS_PASSWORD"),
			DB:                getInt("REDIS_DB", 0),
			RevocationChannel: getString("REDIS_REVOCATION_CHANNEL", "auth:revoked"),
		},
		Auth: AuthConfig{
			Secret:              os.Getenv("JWT_SECRET"),
			Issuer:              getString("JWT_ISSUER", "taskboard"),
			AccessTTL:           getDuration("AUTH_ACCESS_TTL", time.Hour),
			RefreshTTL:          getDuration("AUTH_REFRESH_TTL", 7*24*time.Hour),
			RefreshInterval:     getDuration("AUTH_REFRESH_INTERVAL", time.Minute),
			RequireConfirmation: getBool("AUTH_REQUIRE_CONFIRMATION", true),
			MinPasswordLength:   getInt("AUTH_MIN_PASSWORD_LENGTH", 6),
		},
		Storage: StorageConfig{
			Path:           getString("STORAGE_PATH", "./data/objects.db"),
			Bucket:         getString("STORAGE_BUCKET", "tasks-images"),
			PublicBaseURL:  os.Getenv("STORAGE_PUBLIC_URL"),
			MaxUploadBytes: int64(getInt("STORAGE_MAX_UPLOAD_BYTES", 5<<20)),
		},
		Session: SessionConfig{
			Path: getString("SESSION_PATH", "./data/session.db"),
		},
		Realtime: RealtimeConfig{
			Channel: getString("REALTIME_CHANNEL", "tasks_changes"),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 10*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	if cfg.Storage.PublicBaseURL == "" {
		cfg.Storage.PublicBaseURL = fmt.Sprintf("http://localhost:%s", cfg.HTTP.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" && c.Environment == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = "development-secret"
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return fmt.Errorf("AUTH_ACCESS_TTL (%s) must be shorter than AUTH_REFRESH_TTL (%s)", c.Auth.AccessTTL, c.Auth.RefreshTTL)
	}
	if c.Auth.RefreshInterval < time.Second {
		return fmt.Errorf("AUTH_REFRESH_INTERVAL must be at least 1s")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET must not be empty")
	}
	if c.Storage.MaxUploadBytes <= 0 || c.Storage.MaxUploadBytes > int64(c.HTTP.MaxBodySize) {
		return fmt.Errorf("STORAGE_MAX_UPLOAD_BYTES must be positive and not exceed SERVER_MAX_BODY_SIZE")
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
