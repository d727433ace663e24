package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the connector configuration
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Archives ArchivesConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig is the audit database. Archive databases are configured
// in their property files.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type ArchivesConfig struct {
	// Dir holds one *.properties file per archive
	Dir     string
	Default string
	// WadoBaseURL is written into XML manifests
	WadoBaseURL string
}

type CacheConfig struct {
	Enabled     bool
	Type        string
	ManifestTTL time.Duration
	MaxEntries  int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	Namespace string
}

type MetricsConfig struct {
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "60s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "db_connector")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_LOG_LEVEL", "warn")

	v.SetDefault("ARCHIVES_DIR", "./configs/archives")
	v.SetDefault("WADO_BASE_URL", "")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TYPE", "memory")
	v.SetDefault("MANIFEST_TTL", "10m")
	v.SetDefault("CACHE_MAX_ENTRIES", 1000)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_NAMESPACE", "db-connector:")

	v.SetDefault("METRICS_ENABLED", true)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Accept,Authorization,Content-Type,X-Archive,X-Request-ID")
}

// Load reads .env files (when present) and the environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetInt("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("AUDIT_ENABLED"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			LogLevel: v.GetString("DB_LOG_LEVEL"),
		},
		Archives: ArchivesConfig{
			Dir:         v.GetString("ARCHIVES_DIR"),
			Default:     v.GetString("ARCHIVES_DEFAULT"),
			WadoBaseURL: v.GetString("WADO_BASE_URL"),
		},
		Cache: CacheConfig{
			Enabled:     v.GetBool("CACHE_ENABLED"),
			Type:        strings.ToLower(v.GetString("CACHE_TYPE")),
			ManifestTTL: v.GetDuration("MANIFEST_TTL"),
			MaxEntries:  v.GetInt("CACHE_MAX_ENTRIES"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("REDIS_HOST"),
			Port:      v.GetInt("REDIS_PORT"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			Namespace: v.GetString("REDIS_NAMESPACE"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			AllowedMethods: splitList(v.GetString("CORS_ALLOWED_METHODS")),
			AllowedHeaders: splitList(v.GetString("CORS_ALLOWED_HEADERS")),
		},
	}

	return cfg, nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", c.Log.Format)
	}

	if c.Archives.Dir == "" {
		return errors.New("ARCHIVES_DIR is required")
	}

	if c.Cache.Enabled {
		switch c.Cache.Type {
		case "memory", "redis":
		default:
			return fmt.Errorf("invalid CACHE_TYPE: %s", c.Cache.Type)
		}
	}
	if c.Cache.ManifestTTL <= 0 {
		return fmt.Errorf("invalid MANIFEST_TTL: %s", c.Cache.ManifestTTL)
	}

	if c.Database.Enabled && c.Database.Host == "" {
		return errors.New("DB_HOST is required when AUDIT_ENABLED is true")
	}

	return nil
}

// RedisAddr returns host:port of the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
