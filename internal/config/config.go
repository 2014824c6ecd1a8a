package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	AppEnv       string
	ServerPort   int
	DatabasePath string
	LogLevel     string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr     string // Empty disables the student cache
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	CORSOrigins []string

	ImportPath string // CSV file used by the scheduled import
	ImportCron string // Standard cron expression, empty disables the scheduled import
}

const devSecret = "dev-secret-change-me"

// Load loads configuration from a .env file, an optional config.yaml and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env file is fine outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 8080)
	v.SetDefault("DATABASE_PATH", "./students.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "30m")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("IMPORT_PATH", "")
	v.SetDefault("IMPORT_CRON", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:        v.GetString("APP_ENV"),
		ServerPort:    v.GetInt("PORT"),
		DatabasePath:  v.GetString("DATABASE_PATH"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		TokenTTL:      v.GetDuration("TOKEN_TTL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		CacheTTL:      v.GetDuration("CACHE_TTL"),
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
		ImportPath:    v.GetString("IMPORT_PATH"),
		ImportCron:    v.GetString("IMPORT_CRON"),
	}

	if cfg.ServerPort <= 0 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.ServerPort)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = devSecret
	}
	if cfg.ImportCron != "" && cfg.ImportPath == "" {
		return nil, errors.New("IMPORT_CRON is set but IMPORT_PATH is empty")
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
