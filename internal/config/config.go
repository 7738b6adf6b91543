package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig
	Session  SessionConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Stub     StubConfig
	Email    EmailConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	StorageKey       string
	RefreshThreshold time.Duration
}

// StorageConfig selects the persistence backend for the session manager:
// memory, file, redis or postgres.
type StorageConfig struct {
	Backend string
	FileDir string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StubConfig configures the local development auth server.
type StubConfig struct {
	Port          string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	ResetExpiry   time.Duration
}

type EmailConfig struct {
	Enabled   bool
	APIKey    string
	FromEmail string
	FromName  string
	ResetURL  string
}

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL: getEnv("AUTH_API_URL", "http://localhost:8080"),
			Timeout: getDurationEnv("AUTH_API_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			StorageKey:       getEnv("SESSION_STORAGE_KEY", "ui_axon_auth"),
			RefreshThreshold: getDurationEnv("SESSION_REFRESH_THRESHOLD", 5*time.Minute),
		},
		Storage: StorageConfig{
			Backend: getEnv("SESSION_STORAGE_BACKEND", "file"),
			FileDir: getEnv("SESSION_STORAGE_DIR", defaultStorageDir()),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "uiaxon"),
			Password: getEnv("DB_PASSWORD", "uiaxon"),
			DBName:   getEnv("DB_NAME", "uiaxon"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Stub: StubConfig{
			Port:          getEnv("STUB_PORT", "8080"),
			Issuer:        getEnv("STUB_ISSUER", "ui-axon-stub"),
			AccessExpiry:  getDurationEnv("STUB_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getDurationEnv("STUB_REFRESH_EXPIRY", 7*24*time.Hour),
			ResetExpiry:   getDurationEnv("STUB_RESET_EXPIRY", time.Hour),
		},
		Email: EmailConfig{
			Enabled:   getBoolEnv("EMAIL_ENABLED", false),
			APIKey:    getEnv("RESEND_API_KEY", ""),
			FromEmail: getEnv("EMAIL_FROM", ""),
			FromName:  getEnv("EMAIL_FROM_NAME", "ui-axon"),
			ResetURL:  getEnv("EMAIL_RESET_URL", "http://localhost:3000/reset-password"),
		},
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ui-axon"
	}
	return home + "/.ui-axon"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
