package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DB        DBConfig
	Server    ServerConfig
	Weather   WeatherConfig
	Refresh   RefreshConfig
	Telemetry TelemetryConfig
	Seeder    SeederConfig
}

// DBType represents database type
type DBType string

const (
	DBTypeSQLite     DBType = "sqlite"
	DBTypeMemory     DBType = "memory"
	DBTypePostgreSQL DBType = "postgres"
)

// DBConfig holds database configuration
type DBConfig struct {
	Type     DBType
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the database connection string
func (c DBConfig) DSN() string {
	switch c.Type {
	case DBTypeMemory:
		// Named in-memory databases let tests run isolated from each other
		if c.Name != "" && c.Name != "weather" {
			return fmt.Sprintf("file:%s?mode=memory&cache=shared", c.Name)
		}
		return "file::memory:?cache=shared"
	case DBTypeSQLite:
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", c.Path)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// IsSQLite returns true for both the file and the in-memory SQLite backends
func (c DBConfig) IsSQLite() bool {
	return c.Type == DBTypeSQLite || c.Type == DBTypeMemory
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
}

// WeatherConfig holds upstream provider settings
type WeatherConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RefreshConfig holds background refresh settings
type RefreshConfig struct {
	Interval       time.Duration
	ListAttempts   int
	ListBackoff    time.Duration
	ListBackoffMax time.Duration
}

// TelemetryConfig holds Application Insights settings
type TelemetryConfig struct {
	InstrumentationKey string
}

// SeederConfig holds settings for the city list import
type SeederConfig struct {
	File string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbType := DBType(getEnv("DB_TYPE", string(DBTypeSQLite)))
	if dbType != DBTypePostgreSQL && dbType != DBTypeMemory && dbType != DBTypeSQLite {
		dbType = DBTypeSQLite
	}

	timeout, err := getEnvAsDuration("WEATHER_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvAsDuration("REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: must be positive")
	}
	backoff, err := getEnvAsDuration("REFRESH_LIST_BACKOFF", time.Second)
	if err != nil {
		return nil, err
	}
	backoffMax, err := getEnvAsDuration("REFRESH_LIST_BACKOFF_MAX", 30*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		DB: DBConfig{
			Type:     dbType,
			Path:     getEnv("DB_PATH", "cities_weather.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "weather"),
			Password: getEnv("DB_PASSWORD", "weather_password"),
			Name:     getEnv("DB_NAME", "weather"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("APP_PORT", "8080"),
		},
		Weather: WeatherConfig{
			BaseURL: getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			Timeout: timeout,
		},
		Refresh: RefreshConfig{
			Interval:       interval,
			ListAttempts:   getEnvAsInt("REFRESH_LIST_ATTEMPTS", 5),
			ListBackoff:    backoff,
			ListBackoffMax: backoffMax,
		},
		Telemetry: TelemetryConfig{
			InstrumentationKey: getEnv("APPINSIGHTS_INSTRUMENTATIONKEY", ""),
		},
		Seeder: SeederConfig{
			File: getEnv("SEED_FILE", ""),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
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
