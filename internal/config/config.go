package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgo/catalog/internal/database"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds store connection settings
type DatabaseConfig struct {
	Driver    string `yaml:"driver"`
	URI       string `yaml:"uri"`
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`

	// Path and InMemory apply to the embedded badger store.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`

	MaxOpenConnections int           `yaml:"max_open_connections"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
}

// RetryConfig bounds the retry loop around each store round trip
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// LogConfig holds structured logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaults returns the configuration used when neither a file nor the
// environment sets a value.
func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:             database.DriverMongo,
			URI:                "mongodb://localhost:27017",
			Host:               "localhost",
			Port:               "8000",
			Namespace:          "catalog",
			Database:           "catalog",
			Path:               "./data",
			MaxOpenConnections: 16,
			ConnectTimeout:     10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the YAML file named by CATALOG_CONFIG, if
// any, then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CATALOG_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	db := &cfg.Database
	db.Driver = getEnv("DB_DRIVER", db.Driver)
	db.URI = getEnv("DB_URI", db.URI)
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnv("DB_PORT", db.Port)
	db.Namespace = getEnv("DB_NAMESPACE", db.Namespace)
	db.Database = getEnv("DB_DATABASE", db.Database)
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.Path = getEnv("DB_PATH", db.Path)
	db.InMemory = getBoolEnv("DB_IN_MEMORY", db.InMemory)
	db.MaxOpenConnections = getIntEnv("DB_MAX_OPEN_CONNECTIONS", db.MaxOpenConnections)
	db.ConnectTimeout = getDurationEnv("DB_CONNECT_TIMEOUT", db.ConnectTimeout)

	r := &cfg.Retry
	r.MaxAttempts = getIntEnv("DB_RETRY_MAX_ATTEMPTS", r.MaxAttempts)
	r.InitialInterval = getDurationEnv("DB_RETRY_INITIAL_INTERVAL", r.InitialInterval)
	r.MaxInterval = getDurationEnv("DB_RETRY_MAX_INTERVAL", r.MaxInterval)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Database validation
	switch c.Database.Driver {
	case database.DriverMongo:
		if c.Database.URI == "" {
			errs = append(errs, errors.New("DB_URI is required for the mongo driver"))
		}
	case database.DriverSurrealDB:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the surrealdb driver"))
		}
		if c.Database.Port == "" {
			errs = append(errs, errors.New("DB_PORT is required for the surrealdb driver"))
		}
		if c.Database.Namespace == "" {
			errs = append(errs, errors.New("DB_NAMESPACE is required for the surrealdb driver"))
		}
	case database.DriverBadger:
		if c.Database.Path == "" && !c.Database.InMemory {
			errs = append(errs, errors.New("DB_PATH is required unless DB_IN_MEMORY is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be 'mongo', 'surrealdb', or 'badger', got '%s'", c.Database.Driver))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("DB_DATABASE is required"))
	}
	if c.Database.MaxOpenConnections <= 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNECTIONS must be positive"))
	}

	// Retry validation
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("DB_RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, errors.New("DB_RETRY_MAX_INTERVAL must not be below DB_RETRY_INITIAL_INTERVAL"))
	}

	// Log validation
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got '%s'", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Store maps the configuration onto the database package's Config.
func (c *Config) Store() database.Config {
	return database.Config{
		Driver:             c.Database.Driver,
		URI:                c.Database.URI,
		Host:               c.Database.Host,
		Port:               c.Database.Port,
		User:               c.Database.User,
		Password:           c.Database.Password,
		Namespace:          c.Database.Namespace,
		Database:           c.Database.Database,
		Path:               c.Database.Path,
		InMemory:           c.Database.InMemory,
		MaxOpenConnections: c.Database.MaxOpenConnections,
		ConnectTimeout:     c.Database.ConnectTimeout,
		Retry: database.RetryConfig{
			MaxAttempts:     c.Retry.MaxAttempts,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
		},
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("LOG_LEVEL must be 'debug', 'info', 'warn', or 'error', got '%s'", l.Level)
	}
	return lvl, nil
}

// Handler builds the slog handler described by l, writing to w.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	lvl, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
