package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forgo/catalog/internal/database"
)

func TestConfig_Validate_ValidConfig(t *testing.T) {
	cfg := validBaseConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfig_Validate_InvalidDriver(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Database.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid DB_DRIVER")
	}
	if !strings.Contains(err.Error(), "DB_DRIVER") {
		t.Errorf("expected error to mention DB_DRIVER, got: %v", err)
	}
}

func TestConfig_Validate_MongoRequiresURI(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Database.URI = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing DB_URI")
	}
	if !strings.Contains(err.Error(), "DB_URI") {
		t.Errorf("expected error to mention DB_URI, got: %v", err)
	}
}

func TestConfig_Validate_SurrealRequiresHost(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Database.Driver = database.DriverSurrealDB
	cfg.Database.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing DB_HOST")
	}
	if !strings.Contains(err.Error(), "DB_HOST") {
		t.Errorf("expected error to mention DB_HOST, got: %v", err)
	}
}

func TestConfig_Validate_BadgerPath(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Database.Driver = database.DriverBadger
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing DB_PATH")
	}
	if !strings.Contains(err.Error(), "DB_PATH") {
		t.Errorf("expected error to mention DB_PATH, got: %v", err)
	}

	cfg.Database.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected in-memory badger to need no path, got: %v", err)
	}
}

func TestConfig_Validate_RetryBounds(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Retry.MaxAttempts = 0
	cfg.Retry.MaxInterval = time.Millisecond

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid retry settings")
	}
	if !strings.Contains(err.Error(), "DB_RETRY_MAX_ATTEMPTS") {
		t.Errorf("expected error to mention DB_RETRY_MAX_ATTEMPTS, got: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_RETRY_MAX_INTERVAL") {
		t.Errorf("expected error to mention DB_RETRY_MAX_INTERVAL, got: %v", err)
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "nope"},
		Log:      LogConfig{Level: "loud", Format: "xml"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}

	errStr := err.Error()
	expectedFields := []string{"DB_DRIVER", "DB_DATABASE", "DB_MAX_OPEN_CONNECTIONS", "DB_RETRY_MAX_ATTEMPTS", "LOG_LEVEL", "LOG_FORMAT"}
	for _, field := range expectedFields {
		if !strings.Contains(errStr, field) {
			t.Errorf("expected error to mention %s, got: %v", field, err)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CATALOG_CONFIG", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Driver != database.DriverMongo {
		t.Errorf("Driver = %q, want %q", cfg.Database.Driver, database.DriverMongo)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := `
database:
  driver: badger
  path: /var/lib/catalog
  database: shop
retry:
  max_attempts: 3
  initial_interval: 50ms
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CATALOG_CONFIG", path)
	t.Setenv("DB_DATABASE", "override")
	t.Setenv("DB_RETRY_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Driver != database.DriverBadger {
		t.Errorf("Driver = %q, want badger", cfg.Database.Driver)
	}
	if cfg.Database.Path != "/var/lib/catalog" {
		t.Errorf("Path = %q", cfg.Database.Path)
	}
	if cfg.Database.Database != "override" {
		t.Errorf("Database = %q, want env override", cfg.Database.Database)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("unparseable env must keep file value, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialInterval != 50*time.Millisecond {
		t.Errorf("InitialInterval = %v", cfg.Retry.InitialInterval)
	}
	if cfg.Retry.MaxInterval != 2*time.Second {
		t.Errorf("keys absent from the file keep defaults, got %v", cfg.Retry.MaxInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("CATALOG_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestConfig_Store(t *testing.T) {
	cfg := validBaseConfig()
	dc := cfg.Store()

	if dc.Driver != cfg.Database.Driver || dc.URI != cfg.Database.URI {
		t.Errorf("connection fields not mapped: %+v", dc)
	}
	if dc.Retry.MaxAttempts != cfg.Retry.MaxAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want %d", dc.Retry.MaxAttempts, cfg.Retry.MaxAttempts)
	}
	if dc.MaxOpenConnections != cfg.Database.MaxOpenConnections {
		t.Errorf("MaxOpenConnections = %d", dc.MaxOpenConnections)
	}
}

func TestLogConfig_Handler(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"json", "json", `"msg":"hello"`},
		{"text", "text", "msg=hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := LogConfig{Level: "warn", Format: tt.format}
			h := l.Handler(&buf)

			logger := slog.New(h)
			logger.Info("dropped")
			logger.Warn("hello")

			if strings.Contains(buf.String(), "dropped") {
				t.Errorf("info record passed a warn handler: %s", buf.String())
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

// validBaseConfig returns a minimal valid configuration for testing
func validBaseConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:             database.DriverMongo,
			URI:                "mongodb://localhost:27017",
			Host:               "localhost",
			Port:               "8000",
			Namespace:          "catalog",
			Database:           "catalog",
			MaxOpenConnections: 4,
			ConnectTimeout:     time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
