// Package config manages configuration for the catalog tools.
//
// # Configuration Loading
//
// Defaults are overlaid by the YAML file named by CATALOG_CONFIG, then by
// environment variables:
//
//	cfg, err := config.Load()
//	if err := cfg.Validate(); err != nil { ... }
//	mgr, err := database.NewManager(cfg.Store(), database.WithLogger(logger))
//
// # Configuration Groups
//
//   - DatabaseConfig: driver selection and connection settings
//   - RetryConfig: attempts and backoff around each store round trip
//   - LogConfig: slog level and format
//
// # Environment Variables
//
//	DB_DRIVER                  - mongo, surrealdb, or badger (default: mongo)
//	DB_URI                     - mongo connection string
//	DB_HOST, DB_PORT           - surrealdb endpoint
//	DB_NAMESPACE, DB_DATABASE  - store namespace and database
//	DB_USER, DB_PASSWORD       - default credentials
//	DB_PATH, DB_IN_MEMORY      - badger location
//	DB_MAX_OPEN_CONNECTIONS    - open connection bound (default: 16)
//	DB_CONNECT_TIMEOUT         - dial timeout (default: 10s)
//	DB_RETRY_MAX_ATTEMPTS      - attempts per round trip (default: 5)
//	DB_RETRY_INITIAL_INTERVAL  - first backoff (default: 100ms)
//	DB_RETRY_MAX_INTERVAL      - backoff ceiling (default: 2s)
//	LOG_LEVEL                  - debug, info, warn, or error (default: info)
//	LOG_FORMAT                 - json or text (default: json)
package config
