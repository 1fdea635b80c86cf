// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"repoquery/internal/naming"
	"repoquery/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Repository    RepositoryConfig    `mapstructure:"repository"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Dialect selects the driver and SQL rendering: mysql (default), postgres or sqlite.
	Dialect string `mapstructure:"dialect"`
	// ConnectionString is a complete driver DSN. When set, it overrides the discrete fields.
	// Configured via "dsn" in YAML or REPOQ_DATABASE_DSN env var.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN. Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	// Discrete connection fields (used when DSN is not set). For sqlite, Database is the file path.
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`
	// TLSMode is passed to the driver: "tls" for mysql, "sslmode" for postgres.
	TLSMode string `mapstructure:"tls_mode"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`

	// Role is switched to with SET ROLE before each query when set.
	Role string `mapstructure:"role"`
	// AllowedRoles restricts Role when non-empty.
	AllowedRoles []string `mapstructure:"allowed_roles"`
}

// RepositoryConfig holds defaults applied to every repository call.
type RepositoryConfig struct {
	// DefaultHydration is used when a descriptor does not name a hydration mode.
	DefaultHydration string `mapstructure:"default_hydration"`
	CacheEnabled     bool   `mapstructure:"cache_enabled"`
	// DefaultCacheTTL applies when a descriptor enables caching without a TTL.
	DefaultCacheTTL time.Duration `mapstructure:"default_cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries"`

	MaxJoins      int `mapstructure:"max_joins"`
	MaxParameters int `mapstructure:"max_parameters"`
	MaxLimit      int `mapstructure:"max_limit"`
}

// Metadata sources.
const (
	MetadataSourceIntrospect = "introspect"
	MetadataSourceManifest   = "manifest"
)

// MetadataConfig selects where entity metadata comes from.
type MetadataConfig struct {
	Source       string `mapstructure:"source"`
	ManifestFile string `mapstructure:"manifest_file"`
	// Namespace qualifies introspected entity names.
	Namespace string `mapstructure:"namespace"`
	// UUIDColumns maps table glob patterns to column glob patterns holding UUIDs.
	UUIDColumns map[string][]string `mapstructure:"uuid_columns"`
	// BoolColumns maps table glob patterns to tinyint(1) column glob patterns holding booleans.
	BoolColumns map[string][]string `mapstructure:"bool_columns"`
	// Filters hides introspected tables and columns from the entity metadata.
	Filters schemafilter.Config `mapstructure:"filters"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`
}
