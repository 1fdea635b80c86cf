package config

import (
	"fmt"
	"path"
	"strings"

	"repoquery/internal/descriptor"
	"repoquery/internal/naming"
	"repoquery/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Repository.validate(result)
	c.Metadata.validate(result, c.Database.Dialect)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.SQLDialect()
	if err != nil {
		result.addError("database.dialect", err.Error(), "valid values are: mysql, postgres, sqlite")
		return
	}

	if dialect.Name != sqlutil.SQLite.Name && strings.TrimSpace(d.ConnectionString) == "" {
		if d.Port < 1 || d.Port > 65535 {
			result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
		}
		if strings.TrimSpace(d.Host) == "" {
			result.addError("database.host", "host cannot be empty", "set database.host or database.dsn")
		}
	}

	switch dialect.Name {
	case sqlutil.MySQL.Name:
		if _, err := d.EffectiveDatabaseName(); err != nil {
			result.addError("database.database", err.Error(), "")
		}
	case sqlutil.Postgres.Name:
		if err := validatePostgresDSN(strings.TrimSpace(d.ConnectionString)); err != nil {
			result.addError("database.dsn", fmt.Sprintf("invalid postgres URL: %v", err), "")
		}
	case sqlutil.SQLite.Name:
		if strings.TrimSpace(d.Role) != "" {
			result.addError("database.role", "sqlite has no database roles", "unset database.role")
		}
		if strings.TrimSpace(d.ConnectionString) == "" && strings.TrimSpace(d.Database) == "" {
			result.addWarning("database.database", "no sqlite file configured; using an in-memory database", "")
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle",
			fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
			"the driver caps idle connections at max_open")
	}
	if d.Pool.MaxLifetime < 0 {
		result.addError("database.pool.max_lifetime", "max_lifetime cannot be negative", "")
	}
	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}

	if role := strings.TrimSpace(d.Role); role != "" && len(d.AllowedRoles) > 0 {
		allowed := false
		for _, candidate := range d.AllowedRoles {
			if candidate == role {
				allowed = true
				break
			}
		}
		if !allowed {
			result.addError("database.role", fmt.Sprintf("role %q is not in database.allowed_roles", role), "")
		}
	}
}

func (r *RepositoryConfig) validate(result *ValidationResult) {
	if _, err := descriptor.ParseHydrationMode(r.DefaultHydration); err != nil {
		result.addError("repository.default_hydration", err.Error(), "valid values are: object, array, scalar, single_scalar")
	}
	if r.DefaultCacheTTL < 0 {
		result.addError("repository.default_cache_ttl", "default_cache_ttl cannot be negative", "")
	}
	if r.CacheMaxEntries < 0 {
		result.addError("repository.cache_max_entries", "cache_max_entries cannot be negative", "")
	}
	if r.CacheEnabled && r.DefaultCacheTTL == 0 {
		result.addWarning("repository.default_cache_ttl",
			"cache is enabled with no default TTL; cached results never expire",
			"set a TTL or evict regions explicitly")
	}
	if r.MaxJoins < 0 {
		result.addError("repository.max_joins", "max_joins cannot be negative", "")
	}
	if r.MaxParameters < 0 {
		result.addError("repository.max_parameters", "max_parameters cannot be negative", "")
	}
	if r.MaxLimit < 0 {
		result.addError("repository.max_limit", "max_limit cannot be negative", "")
	}
}

func (m *MetadataConfig) validate(result *ValidationResult, dialectName string) {
	switch m.Source {
	case MetadataSourceIntrospect:
		if dialect, err := sqlutil.DialectByName(dialectName); err == nil && dialect.Name != sqlutil.MySQL.Name {
			result.addError("metadata.source",
				fmt.Sprintf("introspection is not supported for dialect %q", dialect.Name),
				"use metadata.source=manifest with metadata.manifest_file")
		}
	case MetadataSourceManifest:
		if strings.TrimSpace(m.ManifestFile) == "" {
			result.addError("metadata.manifest_file", "manifest_file is required when metadata.source is manifest", "")
		}
	default:
		result.addError("metadata.source", fmt.Sprintf("invalid metadata source %q", m.Source), "valid values are: introspect, manifest")
	}

	if m.Source == MetadataSourceManifest && (len(m.UUIDColumns) > 0 || len(m.BoolColumns) > 0) {
		result.addWarning("metadata.uuid_columns", "column type overrides only apply to introspected metadata", "")
	}
	validatePatternMap(result, "metadata.uuid_columns", m.UUIDColumns)
	validatePatternMap(result, "metadata.bool_columns", m.BoolColumns)
	validatePatternList(result, "metadata.filters.allow_tables", m.Filters.AllowTables)
	validatePatternList(result, "metadata.filters.deny_tables", m.Filters.DenyTables)
	validatePatternMap(result, "metadata.filters.allow_columns", m.Filters.AllowColumns)
	validatePatternMap(result, "metadata.filters.deny_columns", m.Filters.DenyColumns)
}

func validatePatternList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if _, err := path.Match(strings.ToLower(pattern), "x"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	checkOverrides := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" {
				result.addError(field, "override key cannot be empty", "")
				continue
			}
			if strings.TrimSpace(to) == "" {
				result.addError(field, fmt.Sprintf("override for %q cannot be empty", from), "")
			}
		}
	}
	checkOverrides("naming.plural_overrides", cfg.PluralOverrides)
	checkOverrides("naming.singular_overrides", cfg.SingularOverrides)
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.addError(field, "table pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "x"); err != nil {
			result.addError(field, fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err), "")
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.addError(field, fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern), "")
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "x"); err != nil {
				result.addError(field, fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err), "")
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level",
			fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format",
			fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio",
			fmt.Sprintf("trace_sample_ratio %v must be between 0.0 and 1.0", o.TraceSampleRatio), "")
	}
	if strings.TrimSpace(o.ServiceName) == "" && (o.MetricsEnabled || o.TracingEnabled) {
		result.addWarning("observability.service_name", "service_name is empty", "set a service name to label metrics and spans")
	}
}
