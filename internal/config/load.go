package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix is the prefix for environment variable overrides.
// Canonical keys are dot + snake_case, so database.pool.max_open is REPOQ_DATABASE_POOL_MAX_OPEN.
const EnvPrefix = "REPOQ"

// passwordPrompter is swapped in tests.
var passwordPrompter = promptPassword

// stdinReader is swapped in tests.
var stdinReader io.Reader = os.Stdin

// Load parses args into a fresh flag set and loads configuration from it.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("repoquery")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFromFlags(fs)
}

// LoadFromFlags loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used for secrets read from files or the prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func LoadFromFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Config file ---
	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("repoquery")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/repoquery/")
		v.AddConfigPath("$HOME/.repoquery")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(fs, v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	// --- DSN from file (explicit override) ---
	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}

	// --- Secure password input (explicit override) ---
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := passwordPrompter()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if !strings.Contains(f.Name, ".") {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// NewFlagSet defines all configuration flags using canonical snake_case keys.
// Flags without a dot in their name are not configuration keys and are left to the caller.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	// Database connection flags
	fs.String("database.dialect", "", "SQL dialect (mysql, postgres, sqlite)")
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")

	// Database discrete connection flags (used when DSN is not set)
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for database password securely")
	fs.String("database.database", "", "Database name (file path for sqlite)")
	fs.String("database.tls_mode", "", "Driver TLS mode (mysql tls=, postgres sslmode=)")
	fs.String("database.role", "", "Database role to SET ROLE before each query")
	fs.StringSlice("database.allowed_roles", nil, "Roles permitted for database.role")

	// Database pool flags
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.Duration("database.connection_timeout", 0, "Max time to wait for database on startup")

	// Repository flags
	fs.String("repository.default_hydration", "", "Default hydration mode (object, array, scalar, single_scalar)")
	fs.Bool("repository.cache_enabled", false, "Enable the result cache")
	fs.Duration("repository.default_cache_ttl", 0, "Result cache TTL when a descriptor sets none")
	fs.Int("repository.cache_max_entries", 0, "Maximum entries held by the result cache (0 = unbounded)")
	fs.Int("repository.max_joins", 0, "Maximum joins per query (0 = unlimited)")
	fs.Int("repository.max_parameters", 0, "Maximum bind parameters per query (0 = unlimited)")
	fs.Int("repository.max_limit", 0, "Maximum row limit per query (0 = unlimited)")

	// Metadata flags
	fs.String("metadata.source", "", "Metadata source (introspect, manifest)")
	fs.String("metadata.manifest_file", "", "Path to a YAML entity manifest")
	fs.String("metadata.namespace", "", "Namespace for introspected entity names")
	fs.StringSlice("metadata.filters.allow_tables", nil, "Table glob patterns to include (default all)")
	fs.StringSlice("metadata.filters.deny_tables", nil, "Table glob patterns to exclude")
	fs.Bool("metadata.filters.scan_views_enabled", false, "Include views in introspected metadata")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")

	// Config file flag
	fs.StringP("config", "c", "", "Config file path")

	return fs
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	// Database connection defaults
	v.SetDefault("database.dialect", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "repoquery")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.tls_mode", "")
	v.SetDefault("database.role", "")
	v.SetDefault("database.allowed_roles", []string{})

	// Database pool defaults
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 30*time.Second)

	// Repository defaults
	v.SetDefault("repository.default_hydration", "object")
	v.SetDefault("repository.cache_enabled", false)
	v.SetDefault("repository.default_cache_ttl", time.Minute)
	v.SetDefault("repository.cache_max_entries", 1024)
	v.SetDefault("repository.max_joins", 0)
	v.SetDefault("repository.max_parameters", 0)
	v.SetDefault("repository.max_limit", 0)

	// Metadata defaults
	v.SetDefault("metadata.source", MetadataSourceIntrospect)
	v.SetDefault("metadata.manifest_file", "")
	v.SetDefault("metadata.namespace", "")
	v.SetDefault("metadata.uuid_columns", map[string][]string{})
	v.SetDefault("metadata.bool_columns", map[string][]string{})
	v.SetDefault("metadata.filters.allow_tables", []string{})
	v.SetDefault("metadata.filters.deny_tables", []string{})
	v.SetDefault("metadata.filters.scan_views_enabled", false)
	v.SetDefault("metadata.filters.allow_columns", map[string][]string{})
	v.SetDefault("metadata.filters.deny_columns", map[string][]string{})

	// Observability defaults
	v.SetDefault("observability.service_name", "repoquery")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	// Naming defaults
	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret from path, or from stdin when path is "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(stdinReader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}

	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
