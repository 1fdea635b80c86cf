package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"repoquery/internal/introspection"
	"repoquery/internal/sqlutil"
)

// SQLDialect resolves the configured dialect name.
func (d *DatabaseConfig) SQLDialect() (sqlutil.Dialect, error) {
	return sqlutil.DialectByName(d.Dialect)
}

// DSN returns the data source name for the configured dialect.
// If ConnectionString is set, it is used as-is apart from mysql time parsing defaults.
// Otherwise, builds the DSN from discrete fields.
func (d *DatabaseConfig) DSN() (string, error) {
	dialect, err := d.SQLDialect()
	if err != nil {
		return "", err
	}
	switch dialect.Name {
	case sqlutil.Postgres.Name:
		return d.postgresDSN(), nil
	case sqlutil.SQLite.Name:
		return d.sqliteDSN(), nil
	default:
		return d.mysqlDSN()
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}
	if d.TLSMode != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = d.TLSMode
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	query := url.Values{}
	if d.TLSMode != "" {
		query.Set("sslmode", d.TLSMode)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func (d *DatabaseConfig) sqliteDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn
	}
	if strings.TrimSpace(d.Database) == "" {
		return ":memory:"
	}
	return d.Database
}

// EffectiveDatabaseName returns the database name used for schema introspection.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	configDatabase := strings.TrimSpace(d.Database)
	dsnDatabase, err := parseDSNDatabaseName(d.ConnectionString)
	if err != nil {
		return "", err
	}

	if configDatabase != "" {
		if dsnDatabase != "" && configDatabase != dsnDatabase {
			return "", fmt.Errorf(
				"database mismatch: database.database=%q but database.dsn targets %q",
				configDatabase,
				dsnDatabase,
			)
		}
		return configDatabase, nil
	}
	if dsnDatabase != "" {
		return dsnDatabase, nil
	}
	return "", fmt.Errorf("no database name configured: set database.database or include /<database> in database.dsn")
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// validatePostgresDSN checks a URL-form postgres DSN. Key/value DSNs are passed through.
func validatePostgresDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}
	_, err := pq.ParseURL(dsn)
	return err
}

// TypeOverrides returns the column kind overrides applied after introspection.
func (m *MetadataConfig) TypeOverrides() introspection.TypeOverrides {
	return introspection.TypeOverrides{
		UUID: m.UUIDColumns,
		Bool: m.BoolColumns,
	}
}
