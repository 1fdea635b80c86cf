package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"repoquery/internal/config"
	"repoquery/internal/dbexec"
	"repoquery/internal/descriptor"
	"repoquery/internal/introspection"
	"repoquery/internal/logging"
	"repoquery/internal/metadata"
	"repoquery/internal/naming"
	"repoquery/internal/observability"
	"repoquery/internal/planner"
	"repoquery/internal/repository"
	"repoquery/internal/resultcache"
	"repoquery/internal/schemafilter"
	"repoquery/internal/sqlutil"
)

const (
	operationFetchAll = "fetch_all"
	operationFetchOne = "fetch_one"
	operationCount    = "count"

	initialRetryInterval = 500 * time.Millisecond
)

type commandOptions struct {
	version      bool
	entity       string
	descriptor   string
	operation    string
	explain      bool
	dumpManifest bool
}

func defineCommandFlags(fs *pflag.FlagSet) *commandOptions {
	opts := &commandOptions{}
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.StringVarP(&opts.entity, "entity", "e", "", "Root entity name, e.g. blog.Post")
	fs.StringVarP(&opts.descriptor, "descriptor", "d", "", "Query descriptor as JSON, or @path to read it from a file (@- for stdin)")
	fs.StringVarP(&opts.operation, "operation", "o", operationFetchAll, "Operation to run: fetch_all, fetch_one, count")
	fs.BoolVar(&opts.explain, "explain", false, "Print the planned SQL instead of running it")
	fs.BoolVar(&opts.dumpManifest, "dump-manifest", false, "Print the entity metadata as a YAML manifest and exit")
	return opts
}

type dbStatsRegistration interface {
	Unregister() error
}

type app struct {
	cfg     *config.Config
	opts    *commandOptions
	out     io.Writer
	stdin   io.Reader
	logger  *logging.Logger
	dialect sqlutil.Dialect

	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.RepositoryMetrics

	db         *sql.DB
	dbStatsReg dbStatsRegistration
}

func newApp(cfg *config.Config, opts *commandOptions, stdout io.Writer) (*app, error) {
	switch opts.operation {
	case operationFetchAll, operationFetchOne, operationCount:
	default:
		return nil, fmt.Errorf("unknown operation %q (valid: %s, %s, %s)", opts.operation, operationFetchAll, operationFetchOne, operationCount)
	}

	dialect, err := cfg.Database.SQLDialect()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
	slog.SetDefault(logger.Logger)

	a := &app{
		cfg:     cfg,
		opts:    opts,
		out:     stdout,
		stdin:   os.Stdin,
		logger:  logger,
		dialect: dialect,
	}

	otelCfg := observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
	}

	if cfg.Observability.MetricsEnabled {
		a.meterProvider, err = observability.InitMeterProvider(otelCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		a.metrics, err = observability.InitRepositoryMetrics()
		if err != nil {
			logger.Warn("failed to initialize repository metrics", slog.String("error", err.Error()))
		}
	}

	if cfg.Observability.TracingEnabled {
		a.tracerProvider, err = observability.InitTracerProvider(otelCfg, nil)
		if err != nil {
			a.close(context.Background())
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	return a, nil
}

func (a *app) execute(ctx context.Context) error {
	entities, err := a.loadEntities(ctx)
	if err != nil {
		return err
	}

	if a.opts.dumpManifest {
		return metadata.WriteManifest(a.out, a.cfg.Metadata.Namespace, entities)
	}

	registry := metadata.NewRegistry()
	if err := registry.Register(entities...); err != nil {
		return fmt.Errorf("invalid entity metadata: %w", err)
	}

	if strings.TrimSpace(a.opts.entity) == "" {
		return fmt.Errorf("--entity is required (known entities: %s)", strings.Join(registry.Names(), ", "))
	}
	if _, err := registry.Entity(a.opts.entity); err != nil {
		return err
	}

	input, err := parseDescriptor(a.opts.descriptor, a.stdin)
	if err != nil {
		return err
	}

	hydration, err := descriptor.ParseHydrationMode(a.cfg.Repository.DefaultHydration)
	if err != nil {
		return err
	}

	p := planner.New(registry,
		planner.WithDialect(a.dialect),
		planner.WithLimits(planner.PlanLimits{
			MaxJoins:      a.cfg.Repository.MaxJoins,
			MaxParameters: a.cfg.Repository.MaxParameters,
			MaxLimit:      a.cfg.Repository.MaxLimit,
		}),
	)
	repoOpts := []repository.Option{
		repository.WithDefaultHydration(hydration),
		repository.WithLogger(a.logger),
		repository.WithMetrics(a.metrics),
	}
	if a.cfg.Repository.CacheEnabled {
		repoOpts = append(repoOpts, repository.WithCache(
			resultcache.NewMemoryCache(a.cfg.Repository.CacheMaxEntries),
			a.cfg.Repository.DefaultCacheTTL,
		))
	}

	if a.opts.explain {
		repo := repository.New(a.opts.entity, p, nil, repoOpts...)
		explanation, err := repo.Explain(input)
		if err != nil {
			return err
		}
		return a.printJSON(explanation)
	}

	db, err := a.database(ctx)
	if err != nil {
		return err
	}
	exec, ctx := a.executor(ctx, db)
	repo := repository.New(a.opts.entity, p, exec, repoOpts...)

	var result any
	switch a.opts.operation {
	case operationFetchOne:
		result, err = repo.FetchOne(ctx, input)
	case operationCount:
		var n int64
		n, err = repo.Count(ctx, input)
		result = map[string]int64{"count": n}
	default:
		result, err = repo.FetchAll(ctx, input)
	}
	if err != nil {
		return err
	}
	return a.printJSON(result)
}

func (a *app) loadEntities(ctx context.Context) ([]metadata.Entity, error) {
	if a.cfg.Metadata.Source == config.MetadataSourceManifest {
		f, err := os.Open(a.cfg.Metadata.ManifestFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer f.Close()
		entities, err := metadata.LoadManifest(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest %s: %w", a.cfg.Metadata.ManifestFile, err)
		}
		a.logger.Info("loaded manifest",
			slog.String("file", a.cfg.Metadata.ManifestFile),
			slog.Int("entities", len(entities)),
		)
		return entities, nil
	}

	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	databaseName, err := a.cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, err
	}
	schema, err := introspection.IntrospectDatabaseContext(ctx, db, databaseName)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", databaseName, err)
	}
	tableCount := len(schema.Tables)
	schemafilter.Apply(schema, a.cfg.Metadata.Filters)
	if err := a.cfg.Metadata.TypeOverrides().Apply(schema); err != nil {
		return nil, err
	}
	entities, err := introspection.BuildMetadata(ctx, schema, introspection.BuildOptions{
		Namespace: a.cfg.Metadata.Namespace,
		Namer:     naming.New(a.cfg.Naming, a.logger.Logger),
		Logger:    a.logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("introspected schema",
		slog.String("database", databaseName),
		slog.Int("tables", tableCount),
		slog.Int("tables_filtered", tableCount-len(schema.Tables)),
		slog.Int("entities", len(entities)),
	)
	return entities, nil
}

func (a *app) executor(ctx context.Context, db *sql.DB) (dbexec.QueryExecutor, context.Context) {
	role := strings.TrimSpace(a.cfg.Database.Role)
	if role == "" {
		return dbexec.NewStandardExecutor(db), ctx
	}
	exec := dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		Dialect:      a.dialect,
		AllowedRoles: a.cfg.Database.AllowedRoles,
		ValidateRole: len(a.cfg.Database.AllowedRoles) > 0,
	})
	return exec, dbexec.WithRole(ctx, role)
}

// database opens the connection pool on first use.
func (a *app) database(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	dsn, err := a.cfg.Database.DSN()
	if err != nil {
		return nil, err
	}

	system := dbSystem(a.dialect)
	var db *sql.DB
	if a.cfg.Observability.MetricsEnabled || a.cfg.Observability.TracingEnabled {
		opts := []otelsql.Option{otelsql.WithAttributes(system)}
		if a.cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}
		db, err = otelsql.Open(a.dialect.DriverName, dsn, opts...)
		if err != nil {
			return nil, err
		}
		if a.cfg.Observability.MetricsEnabled {
			a.dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
			if err != nil {
				a.logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}
	} else {
		db, err = sql.Open(a.dialect.DriverName, dsn)
		if err != nil {
			return nil, err
		}
	}

	db.SetMaxOpenConns(a.cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(a.cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(a.cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, a.cfg.Database.ConnectionTimeout, a.logger, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a.logger.Info("connected to database",
		slog.String("dialect", a.dialect.Name),
		slog.Int("pool_max_open", a.cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", a.cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", a.cfg.Database.Pool.MaxLifetime),
	)
	a.db = db
	return db, nil
}

func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect.Name {
	case sqlutil.Postgres.Name:
		return semconv.DBSystemPostgreSQL
	case sqlutil.SQLite.Name:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

func waitForDatabase(ctx context.Context, timeout time.Duration, logger *logging.Logger, db *sql.DB) error {
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	interval := initialRetryInterval
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// parseDescriptor reads a JSON descriptor. A leading @ names a file, @- reads stdin.
func parseDescriptor(raw string, stdin io.Reader) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		path := strings.TrimPrefix(raw, "@")
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return map[string]any{}, nil
	}

	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid descriptor JSON: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	out = normalizeNumbers(out).(map[string]any)
	if err := keepObjectOrder(raw, out); err != nil {
		return nil, fmt.Errorf("invalid descriptor JSON: %w", err)
	}
	return out, nil
}

// normalizeNumbers turns json.Number values into int64 where they are integral and
// float64 otherwise, so they bind as native driver arguments.
func normalizeNumbers(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for k, item := range value {
			value[k] = normalizeNumbers(item)
		}
		return value
	case []any:
		for i, item := range value {
			value[i] = normalizeNumbers(item)
		}
		return value
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return n
		}
		if f, err := value.Float64(); err == nil {
			return f
		}
		return value.String()
	default:
		return v
	}
}

func (a *app) printJSON(v any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (a *app) close(ctx context.Context) {
	if a.meterProvider != nil {
		if summary, err := a.meterProvider.Summary(ctx); err == nil && len(summary) > 0 {
			attrs := make([]any, 0, len(summary))
			for name, value := range summary {
				attrs = append(attrs, slog.Float64(name, value))
			}
			a.logger.Debug("query metrics", attrs...)
		}
	}
	if a.dbStatsReg != nil {
		if err := a.dbStatsReg.Unregister(); err != nil {
			a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
	if a.tracerProvider != nil {
		_ = a.tracerProvider.Shutdown(ctx, a.logger.Logger)
	}
	if a.meterProvider != nil {
		_ = a.meterProvider.Shutdown(ctx, a.logger.Logger)
	}
}
