package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"repoquery/internal/sqlutil"
)

type roleContextKey struct{}

// WithRole attaches a database role to ctx. RoleExecutor switches to it for queries run with ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleContextKey{}, role)
}

// RoleFromContext returns the role attached by WithRole.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleContextKey{}).(string)
	return role, ok
}

// RoleExecutor executes queries using SET ROLE on a dedicated connection.
type RoleExecutor struct {
	db           *sql.DB
	dialect      sqlutil.Dialect
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB      *sql.DB
	Dialect sqlutil.Dialect
	// RoleFromCtx defaults to RoleFromContext.
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query and
// resets the role when the rows are closed.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	roleFromCtx := cfg.RoleFromCtx
	if roleFromCtx == nil {
		roleFromCtx = RoleFromContext
	}
	return &RoleExecutor{
		db:           cfg.DB,
		dialect:      cfg.Dialect,
		roleFromCtx:  roleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

// checkRole returns the role to switch to, or "" when none applies.
func (e *RoleExecutor) checkRole(ctx context.Context) (string, error) {
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return "", nil
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return "", fmt.Errorf("role not allowed: %s", role)
		}
	}
	return role, nil
}

func (e *RoleExecutor) resetRoleSQL() string {
	if e.dialect.Name == sqlutil.Postgres.Name {
		return "RESET ROLE"
	}
	return "SET ROLE DEFAULT"
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	role, err := e.checkRole(ctx)
	if err != nil {
		return nil, err
	}
	if role == "" {
		if e.db == nil {
			return nil, sql.ErrConnDone
		}
		return e.db.QueryContext(ctx, query, args...)
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	cleanup := func() {
		_, _ = conn.ExecContext(context.Background(), e.resetRoleSQL())
		_ = conn.Close()
	}

	// SET ROLE does not accept bind parameters; the role is quoted as an identifier.
	setRoleSQL := fmt.Sprintf("SET ROLE %s", e.dialect.QuoteIdentifier(role))
	if _, err := conn.ExecContext(ctx, setRoleSQL); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to set role %s: %w", role, err)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &roleAwareRows{
		Rows:    rows,
		cleanup: cleanup,
	}, nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
