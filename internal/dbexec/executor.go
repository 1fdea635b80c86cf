// Package dbexec provides database query execution abstractions.
// It supports direct execution and role-scoped execution on a pinned connection.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap in role-aware behavior.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

// QueryAll runs query and scans every row into columns raw values. The rows are
// always closed.
func QueryAll(ctx context.Context, exec QueryExecutor, columns int, query string, args ...any) ([][]any, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, columns)
		dest := make([]any, columns)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryInt64 runs a query returning a single integer, such as a count.
func QueryInt64(ctx context.Context, exec QueryExecutor, query string, args ...any) (int64, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}
	return n, rows.Err()
}
