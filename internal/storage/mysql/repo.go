// Package mysql implements the MySQL/MariaDB-backed storage.Repository. This
// is the primary warehouse backend: the line-item fact table is hash
// partitioned there and the partition-scoped UPDATE syntax the pipeline
// relies on is MariaDB dialect.
//
// Bulk inserts use a single multi-row INSERT per batch; the loader upstream
// guarantees the statement stays under the engine's bound-parameter ceiling.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"orderdwh/internal/storage"
)

// init registers the "mysql" backend with the factory.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg.DSN)
	})
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository opens a connection pool and fails fast on unreachable
// servers (connectivity errors are fatal, never retried).
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// CopyFrom inserts rows into table with one multi-row INSERT inside a
// transaction, so the batch lands atomically.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query, args, err := buildInsert(table, columns, rows)
	if err != nil {
		return 0, fmt.Errorf("mysql: CopyFrom: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("mysql: insert into %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// buildInsert renders a multi-row INSERT and flattens rows into args.
func buildInsert(table string, columns []string, rows [][]any) (string, []any, error) {
	single := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(single)
		args = append(args, row...)
	}
	return b.String(), args, nil
}

// Exec runs a statement and returns affected rows.
func (r *Repository) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SelectInt runs a single-value query.
func (r *Repository) SelectInt(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// SelectFloat runs a single-value query.
func (r *Repository) SelectFloat(ctx context.Context, query string, args ...any) (float64, error) {
	var v sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

// TableExists checks information_schema for table in the current database.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := r.SelectInt(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		table)
	if err != nil {
		return false, fmt.Errorf("mysql: table check %s: %w", table, err)
	}
	return n > 0, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "mysql" }

// Close closes the connection pool.
func (r *Repository) Close() { r.db.Close() }

// quoteIdent backtick-quotes a single identifier segment.
func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
