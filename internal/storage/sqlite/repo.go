// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the CGO-free modernc driver. SQLite has no partitions and
// no COPY; batched multi-row INSERTs inside a transaction keep load
// performance acceptable. The backend exists for local development and as
// the integration-test substrate for the warehouse stages.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"orderdwh/internal/storage"
)

// init registers the "sqlite" backend with the factory.
func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg.DSN)
	})
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository opens a SQLite database. DSN is passed to database/sql
// directly, e.g. "file:dwh.db?cache=shared" or ":memory:".
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// In-memory databases vanish per-connection; a single connection keeps
	// every statement on the same database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return &Repository{db: db}, nil
}

// CopyFrom inserts rows into table with one multi-row INSERT inside a
// transaction, mirroring the MySQL backend's batch atomicity.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

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
			return 0, fmt.Errorf("sqlite: CopyFrom: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(single)
		args = append(args, row...)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
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

// TableExists checks sqlite_master for the table.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := r.SelectInt(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, fmt.Errorf("sqlite: table check %s: %w", table, err)
	}
	return n > 0, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "sqlite" }

// Close closes the database.
func (r *Repository) Close() { r.db.Close() }

// quoteIdent double-quotes a single identifier segment.
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
