// Package postgres implements a PostgreSQL-backed storage.Repository on top
// of a pgx connection pool. Bulk inserts go through the COPY protocol rather
// than multi-row INSERTs, so the loader's parameter ceiling never binds here.
//
// The warehouse layer writes '?' placeholders; this backend rewrites them to
// positional $1..$n before execution.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orderdwh/internal/storage"
)

// init registers the "postgres" backend with the factory.
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg.DSN)
	})
}

// Repository is a PostgreSQL-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository opens a pgx pool and fails fast on unreachable servers.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// CopyFrom streams rows via the COPY protocol. pgx.Identifier quotes the
// table name, which keeps the mixed-case warehouse table names intact.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", table, err)
	}
	return n, nil
}

// Exec runs a statement and returns affected rows.
func (r *Repository) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, rewritePlaceholders(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SelectInt runs a single-value query.
func (r *Repository) SelectInt(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, rewritePlaceholders(query), args...).Scan(&n)
	return n, err
}

// SelectFloat runs a single-value query. NULL aggregates scan as zero.
func (r *Repository) SelectFloat(ctx context.Context, query string, args ...any) (float64, error) {
	var v *float64
	if err := r.pool.QueryRow(ctx, rewritePlaceholders(query), args...).Scan(&v); err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

// TableExists checks information_schema in the current schema search path.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("postgres: table check %s: %w", table, err)
	}
	return n > 0, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "postgres" }

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// rewritePlaceholders converts '?' placeholders to positional $1..$n.
// Question marks inside single-quoted string literals are left alone.
func rewritePlaceholders(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
