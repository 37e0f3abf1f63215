// Package storage contains the storage-agnostic repository contract and the
// batched loader used by every load stage. Concrete backends (MySQL,
// Postgres, SQLite) live in subpackages and register themselves with the
// factory at init time, so the rest of the program never imports a database
// driver directly.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config identifies and parameterizes a backend.
type Config struct {
	// Kind selects the registered backend ("mysql", "postgres", "sqlite").
	Kind string
	// DSN is the backend-specific connection string.
	DSN string
}

// Repository is the minimal surface the pipeline needs from a database.
//
// All SQL passed to Exec/SelectInt/SelectFloat uses '?' placeholders;
// backends whose protocol numbers parameters (Postgres) rewrite them.
type Repository interface {
	// CopyFrom bulk-inserts rows (aligned to columns order) into table using
	// the backend's most efficient primitive. Each call is atomic: either the
	// whole batch lands or none of it does.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// SelectInt runs a single-value query and returns it as int64.
	SelectInt(ctx context.Context, query string, args ...any) (int64, error)

	// SelectFloat runs a single-value query and returns it as float64.
	SelectFloat(ctx context.Context, query string, args ...any) (float64, error)

	// TableExists reports whether table is present in the current schema.
	TableExists(ctx context.Context, table string) (bool, error)

	// Kind returns the registered backend kind, used for dialect decisions.
	Kind() string

	// Close releases the underlying pool/connection.
	Close()
}

// Factory constructs a Repository for a given Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) a backend factory for the given kind.
// It is typically called from backend packages' init() functions.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind, or fails if no backend is registered.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
