package sqlite

import (
	"context"
	"testing"
)

func openTest(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func TestCopyFromAndSelect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTest(t)

	if _, err := repo.Exec(ctx, `CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	n, err := repo.CopyFrom(ctx, "t", []string{"id", "name"},
		[][]any{{1, "a"}, {2, "b"}, {3, nil}})
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}

	count, err := repo.SelectInt(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("SelectInt: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	avg, err := repo.SelectFloat(ctx, "SELECT AVG(id) FROM t WHERE id <= ?", 2)
	if err != nil {
		t.Fatalf("SelectFloat: %v", err)
	}
	if avg != 1.5 {
		t.Fatalf("avg = %v, want 1.5", avg)
	}
}

func TestCopyFrom_EmptyAndMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTest(t)
	if _, err := repo.Exec(ctx, `CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if n, err := repo.CopyFrom(ctx, "t", []string{"id"}, nil); err != nil || n != 0 {
		t.Fatalf("empty CopyFrom = (%d, %v), want (0, nil)", n, err)
	}
	if _, err := repo.CopyFrom(ctx, "t", []string{"id"}, [][]any{{1, 2}}); err == nil {
		t.Fatalf("expected width-mismatch error")
	}
}

// TestCopyFrom_BatchAtomic: a failing batch leaves no partial rows behind.
func TestCopyFrom_BatchAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTest(t)
	if _, err := repo.Exec(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	// Second row violates the primary key; whole batch must roll back.
	if _, err := repo.CopyFrom(ctx, "t", []string{"id"}, [][]any{{1}, {1}}); err == nil {
		t.Fatalf("expected constraint error")
	}
	count, err := repo.SelectInt(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("SelectInt: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d after failed batch, want 0", count)
	}
}

func TestTableExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTest(t)
	if _, err := repo.Exec(ctx, `CREATE TABLE "Fact_Orders" (order_id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	ok, err := repo.TableExists(ctx, "Fact_Orders")
	if err != nil || !ok {
		t.Fatalf("TableExists(Fact_Orders) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = repo.TableExists(ctx, "Dim_User")
	if err != nil || ok {
		t.Fatalf("TableExists(Dim_User) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewRepository(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
