package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"orderdwh/internal/config"
	"orderdwh/internal/storage"
	"orderdwh/internal/storage/sqlite"
)

// testDDL mirrors the warehouse schema on SQLite, which stands in for the
// real store in integration-style tests.
var testDDL = []string{
	`CREATE TABLE "Dim_Time" (time_id INTEGER PRIMARY KEY, day_of_week INTEGER, hour_of_day INTEGER)`,
	`CREATE TABLE "Dim_Department" (department_id INTEGER PRIMARY KEY, department_name TEXT, category TEXT)`,
	`CREATE TABLE "Dim_Aisle" (aisle_id INTEGER PRIMARY KEY, aisle_name TEXT, category TEXT)`,
	`CREATE TABLE "Dim_Product" (product_id INTEGER PRIMARY KEY, product_name TEXT, department_id INTEGER, aisle_id INTEGER, category TEXT)`,
	`CREATE TABLE "Dim_User" (user_id INTEGER PRIMARY KEY, segment TEXT, first_order_dow INTEGER, avg_basket_size REAL, total_orders INTEGER, avg_days_between_orders REAL)`,
	`CREATE TABLE "Fact_Orders" (order_id INTEGER PRIMARY KEY, user_id INTEGER, time_id INTEGER, order_number INTEGER, days_since_prior_order REAL, order_dow INTEGER, total_items INTEGER, reorder_ratio REAL)`,
	`CREATE TABLE "Fact_Order_Details" (order_id INTEGER, product_id INTEGER, time_id INTEGER, add_to_cart_order INTEGER, reordered INTEGER, quantity INTEGER)`,
}

// newTestRepo opens an in-memory SQLite store with the warehouse schema.
func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(repo.Close)
	for _, ddl := range testDDL {
		if _, err := repo.Exec(context.Background(), ddl); err != nil {
			t.Fatalf("ddl: %v", err)
		}
	}
	return repo
}

// newBareSQLiteRepo opens an in-memory store without any schema, for
// prerequisite-check tests.
func newBareSQLiteRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func seedOrder(t *testing.T, repo storage.Repository, orderID, userID, timeID, orderNumber int, days float64, dow int) {
	t.Helper()
	_, err := repo.Exec(context.Background(),
		`INSERT INTO "Fact_Orders" VALUES (?,?,?,?,?,?,0,0.0)`,
		orderID, userID, timeID, orderNumber, days, dow)
	if err != nil {
		t.Fatalf("seed order %d: %v", orderID, err)
	}
}

func seedDetail(t *testing.T, repo storage.Repository, orderID, productID, timeID, cartPos, reordered int) {
	t.Helper()
	_, err := repo.Exec(context.Background(),
		`INSERT INTO "Fact_Order_Details" VALUES (?,?,?,?,?,1)`,
		orderID, productID, timeID, cartPos, reordered)
	if err != nil {
		t.Fatalf("seed detail %d/%d: %v", orderID, productID, err)
	}
}

// writeCSV drops a small source extract into dir.
func writeCSV(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// testConfig returns a config pointed at dir with small batch sizes.
func testConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.BatchSize = 100
	cfg.ChunkSize = 100
	return cfg
}

// scriptRepo is a scripted storage.Repository for exercising the MariaDB
// partition loops without a server. Exec fails whenever the query contains
// failOn; every query is recorded for assertions.
type scriptRepo struct {
	kind        string
	failOn      string
	rowsPerExec int64

	execQueries []string
	selectInts  map[string]int64 // substring -> value for SelectInt
}

func (s *scriptRepo) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}

func (s *scriptRepo) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.execQueries = append(s.execQueries, query)
	if s.failOn != "" && strings.Contains(query, s.failOn) {
		return 0, fmt.Errorf("scripted failure on %q", s.failOn)
	}
	return s.rowsPerExec, nil
}

func (s *scriptRepo) SelectInt(ctx context.Context, query string, args ...any) (int64, error) {
	for sub, v := range s.selectInts {
		if strings.Contains(query, sub) {
			return v, nil
		}
	}
	return 0, nil
}

func (s *scriptRepo) SelectFloat(ctx context.Context, query string, args ...any) (float64, error) {
	return 0, nil
}

func (s *scriptRepo) TableExists(ctx context.Context, table string) (bool, error) {
	return true, nil
}

func (s *scriptRepo) Kind() string { return s.kind }
func (s *scriptRepo) Close()       {}
