package warehouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"orderdwh/internal/classify"
	"orderdwh/internal/config"
	"orderdwh/internal/metrics"
	"orderdwh/internal/parser/csv"
	"orderdwh/internal/storage"
)

// DimensionStats reports what the dimension stage loaded.
type DimensionStats struct {
	TimeRows    int64
	Departments int64
	Aisles      int64
	Products    int64
	Skipped     int64
	Elapsed     time.Duration
}

// LoadDimensions populates the time, department, aisle, and product
// dimensions. Department and aisle are small and land in one insert each;
// products stream through the batched loader. The tables are append-only, so
// the already-loaded gate upstream is what protects against duplicate runs.
func LoadDimensions(ctx context.Context, repo storage.Repository, cfg config.Config) (DimensionStats, error) {
	var st DimensionStats
	start := time.Now()

	n, err := loadTimeDimension(ctx, repo)
	if err != nil {
		return st, err
	}
	st.TimeRows = n

	n, skipped, err := loadClassifiedDimension(ctx, repo, cfg.Path(config.FileDepartments),
		TableDepartment, departmentColumns, []string{"department_id", "department"}, classify.Department)
	if err != nil {
		return st, err
	}
	st.Departments, st.Skipped = n, st.Skipped+skipped

	n, skipped, err = loadClassifiedDimension(ctx, repo, cfg.Path(config.FileAisles),
		TableAisle, aisleColumns, []string{"aisle_id", "aisle"}, classify.Aisle)
	if err != nil {
		return st, err
	}
	st.Aisles, st.Skipped = n, st.Skipped+skipped

	n, skipped, err = loadProducts(ctx, repo, cfg)
	if err != nil {
		return st, err
	}
	st.Products, st.Skipped = n, st.Skipped+skipped

	st.Elapsed = time.Since(start)
	metrics.RecordRows(cfg.Job, "inserted", st.TimeRows+st.Departments+st.Aisles+st.Products)
	metrics.RecordRows(cfg.Job, "skipped", st.Skipped)
	log.Printf("dimensions: time=%d departments=%d aisles=%d products=%d skipped=%d elapsed=%s",
		st.TimeRows, st.Departments, st.Aisles, st.Products, st.Skipped,
		st.Elapsed.Truncate(time.Millisecond))
	return st, nil
}

// loadTimeDimension generates the 168 (dow, hour) rows. The table is fully
// derivable, so a populated table is left alone rather than appended to.
func loadTimeDimension(ctx context.Context, repo storage.Repository) (int64, error) {
	existing, err := repo.SelectInt(ctx, "SELECT COUNT(*) FROM "+quoteIdent(repo.Kind(), TableTime))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", TableTime, err)
	}
	if existing > 0 {
		log.Printf("dimensions: %s already has %d rows, skipping", TableTime, existing)
		return 0, nil
	}

	rows := make([][]any, 0, 168)
	for dow := 0; dow <= 6; dow++ {
		for hour := 0; hour <= 23; hour++ {
			rows = append(rows, []any{TimeKey(dow, hour), dow, hour})
		}
	}
	n, err := repo.CopyFrom(ctx, TableTime, timeColumns, rows)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", TableTime, err)
	}
	return n, nil
}

// loadClassifiedDimension streams a small reference extract, derives the
// category label per row, and inserts the table in a single batch.
func loadClassifiedDimension(
	ctx context.Context,
	repo storage.Repository,
	path, table string,
	columns, sourceColumns []string,
	classifyFn func(string) string,
) (int64, int64, error) {
	var rows [][]any
	st, err := csv.StreamColumns(ctx, path, sourceColumns, csv.Options{HasHeader: true, TrimSpace: true},
		func(line int, values []string) error {
			id, err := parseInt(values[0])
			if err != nil {
				return fmt.Errorf("bad id %q: %w", values[0], err)
			}
			name := values[1]
			rows = append(rows, []any{id, name, classifyFn(name)})
			return nil
		})
	if err != nil {
		return 0, 0, fmt.Errorf("load %s: %w", table, err)
	}

	n, err := repo.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		return 0, 0, fmt.Errorf("load %s: %w", table, err)
	}
	log.Printf("dimensions: %s rows=%d fingerprint=%s", table, n, st.Fingerprint)
	return n, st.Skipped, nil
}

// loadProducts streams the product extract through the batched loader; the
// category column is a static placeholder reserved for future enrichment.
func loadProducts(ctx context.Context, repo storage.Repository, cfg config.Config) (int64, int64, error) {
	var (
		total    int64
		skipped  int64
		fileStat csv.Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	out := make(chan []any, rowBuffer(cfg.ChunkSize))

	g.Go(func() error {
		defer close(out)
		st, err := csv.StreamColumns(gctx, cfg.Path(config.FileProducts),
			[]string{"product_id", "product_name", "aisle_id", "department_id"},
			csv.Options{HasHeader: true, TrimSpace: true},
			func(line int, values []string) error {
				productID, err := parseInt(values[0])
				if err != nil {
					skipped++
					return nil
				}
				aisleID, err := parseInt(values[2])
				if err != nil {
					skipped++
					return nil
				}
				departmentID, err := parseInt(values[3])
				if err != nil {
					skipped++
					return nil
				}
				row := []any{productID, values[1], departmentID, aisleID, classify.DefaultLabel}
				select {
				case out <- row:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		fileStat = st
		if err != nil {
			return fmt.Errorf("read products: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, cfg.Job, productColumns, out, cfg.BatchSize, cfg.ParamCeiling,
			func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, TableProduct, columns, rows)
			})
		total = n
		if err != nil {
			return fmt.Errorf("load %s: %w", TableProduct, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return total, skipped, err
	}
	log.Printf("dimensions: %s rows=%d fingerprint=%s", TableProduct, total, fileStat.Fingerprint)
	return total, skipped + fileStat.Skipped, nil
}
