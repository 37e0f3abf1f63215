package warehouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"orderdwh/internal/config"
	"orderdwh/internal/metrics"
	"orderdwh/internal/parser/csv"
	"orderdwh/internal/storage"
)

// FactStats reports a fact-loading pass: inserted rows plus every repair
// that was applied on the way in. Repairs are counted, never silent.
type FactStats struct {
	Inserted     int64
	Filtered     int64 // orders outside the prior/train eval sets
	RepairedHour int64
	RepairedDOW  int64
	Clipped      int64 // cart positions clipped to the column range
	Skipped      int64 // unparsable rows soft-dropped
	Elapsed      time.Duration
}

// LoadOrders streams the order header extract into the order fact. Rows are
// normalized on the way through: out-of-range hour/dow values are folded
// back into range, the composite time key is derived, and a missing
// days_since_prior_order becomes 0. The aggregate columns start as
// placeholders and are only real after the metrics stage has run.
func LoadOrders(ctx context.Context, repo storage.Repository, cfg config.Config) (FactStats, error) {
	var st FactStats
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	out := make(chan []any, rowBuffer(cfg.ChunkSize))

	var fileStat csv.Stats
	g.Go(func() error {
		defer close(out)
		stat, err := csv.StreamColumns(gctx, cfg.Path(config.FileOrders),
			[]string{"order_id", "user_id", "eval_set", "order_number", "order_dow", "order_hour_of_day", "days_since_prior_order"},
			csv.Options{HasHeader: true, TrimSpace: true},
			func(line int, values []string) error {
				// The "test" eval set has no line items and is excluded.
				if evalSet := values[2]; evalSet != "prior" && evalSet != "train" {
					st.Filtered++
					return nil
				}

				orderID, err1 := parseInt(values[0])
				userID, err2 := parseInt(values[1])
				orderNumber, err3 := parseInt(values[3])
				dowRaw, err4 := parseInt(values[4])
				hourRaw, err5 := parseInt(values[5])
				days, err6 := parseFloatOrZero(values[6])
				if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
					st.Skipped++
					return nil
				}

				hour := RepairHour(int(hourRaw))
				if hour != int(hourRaw) {
					st.RepairedHour++
				}
				dow := RepairDOW(int(dowRaw))
				if dow != int(dowRaw) {
					st.RepairedDOW++
				}

				row := []any{orderID, userID, TimeKey(dow, hour), orderNumber, days, dow, 0, 0.0}
				select {
				case out <- row:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		fileStat = stat
		if err != nil {
			return fmt.Errorf("read orders: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, cfg.Job, orderColumns, out, cfg.BatchSize, cfg.ParamCeiling,
			func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, TableOrders, columns, rows)
			})
		st.Inserted = n
		if err != nil {
			return fmt.Errorf("load %s: %w", TableOrders, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return st, err
	}

	st.Skipped += fileStat.Skipped
	st.Elapsed = time.Since(start)
	recordFactStats(cfg.Job, st)
	log.Printf("facts: %s rows=%d filtered=%d repaired_hour=%d repaired_dow=%d skipped=%d fingerprint=%s elapsed=%s",
		TableOrders, st.Inserted, st.Filtered, st.RepairedHour, st.RepairedDOW, st.Skipped,
		fileStat.Fingerprint, st.Elapsed.Truncate(time.Millisecond))
	return st, nil
}

// LoadOrderDetails streams the prior and train line-item extracts, unioned,
// into the line-item fact. Every row carries the time-key sentinel; the
// backfill stage copies the real key across from the parent order later.
// Quantity is a constant 1: the source models repeat products as repeat rows.
func LoadOrderDetails(ctx context.Context, repo storage.Repository, cfg config.Config) (FactStats, error) {
	var st FactStats
	start := time.Now()

	files := []string{cfg.Path(config.FileDetailsPrior), cfg.Path(config.FileDetailsTrain)}

	g, gctx := errgroup.WithContext(ctx)
	out := make(chan []any, rowBuffer(cfg.ChunkSize))

	g.Go(func() error {
		defer close(out)
		for _, path := range files {
			stat, err := csv.StreamColumns(gctx, path,
				[]string{"order_id", "product_id", "add_to_cart_order", "reordered"},
				csv.Options{HasHeader: true, TrimSpace: true},
				func(line int, values []string) error {
					orderID, err1 := parseInt(values[0])
					productID, err2 := parseInt(values[1])
					cartPos, err3 := parseInt(values[2])
					reordered, err4 := parseInt(values[3])
					if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
						st.Skipped++
						return nil
					}
					if cartPos > maxCartPosition {
						cartPos = maxCartPosition
						st.Clipped++
					}

					row := []any{orderID, productID, TimeKeySentinel, cartPos, reordered, 1}
					select {
					case out <- row:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
			if err != nil {
				return fmt.Errorf("read details %s: %w", path, err)
			}
			st.Skipped += stat.Skipped
			log.Printf("facts: details source=%s rows=%d fingerprint=%s", path, stat.Rows, stat.Fingerprint)
		}
		return nil
	})

	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, cfg.Job, detailColumns, out, cfg.BatchSize, cfg.ParamCeiling,
			func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, TableOrderDetail, columns, rows)
			})
		st.Inserted = n
		if err != nil {
			return fmt.Errorf("load %s: %w", TableOrderDetail, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return st, err
	}

	st.Elapsed = time.Since(start)
	recordFactStats(cfg.Job, st)
	log.Printf("facts: %s rows=%d clipped=%d skipped=%d elapsed=%s",
		TableOrderDetail, st.Inserted, st.Clipped, st.Skipped, st.Elapsed.Truncate(time.Millisecond))
	return st, nil
}

func recordFactStats(job string, st FactStats) {
	metrics.RecordRows(job, "inserted", st.Inserted)
	metrics.RecordRows(job, "filtered", st.Filtered)
	metrics.RecordRows(job, "repaired_hour", st.RepairedHour)
	metrics.RecordRows(job, "repaired_dow", st.RepairedDOW)
	metrics.RecordRows(job, "clipped", st.Clipped)
	metrics.RecordRows(job, "skipped", st.Skipped)
}
