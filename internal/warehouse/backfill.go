package warehouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"orderdwh/internal/metrics"
	"orderdwh/internal/storage"
)

// BackfillResult reports a time-key backfill pass. Remaining counts the line
// items still carrying the sentinel afterwards; zero means the detail fact is
// fully keyed.
type BackfillResult struct {
	Partitions []PartitionResult
	Rows       int64
	Remaining  int64
	Elapsed    time.Duration
}

// Partial reports whether any partition failed.
func (r BackfillResult) Partial() bool {
	for _, p := range r.Partitions {
		if p.Err != nil {
			return true
		}
	}
	return false
}

// FailedPartitions lists the partitions that failed, in processing order.
func (r BackfillResult) FailedPartitions() []string {
	var out []string
	for _, p := range r.Partitions {
		if p.Err != nil {
			out = append(out, p.Partition)
		}
	}
	return out
}

// BackfillTimeKeys copies each order's time key onto its line items. Only
// sentinel rows are touched, so already-corrected rows are naturally
// excluded and the pass is safe to rerun after a partial failure; the
// sentinel filter is the checkpoint. On MariaDB the update runs per detail
// partition to bound lock scope, continuing past individual failures.
func BackfillTimeKeys(ctx context.Context, repo storage.Repository, job string, partitions []string) (BackfillResult, error) {
	var res BackfillResult
	start := time.Now()

	kind := repo.Kind()
	orders := quoteIdent(kind, TableOrders)
	details := quoteIdent(kind, TableOrderDetail)

	if kind != "mysql" {
		query := "UPDATE " + details + " SET time_id = fo.time_id FROM " + orders + " AS fo" +
			" WHERE " + details + ".order_id = fo.order_id AND " + details + ".time_id = ?"
		partStart := time.Now()
		n, err := repo.Exec(ctx, query, TimeKeySentinel)
		res.Partitions = []PartitionResult{{Partition: "all", Rows: n, Elapsed: time.Since(partStart), Err: err}}
		res.Rows = n
		if err != nil {
			return res, fmt.Errorf("backfill time keys: %w", err)
		}
	} else {
		for _, part := range partitions {
			query := "UPDATE " + details + " PARTITION (" + part + ") fod JOIN " + orders + " fo" +
				" ON fod.order_id = fo.order_id SET fod.time_id = fo.time_id WHERE fod.time_id = ?"

			partStart := time.Now()
			n, err := repo.Exec(ctx, query, TimeKeySentinel)
			elapsed := time.Since(partStart)
			metrics.RecordPartition(job, part, err, elapsed)
			if err != nil {
				log.Printf("backfill: partition=%s FAILED after %s: %v", part, elapsed.Truncate(time.Millisecond), err)
			} else {
				res.Rows += n
				log.Printf("backfill: partition=%s rows=%d elapsed=%s", part, n, elapsed.Truncate(time.Millisecond))
			}
			res.Partitions = append(res.Partitions, PartitionResult{Partition: part, Rows: n, Elapsed: elapsed, Err: err})
		}
	}

	remaining, err := repo.SelectInt(ctx,
		"SELECT COUNT(*) FROM "+details+" WHERE time_id = ?", TimeKeySentinel)
	if err != nil {
		return res, fmt.Errorf("count remaining sentinels: %w", err)
	}
	res.Remaining = remaining
	res.Elapsed = time.Since(start)

	metrics.RecordRows(job, "updated", res.Rows)
	if res.Partial() {
		log.Printf("backfill: rows=%d remaining=%d elapsed=%s PARTIAL failed_partitions=%v",
			res.Rows, res.Remaining, res.Elapsed.Truncate(time.Millisecond), res.FailedPartitions())
	} else {
		log.Printf("backfill: rows=%d remaining=%d elapsed=%s",
			res.Rows, res.Remaining, res.Elapsed.Truncate(time.Millisecond))
	}
	return res, nil
}
