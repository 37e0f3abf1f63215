// Generic batched loader: drains typed rows from a channel and invokes a
// backend bulk-insert function (CopyFn) per batch.
//
// Batch sizing respects two bounds at once: the configured row cap and the
// storage engine's bound-parameter ceiling, so rows_per_batch * columns never
// exceeds what a single prepared statement may carry.
//
// Logging: on every successful flush a concise progress line is emitted with
// running totals and instantaneous rows/sec since the previous flush.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"orderdwh/internal/metrics"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// the provided rows (aligned to 'columns' order) and return the number of
// rows inserted. Each call must be atomic.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// BatchCap returns the effective rows-per-batch: the configured batchSize,
// reduced so that rows*columns stays at or under paramCeiling. Always >= 1.
func BatchCap(batchSize, columns, paramCeiling int) int {
	rowsCap := batchSize
	if columns > 0 && paramCeiling > 0 {
		if byParams := paramCeiling / columns; byParams < rowsCap {
			rowsCap = byParams
		}
	}
	if rowsCap < 1 {
		rowsCap = 1
	}
	return rowsCap
}

// LoadBatches drains rows from 'in', groups them into ceiling-safe batches,
// and calls copyFn per non-empty batch. It returns the total number of rows
// reported by copyFn and the first error encountered. Each successful flush
// counts toward the batch metric under the given job label.
//
// Cancellation: returns (total, ctx.Err()) when canceled. A failure aborts
// the load but previously flushed batches remain committed; that makes batch
// boundaries the unit of recoverability.
func LoadBatches(
	ctx context.Context,
	job string,
	columns []string,
	in <-chan []any,
	batchSize int,
	paramCeiling int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	capRows := BatchCap(batchSize, len(columns), paramCeiling)

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, capRows)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0] // keep capacity

		if err != nil {
			log.Printf("loader: batch insert failed after=%d total=%d err=%v", n, total, err)
			return err
		}

		batches++
		metrics.RecordBatches(job, 1)
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d total_inserted=%s elapsed=%s",
			batches,
			rps,
			n,
			humanize.Comma(total),
			now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= capRows {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
