package warehouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"orderdwh/internal/metrics"
	"orderdwh/internal/storage"
)

// Segment labels for the derived user dimension.
const (
	SegmentVIP     = "VIP"
	SegmentRegular = "Regular"
	SegmentNew     = "New"
)

// Segment maps a user's total order count onto the threshold ladder. Both
// thresholds are inclusive; vipMin must exceed regularMin. This is the same
// ladder the bulk INSERT encodes as a CASE expression.
func Segment(totalOrders, vipMin, regularMin int) string {
	switch {
	case totalOrders >= vipMin:
		return SegmentVIP
	case totalOrders >= regularMin:
		return SegmentRegular
	default:
		return SegmentNew
	}
}

// BuildUserDimension rebuilds the user dimension from scratch: existing rows
// are cleared and one row per distinct user is derived by grouping the order
// fact. It must run after the metrics stage, since avg_basket_size reads
// total_items; a populated-aggregates guard enforces that for standalone
// invocations.
func BuildUserDimension(ctx context.Context, repo storage.Repository, job string, vipMin, regularMin int) (int64, error) {
	start := time.Now()
	kind := repo.Kind()
	users := quoteIdent(kind, TableUser)
	orders := quoteIdent(kind, TableOrders)

	totalOrders, err := repo.SelectInt(ctx, "SELECT COUNT(*) FROM "+orders)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	if totalOrders > 0 {
		populated, err := repo.SelectInt(ctx, "SELECT COUNT(*) FROM "+orders+" WHERE total_items > 0")
		if err != nil {
			return 0, fmt.Errorf("check aggregates: %w", err)
		}
		if populated == 0 {
			return 0, fmt.Errorf("aggregate columns are unpopulated; run the metrics stage before building %s", TableUser)
		}
	}

	cleared, err := repo.Exec(ctx, "DELETE FROM "+users)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", TableUser, err)
	}
	if cleared > 0 {
		log.Printf("users: cleared %d existing rows", cleared)
	}

	query := "INSERT INTO " + users +
		" (user_id, segment, first_order_dow, avg_basket_size, total_orders, avg_days_between_orders)" +
		" SELECT user_id," +
		" CASE WHEN COUNT(*) >= ? THEN '" + SegmentVIP + "'" +
		" WHEN COUNT(*) >= ? THEN '" + SegmentRegular + "'" +
		" ELSE '" + SegmentNew + "' END," +
		" MIN(order_dow), AVG(total_items * 1.0), COUNT(*), AVG(days_since_prior_order * 1.0)" +
		" FROM " + orders + " GROUP BY user_id"

	n, err := repo.Exec(ctx, query, vipMin, regularMin)
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", TableUser, err)
	}

	metrics.RecordRows(job, "inserted", n)
	log.Printf("users: rows=%d vip_min=%d regular_min=%d elapsed=%s",
		n, vipMin, regularMin, time.Since(start).Truncate(time.Millisecond))
	return n, nil
}
