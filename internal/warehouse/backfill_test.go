package warehouse

import (
	"context"
	"strings"
	"testing"
)

func TestBackfillTimeKeys(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	seedOrder(t, repo, 1, 7, 208, 1, 0, 2)
	seedOrder(t, repo, 2, 7, 103, 2, 7, 1)
	seedDetail(t, repo, 1, 10, TimeKeySentinel, 1, 0)
	seedDetail(t, repo, 1, 11, TimeKeySentinel, 2, 1)
	seedDetail(t, repo, 2, 10, TimeKeySentinel, 1, 1)
	// Already corrected: must not be touched again.
	seedDetail(t, repo, 2, 11, 103, 2, 0)

	res, err := BackfillTimeKeys(ctx, repo, "test", nil)
	if err != nil {
		t.Fatalf("BackfillTimeKeys: %v", err)
	}
	if res.Rows != 3 {
		t.Fatalf("Rows = %d, want 3 (pre-corrected row excluded)", res.Rows)
	}
	if res.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", res.Remaining)
	}

	// Every line item now matches its parent order's key.
	mismatched, err := repo.SelectInt(ctx,
		`SELECT COUNT(*) FROM "Fact_Order_Details" d JOIN "Fact_Orders" o ON d.order_id = o.order_id
		 WHERE d.time_id != o.time_id`)
	if err != nil {
		t.Fatalf("mismatch count: %v", err)
	}
	if mismatched != 0 {
		t.Fatalf("%d line items disagree with their parent order", mismatched)
	}
}

// TestBackfillTimeKeys_Rerun: the sentinel filter makes a second pass a
// natural no-op.
func TestBackfillTimeKeys_Rerun(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	seedOrder(t, repo, 1, 7, 208, 1, 0, 2)
	seedDetail(t, repo, 1, 10, TimeKeySentinel, 1, 0)

	if _, err := BackfillTimeKeys(ctx, repo, "test", nil); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	res, err := BackfillTimeKeys(ctx, repo, "test", nil)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Rows != 0 {
		t.Fatalf("second pass Rows = %d, want 0", res.Rows)
	}
}

// TestBackfillTimeKeys_PartitionIsolation: p3 failing leaves the other
// partitions processed and the result marked partial.
func TestBackfillTimeKeys_PartitionIsolation(t *testing.T) {
	t.Parallel()

	partitions := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p_max"}
	repo := &scriptRepo{kind: "mysql", failOn: "(p3)", rowsPerExec: 4}

	res, err := BackfillTimeKeys(context.Background(), repo, "test", partitions)
	if err != nil {
		t.Fatalf("BackfillTimeKeys: %v", err)
	}
	if !res.Partial() {
		t.Fatalf("expected partial result")
	}
	if got := res.FailedPartitions(); len(got) != 1 || got[0] != "p3" {
		t.Fatalf("FailedPartitions = %v, want [p3]", got)
	}
	if len(res.Partitions) != len(partitions) {
		t.Fatalf("attempted %d partitions, want %d", len(res.Partitions), len(partitions))
	}
	if res.Rows != 4*7 {
		t.Fatalf("Rows = %d, want %d", res.Rows, 4*7)
	}
	// Sentinel filter present on every partition statement.
	for _, q := range repo.execQueries {
		if !strings.Contains(q, "WHERE fod.time_id = ?") {
			t.Fatalf("partition statement missing sentinel filter: %q", q)
		}
	}
}
