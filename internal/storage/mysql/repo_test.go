package mysql

import (
	"strings"
	"testing"
)

func TestBuildInsert(t *testing.T) {
	t.Parallel()

	query, args, err := buildInsert("Dim_Department",
		[]string{"department_id", "department_name"},
		[][]any{{1, "Produce"}, {2, "Frozen Foods"}})
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	want := "INSERT INTO `Dim_Department` (`department_id`, `department_name`) VALUES (?,?),(?,?)"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
	if args[2] != 2 || args[3] != "Frozen Foods" {
		t.Fatalf("args misordered: %v", args)
	}
}

func TestBuildInsert_WidthMismatch(t *testing.T) {
	t.Parallel()

	_, _, err := buildInsert("t", []string{"a", "b"}, [][]any{{1}})
	if err == nil {
		t.Fatalf("expected error for short row")
	}
}

// TestBuildInsert_ParamCount: the statement carries exactly rows*columns
// placeholders, which is what the loader's ceiling math assumes.
func TestBuildInsert_ParamCount(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 1000)
	for i := range rows {
		rows[i] = make([]any, 8)
	}
	query, args, err := buildInsert("Fact_Orders", make([]string, 8), rows)
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	if got := strings.Count(query, "?"); got != 8000 {
		t.Fatalf("placeholders = %d, want 8000", got)
	}
	if len(args) != 8000 {
		t.Fatalf("args = %d, want 8000", len(args))
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := quoteIdent("Fact_Orders"); got != "`Fact_Orders`" {
		t.Fatalf("quoteIdent = %q", got)
	}
	if got := quoteIdent("bad`name"); got != "`bad``name`" {
		t.Fatalf("quoteIdent escaping = %q", got)
	}
}
