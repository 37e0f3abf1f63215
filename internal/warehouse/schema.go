// Package warehouse implements the star-schema load pipeline: dimension
// population, chunked fact loading, derived-aggregate recomputation, the
// line-item time-key backfill, and the rebuilt user dimension.
//
// All SQL uses '?' placeholders; the postgres backend rewrites them. Writes
// go through storage.Repository, so every stage runs unchanged against
// MySQL/MariaDB, PostgreSQL, or SQLite. Partition-scoped statements are
// MariaDB dialect and degrade to whole-table passes elsewhere.
package warehouse

// Warehouse table names, fixed by the pre-existing schema.
const (
	TableTime        = "Dim_Time"
	TableDepartment  = "Dim_Department"
	TableAisle       = "Dim_Aisle"
	TableProduct     = "Dim_Product"
	TableUser        = "Dim_User"
	TableOrders      = "Fact_Orders"
	TableOrderDetail = "Fact_Order_Details"
)

// RequiredTables is the prerequisite set checked before any stage writes.
var RequiredTables = []string{
	TableTime,
	TableDepartment,
	TableAisle,
	TableProduct,
	TableUser,
	TableOrders,
	TableOrderDetail,
}

// TimeKeySentinel marks line items whose time key has not been backfilled
// yet. It is outside the dow*100+hour domain, so it can never collide with a
// real key (midnight Sunday legitimately encodes to 0).
const TimeKeySentinel = -1

// maxCartPosition clips add_to_cart_order to the SMALLINT range of the
// target column.
const maxCartPosition = 32767

// Column sets, aligned with the insert row layouts produced by the loaders.
var (
	timeColumns       = []string{"time_id", "day_of_week", "hour_of_day"}
	departmentColumns = []string{"department_id", "department_name", "category"}
	aisleColumns      = []string{"aisle_id", "aisle_name", "category"}
	productColumns    = []string{"product_id", "product_name", "department_id", "aisle_id", "category"}
	orderColumns      = []string{
		"order_id", "user_id", "time_id", "order_number",
		"days_since_prior_order", "order_dow", "total_items", "reorder_ratio",
	}
	detailColumns = []string{
		"order_id", "product_id", "time_id", "add_to_cart_order", "reordered", "quantity",
	}
)

// quoteIdent quotes an identifier for the backend dialect: backticks for
// MySQL, double quotes otherwise. The mixed-case table names need quoting on
// PostgreSQL to stay case-sensitive.
func quoteIdent(kind, id string) string {
	if kind == "mysql" {
		return "`" + id + "`"
	}
	return `"` + id + `"`
}
