// Static validation/linting for Config values. Checks are performed over a
// fully resolved Config and returned as a list of issues (errors and
// warnings) that callers can surface in the CLI or in tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "db.kind", "batch_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownKinds are the storage backends this binary can be wired with.
var knownKinds = map[string]struct{}{
	"mysql":    {},
	"postgres": {},
	"sqlite":   {},
}

// knownStrategies are the supported metrics recomputation strategies.
var knownStrategies = map[string]struct{}{
	"subquery":    {},
	"join":        {},
	"temptable":   {},
	"partitioned": {},
}

// Validate performs static validation of a Config. It does not mutate the
// config; callers decide whether warnings are fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		errf("job", "job must not be empty; it labels metrics and identifies runs")
	}

	if _, ok := knownKinds[c.DB.Kind]; !ok {
		errf("db.kind", "unknown storage kind %q (want mysql, postgres, or sqlite)", c.DB.Kind)
	}
	if c.DB.DSN == "" {
		switch c.DB.Kind {
		case "sqlite":
			if strings.TrimSpace(c.DB.Database) == "" {
				errf("db.database", "sqlite requires a database path (or an explicit dsn)")
			}
		default:
			if strings.TrimSpace(c.DB.Host) == "" {
				errf("db.host", "host must not be empty when dsn is unset")
			}
			if c.DB.Port <= 0 || c.DB.Port > 65535 {
				errf("db.port", "port %d out of range", c.DB.Port)
			}
			if strings.TrimSpace(c.DB.Database) == "" {
				errf("db.database", "database name must not be empty")
			}
		}
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errf("data_dir", "data_dir must not be empty")
	}
	if c.BatchSize <= 0 {
		errf("batch_size", "batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.ChunkSize <= 0 {
		errf("chunk_size", "chunk_size must be > 0, got %d", c.ChunkSize)
	}
	// The widest table loaded in batches has 8 columns; a ceiling below that
	// cannot fit even a single row per statement.
	if c.ParamCeiling < 8 {
		errf("param_ceiling", "param_ceiling %d cannot fit a single order row (8 columns)", c.ParamCeiling)
	}

	if _, ok := knownStrategies[c.MetricsStrategy]; !ok {
		errf("metrics_strategy", "unknown strategy %q (want subquery, join, temptable, or partitioned)", c.MetricsStrategy)
	}
	if c.MetricsStrategy == "partitioned" && len(c.Partitions) == 0 {
		errf("partitions", "partitioned strategy requires a non-empty partition list")
	}

	if c.VIPOrders <= 0 || c.RegularOrders <= 0 {
		errf("vip_orders", "segment thresholds must be > 0 (vip=%d regular=%d)", c.VIPOrders, c.RegularOrders)
	} else if c.VIPOrders <= c.RegularOrders {
		errf("vip_orders", "vip_orders (%d) must be greater than regular_orders (%d)", c.VIPOrders, c.RegularOrders)
	}

	if c.BatchSize > 0 && c.ChunkSize > 0 && c.BatchSize > c.ChunkSize {
		warnf("batch_size", "batch_size (%d) larger than chunk_size (%d); the reader cannot stage a full batch ahead of the insert path", c.BatchSize, c.ChunkSize)
	}

	return issues
}

// HasErrors reports whether any issue in the list is of error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
