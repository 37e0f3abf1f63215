// Package config defines the explicit configuration model for the order
// warehouse ETL. A Config is constructed once by the caller (CLI or test),
// optionally decoded from a JSON file, overlaid with environment variables,
// and then passed by value into every component. There is no ambient global
// configuration state.
//
// Environment overrides (12-factor style) use the DWH_ prefix; every knob has
// a documented default so a bare `Default()` works against a local database.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DB holds connection settings for the warehouse database.
//
// Either DSN is set directly, or it is assembled from the individual
// host/port/user/password/database fields by backend convention (see
// DSNString).
type DB struct {
	// Kind selects the storage backend: "mysql" (default), "postgres",
	// or "sqlite".
	Kind string `json:"kind"`

	// DSN, when non-empty, is used verbatim and the discrete fields below
	// are ignored.
	DSN string `json:"dsn"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// DSNString returns the effective connection string for the configured kind.
// An explicit DSN always wins.
func (d DB) DSNString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Kind {
	case "postgres":
		return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s",
			d.User, d.Password, d.Host, d.Port, d.Database)
	case "sqlite":
		// Discrete fields make no sense for SQLite; treat Database as a path.
		return d.Database
	default: // mysql
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Database)
	}
}

// Config is the full configuration surface of the pipeline.
type Config struct {
	// Job names the run for metrics labeling and log context.
	Job string `json:"job"`

	DB DB `json:"db"`

	// DataDir is the directory holding the source CSV extracts.
	DataDir string `json:"data_dir"`

	// BatchSize caps the number of rows per insert batch. The effective batch
	// is further reduced so rows*columns never exceeds ParamCeiling.
	BatchSize int `json:"batch_size"`

	// ChunkSize caps how many parsed rows may sit between the CSV reader and
	// the batch loader at once; it bounds peak memory for the 33M-row detail
	// files.
	ChunkSize int `json:"chunk_size"`

	// ParamCeiling is the maximum number of bound statement parameters the
	// storage engine accepts per statement.
	ParamCeiling int `json:"param_ceiling"`

	// Partitions enumerates the physical partitions of the line-item fact
	// table, in processing order.
	Partitions []string `json:"partitions"`

	// MetricsStrategy selects how the aggregate columns on the order fact are
	// recomputed: "subquery", "join", "temptable", or "partitioned".
	MetricsStrategy string `json:"metrics_strategy"`

	// VIPOrders and RegularOrders are the segment-ladder thresholds for the
	// derived user dimension: total_orders >= VIPOrders is "VIP",
	// >= RegularOrders is "Regular", anything else "New".
	VIPOrders     int `json:"vip_orders"`
	RegularOrders int `json:"regular_orders"`
}

// Source file names, fixed by the upstream extraction process.
const (
	FileDepartments  = "departments.csv"
	FileAisles       = "aisles.csv"
	FileProducts     = "products.csv"
	FileOrders       = "orders.csv"
	FileDetailsPrior = "order_products__prior.csv"
	FileDetailsTrain = "order_products__train.csv"
)

// Path returns the path of one of the source files inside DataDir.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		Job: "orderdwh_etl",
		DB: DB{
			Kind:     "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "",
			Database: "instacart_dwh",
		},
		DataDir:         "data",
		BatchSize:       10000,
		ChunkSize:       50000,
		ParamCeiling:    8000,
		Partitions:      []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p_max"},
		MetricsStrategy: "join",
		VIPOrders:       100,
		RegularOrders:   10,
	}
}

// Load decodes a JSON config file over the defaults and then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return c, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			return c, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

// applyEnv overlays DWH_* environment variables onto c.
func (c *Config) applyEnv() {
	c.DB.Kind = getenvStr("DWH_DB_KIND", c.DB.Kind)
	c.DB.DSN = getenvStr("DWH_DB_DSN", c.DB.DSN)
	c.DB.Host = getenvStr("DWH_DB_HOST", c.DB.Host)
	c.DB.Port = getenvInt("DWH_DB_PORT", c.DB.Port)
	c.DB.User = getenvStr("DWH_DB_USER", c.DB.User)
	c.DB.Password = getenvStr("DWH_DB_PASSWORD", c.DB.Password)
	c.DB.Database = getenvStr("DWH_DB_NAME", c.DB.Database)

	c.DataDir = getenvStr("DWH_DATA_DIR", c.DataDir)
	c.BatchSize = getenvInt("DWH_BATCH_SIZE", c.BatchSize)
	c.ChunkSize = getenvInt("DWH_CHUNK_SIZE", c.ChunkSize)
	c.ParamCeiling = getenvInt("DWH_PARAM_CEILING", c.ParamCeiling)
	c.MetricsStrategy = getenvStr("DWH_METRICS_STRATEGY", c.MetricsStrategy)
	c.VIPOrders = getenvInt("DWH_VIP_ORDERS", c.VIPOrders)
	c.RegularOrders = getenvInt("DWH_REGULAR_ORDERS", c.RegularOrders)
}

// getenvStr reads a string from environment, returning def when unset.
func getenvStr(k, def string) string {
	if s := os.Getenv(k); s != "" {
		return s
	}
	return def
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
