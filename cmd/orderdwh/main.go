package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"orderdwh/internal/config"
	"orderdwh/internal/metrics"
	"orderdwh/internal/metrics/datadog"
	"orderdwh/internal/metrics/prompush"
	"orderdwh/internal/storage"
	"orderdwh/internal/warehouse"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "orderdwh/internal/storage/all"
)

// main is the entry point for the warehouse load binary. It loads the
// configuration, optionally initializes a metrics backend, opens the storage
// backend, and runs either the full pipeline or a single stage.
func main() {
	var (
		cfgPath           string
		stageFlg          string
		strategyFlg       string
		metricsBackendFlg string
		pushGatewayURLFlg string
		statsdAddrFlg     string
		yes               bool
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "config JSON path (defaults + DWH_* env when empty)")
	flag.StringVar(&stageFlg, "stage", "all", "stage to run: all, dimensions, facts, metrics, backfill, users, verify")
	flag.StringVar(&strategyFlg, "strategy", "", "metrics strategy override: subquery, join, temptable, partitioned")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); empty falls back to METRICS_BACKEND")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddrFlg, "statsd-addr", "127.0.0.1:8125", "DogStatsD address for the datadog backend")
	flag.BoolVar(&yes, "yes", false, "proceed past the already-loaded gate without prompting")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if strategyFlg != "" {
		cfg.MetricsStrategy = strategyFlg
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	setupMetrics(cfg, metricsBackendFlg, pushGatewayURLFlg, statsdAddrFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.DB.Kind, DSN: cfg.DB.DSNString()})
	if err != nil {
		fatalf("connect %s: %v", cfg.DB.Kind, err)
	}
	defer repo.Close()

	confirm := promptConfirm
	if yes {
		confirm = func(string) bool { return true }
	}
	p := warehouse.NewPipeline(repo, cfg, confirm)

	if *verbose {
		log.Printf("pipeline: db=%s data_dir=%s batch=%d strategy=%s stage=%s",
			cfg.DB.Kind, cfg.DataDir, cfg.BatchSize, cfg.MetricsStrategy, stageFlg)
	}

	if err := runStage(ctx, p, stageFlg); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// runStage dispatches the -stage flag. Single stages skip the prerequisite
// and gate checks so a resumed run does not trip over its own data.
func runStage(ctx context.Context, p *warehouse.Pipeline, stage string) error {
	switch stage {
	case "all", "":
		return p.Run(ctx)
	case "dimensions":
		return p.RunStage(ctx, warehouse.StageDimensions)
	case "facts":
		return p.RunStage(ctx, warehouse.StageFacts)
	case "metrics":
		return p.RunStage(ctx, warehouse.StageMetrics)
	case "backfill":
		return p.RunStage(ctx, warehouse.StageBackfill)
	case "users":
		return p.RunStage(ctx, warehouse.StageUsers)
	case "verify":
		return p.RunStage(ctx, warehouse.StageVerify)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// resolveMetricsBackend picks the effective backend name. The flag wins when
// set; an empty flag falls back to the METRICS_BACKEND environment variable.
func resolveMetricsBackend(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("METRICS_BACKEND")
}

// setupMetrics installs the requested metrics backend; unset means nop.
func setupMetrics(cfg config.Config, backendName, gwURL, statsdAddr string, verbose bool) {
	backendName = resolveMetricsBackend(backendName)
	switch backendName {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(cfg.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%s job=%s", gwURL, cfg.Job)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:      statsdAddr,
			Namespace: "dwh.",
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s", statsdAddr)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// promptConfirm asks on stdin when the already-loaded gate trips.
func promptConfirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
