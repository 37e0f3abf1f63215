package warehouse

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"orderdwh/internal/config"
	"orderdwh/internal/metrics"
	"orderdwh/internal/storage"
)

// Stage names the pipeline phases, in execution order.
type Stage string

const (
	StagePrereq     Stage = "prereq"
	StageGate       Stage = "gate"
	StageDimensions Stage = "dimensions"
	StageFacts      Stage = "facts"
	StageMetrics    Stage = "metrics"
	StageBackfill   Stage = "backfill"
	StageUsers      Stage = "users"
	StageVerify     Stage = "verify"
)

// runStages is the full orchestrated sequence.
var runStages = []Stage{
	StagePrereq, StageGate, StageDimensions, StageFacts,
	StageMetrics, StageBackfill, StageUsers, StageVerify,
}

// Pipeline sequences the load stages against one repository. Completed
// stages are tracked explicitly, so ordering dependencies (users after
// metrics) are asserted rather than assumed.
type Pipeline struct {
	repo    storage.Repository
	cfg     config.Config
	confirm func(prompt string) bool
	done    map[Stage]bool
}

// NewPipeline builds a pipeline. confirm decides whether to proceed when the
// already-loaded gate trips; nil means never proceed.
func NewPipeline(repo storage.Repository, cfg config.Config, confirm func(prompt string) bool) *Pipeline {
	return &Pipeline{
		repo:    repo,
		cfg:     cfg,
		confirm: confirm,
		done:    make(map[Stage]bool),
	}
}

// Run executes the full stage sequence. The first failure halts the run;
// there is no cross-stage retry (partition-level continue-on-failure inside
// the metrics and backfill stages is the only tolerated partial failure).
func (p *Pipeline) Run(ctx context.Context) error {
	for _, stage := range runStages {
		if err := p.RunStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

// RunStage executes one stage, recording elapsed time and completion. Stages
// are independently invokable to support resuming after a partial failure.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage) error {
	start := time.Now()
	err := p.execStage(ctx, stage)
	elapsed := time.Since(start)
	metrics.RecordStage(p.cfg.Job, string(stage), err, elapsed)
	if err != nil {
		log.Printf("stage=%s status=failed elapsed=%s err=%v", stage, elapsed.Truncate(time.Millisecond), err)
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	p.done[stage] = true
	log.Printf("stage=%s status=ok elapsed=%s", stage, elapsed.Truncate(time.Millisecond))
	return nil
}

// Done reports whether a stage completed in this pipeline instance.
func (p *Pipeline) Done(stage Stage) bool { return p.done[stage] }

func (p *Pipeline) execStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StagePrereq:
		return p.checkPrerequisites(ctx)
	case StageGate:
		return p.checkAlreadyLoaded(ctx)
	case StageDimensions:
		_, err := LoadDimensions(ctx, p.repo, p.cfg)
		return err
	case StageFacts:
		if _, err := LoadOrders(ctx, p.repo, p.cfg); err != nil {
			return err
		}
		_, err := LoadOrderDetails(ctx, p.repo, p.cfg)
		return err
	case StageMetrics:
		res, err := RecomputeMetrics(ctx, p.repo, p.cfg.Job, Strategy(p.cfg.MetricsStrategy), p.cfg.Partitions)
		if err != nil {
			return err
		}
		if res.Partial() {
			return fmt.Errorf("partial success: partitions %v failed", res.FailedPartitions())
		}
		return nil
	case StageBackfill:
		res, err := BackfillTimeKeys(ctx, p.repo, p.cfg.Job, p.cfg.Partitions)
		if err != nil {
			return err
		}
		if res.Partial() {
			return fmt.Errorf("partial success: partitions %v failed, %d sentinel rows remain",
				res.FailedPartitions(), res.Remaining)
		}
		return nil
	case StageUsers:
		// Standalone runs rely on the data guard inside BuildUserDimension;
		// within a full run the explicit completion check fires first.
		if len(p.done) > 0 && p.done[StageFacts] && !p.done[StageMetrics] {
			return fmt.Errorf("metrics stage has not completed; %s depends on populated aggregates", TableUser)
		}
		_, err := BuildUserDimension(ctx, p.repo, p.cfg.Job, p.cfg.VIPOrders, p.cfg.RegularOrders)
		return err
	case StageVerify:
		return p.verify(ctx)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// checkPrerequisites verifies the pre-existing schema. Missing tables are
// fatal and named; the pipeline never creates them.
func (p *Pipeline) checkPrerequisites(ctx context.Context) error {
	var missing []string
	for _, table := range RequiredTables {
		ok, err := p.repo.TableExists(ctx, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tables: %s (create the schema before loading)",
			strings.Join(missing, ", "))
	}
	return nil
}

// checkAlreadyLoaded is a safety gate against accidental duplicate appends,
// not a correctness mechanism. A populated product dimension is the tell.
func (p *Pipeline) checkAlreadyLoaded(ctx context.Context) error {
	n, err := p.repo.SelectInt(ctx, "SELECT COUNT(*) FROM "+quoteIdent(p.repo.Kind(), TableProduct))
	if err != nil {
		return fmt.Errorf("count %s: %w", TableProduct, err)
	}
	if n == 0 {
		return nil
	}
	prompt := fmt.Sprintf("%s already holds %s rows; loading again will append duplicates. Continue?",
		TableProduct, humanize.Comma(n))
	if p.confirm != nil && p.confirm(prompt) {
		log.Printf("gate: proceeding over %d existing product rows", n)
		return nil
	}
	return fmt.Errorf("data already loaded (%s rows in %s); aborting", humanize.Comma(n), TableProduct)
}

// verify re-reads the completed schema and checks the downstream contract:
// aggregates populated, no sentinel time keys left, user dimension present.
func (p *Pipeline) verify(ctx context.Context) error {
	kind := p.repo.Kind()

	counts := make(map[string]int64, len(RequiredTables))
	for _, table := range RequiredTables {
		n, err := p.repo.SelectInt(ctx, "SELECT COUNT(*) FROM "+quoteIdent(kind, table))
		if err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
		log.Printf("verify: %s rows=%s", table, humanize.Comma(n))
	}

	if counts[TableOrderDetail] > 0 {
		populated, err := p.repo.SelectInt(ctx,
			"SELECT COUNT(*) FROM "+quoteIdent(kind, TableOrders)+" WHERE total_items > 0")
		if err != nil {
			return fmt.Errorf("check aggregates: %w", err)
		}
		if populated == 0 {
			return fmt.Errorf("no order carries a populated total_items; metrics stage incomplete")
		}

		sentinels, err := p.repo.SelectInt(ctx,
			"SELECT COUNT(*) FROM "+quoteIdent(kind, TableOrderDetail)+" WHERE time_id = ?", TimeKeySentinel)
		if err != nil {
			return fmt.Errorf("count sentinels: %w", err)
		}
		if sentinels > 0 {
			return fmt.Errorf("%s line items still carry the sentinel time key; backfill incomplete",
				humanize.Comma(sentinels))
		}

		avgBasket, err := p.repo.SelectFloat(ctx,
			"SELECT AVG(total_items * 1.0) FROM "+quoteIdent(kind, TableOrders))
		if err != nil {
			return fmt.Errorf("avg basket: %w", err)
		}
		avgRatio, err := p.repo.SelectFloat(ctx,
			"SELECT AVG(reorder_ratio) FROM "+quoteIdent(kind, TableOrders))
		if err != nil {
			return fmt.Errorf("avg reorder ratio: %w", err)
		}
		log.Printf("verify: avg_basket=%.2f avg_reorder_ratio=%.3f", avgBasket, avgRatio)
	}

	return nil
}
