package warehouse

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
	"github.com/rpattn/retaildwh/internal/rules"
)

// Pipeline is the end-to-end batch loader: validate, stage, merge
// dimensions, load facts, refresh aggregates, finalize the ledger. One
// Pipeline serves many runs; per-run state lives in the batch context and a
// fresh rule engine.
type Pipeline struct {
	ruleSet    rules.RuleSet
	ledger     *Ledger
	staging    repository.StagingRepository
	quarantine repository.QuarantineRepository
	metrics    repository.MetricsRepository
	merger     *DimensionMerger
	loader     *FactLoader
	refresher  *AggregateRefresher
}

func NewPipeline(
	ruleSet rules.RuleSet,
	ledger *Ledger,
	staging repository.StagingRepository,
	quarantine repository.QuarantineRepository,
	metrics repository.MetricsRepository,
	merger *DimensionMerger,
	loader *FactLoader,
	refresher *AggregateRefresher,
) *Pipeline {
	return &Pipeline{
		ruleSet:    ruleSet,
		ledger:     ledger,
		staging:    staging,
		quarantine: quarantine,
		metrics:    metrics,
		merger:     merger,
		loader:     loader,
		refresher:  refresher,
	}
}

// RunOptions controls one pipeline execution.
type RunOptions struct {
	// SourceFile is recorded as row lineage.
	SourceFile string

	// Incremental skips rows at or before the watermark: the newest
	// transaction timestamp staged by a previous successful run.
	Incremental bool
}

// Run executes one batch over the given source rows. Row-level failures are
// quarantined and never abort the run; structural failures finalize the
// ledger as FAILED and are returned.
func (p *Pipeline) Run(ctx context.Context, sourceRows []domain.SourceRow, opts RunOptions) (domain.BatchRecord, error) {
	batch, err := p.ledger.Begin(ctx)
	if err != nil {
		return domain.BatchRecord{}, err
	}
	log.Printf("batch %s started (%d source rows)", batch.ID, len(sourceRows))

	counts, refreshes, runErr := p.run(ctx, batch, sourceRows, opts)
	if runErr != nil {
		failed, finErr := p.ledger.Finish(ctx, batch, domain.BatchStatusFailed, counts, "", runErr)
		if finErr != nil {
			log.Printf("could not record failure of batch %s: %v", batch.ID, finErr)
		}
		return failed, runErr
	}

	status := domain.BatchStatusSuccess
	if counts.Loaded == 0 && counts.Extracted == 0 {
		status = domain.BatchStatusNoData
	}
	final, err := p.ledger.Finish(ctx, batch, status, counts, staleViewDetail(refreshes), nil)
	if err != nil {
		return domain.BatchRecord{}, err
	}
	log.Printf("batch %s finished %s: %d extracted, %d loaded, %d quarantined",
		batch.ID, final.Status, final.RowsExtracted, final.RowsLoaded, final.RowsQuarantined)
	return final, nil
}

func (p *Pipeline) run(ctx context.Context, batch domain.BatchContext, sourceRows []domain.SourceRow, opts RunOptions) (domain.BatchCounts, []domain.RefreshResult, error) {
	var counts domain.BatchCounts

	if opts.Incremental {
		filtered, err := p.applyWatermark(ctx, sourceRows)
		if err != nil {
			return counts, nil, err
		}
		log.Printf("incremental run: %d of %d rows newer than watermark", len(filtered), len(sourceRows))
		sourceRows = filtered
	}
	counts.Extracted = len(sourceRows)
	if counts.Extracted == 0 {
		return counts, nil, nil
	}

	engine := rules.NewEngine(p.ruleSet, batch.AsOf)
	staged, quarantined := p.validate(engine, batch, sourceRows, opts.SourceFile)
	counts.Quarantined = len(quarantined)

	if len(staged) > 0 {
		inserted, err := p.staging.InsertRows(ctx, staged)
		if err != nil {
			return counts, nil, fmt.Errorf("failed to stage rows: %w", err)
		}
		log.Printf("batch %s staged %d rows", batch.ID, inserted)
	}
	if len(quarantined) > 0 {
		if err := p.quarantine.Insert(ctx, quarantined); err != nil {
			return counts, nil, fmt.Errorf("failed to write quarantine records: %w", err)
		}
	}

	if err := p.writeMetrics(ctx, engine, batch); err != nil {
		return counts, nil, err
	}

	if len(staged) == 0 {
		// Everything was rejected or dropped; nothing to merge or load,
		// but the metrics and counts still tell the story.
		return counts, nil, nil
	}

	if _, err := p.merger.MergeAll(ctx); err != nil {
		return counts, nil, err
	}

	loadCounts, err := p.loader.Load(ctx, batch)
	if err != nil {
		return counts, nil, err
	}
	counts.Loaded = loadCounts.Inserted
	counts.Quarantined += loadCounts.Unresolved

	results, err := p.refresher.RefreshAll(ctx)
	if err != nil {
		return counts, nil, err
	}
	for _, r := range Failed(results) {
		log.Printf("aggregate %s left stale: %s", r.ViewName, r.ErrorText)
	}

	return counts, results, nil
}

// staleViewDetail summarizes refresh failures for the batch record, so a
// degraded-but-successful run is queryable from the ledger.
func staleViewDetail(results []domain.RefreshResult) string {
	failed := Failed(results)
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, len(failed))
	for i, r := range failed {
		parts[i] = fmt.Sprintf("%s: %s", r.ViewName, r.ErrorText)
	}
	return "stale views: " + strings.Join(parts, "; ")
}

// validate evaluates every source row against the rule set, splitting the
// input into staged rows and quarantine records. The engine is per-batch so
// duplicate detection and time checks are scoped to this run.
func (p *Pipeline) validate(engine *rules.Engine, batch domain.BatchContext, sourceRows []domain.SourceRow, sourceFile string) ([]domain.StagedRow, []domain.QuarantineRecord) {
	var (
		staged      []domain.StagedRow
		quarantined []domain.QuarantineRecord
	)
	for _, src := range sourceRows {
		disposition := engine.Evaluate(src)
		switch disposition.Outcome {
		case rules.OutcomeDrop:
			continue
		case rules.OutcomeQuarantine:
			quarantined = append(quarantined, domain.NewQuarantineRecord(
				src, batch.ID, disposition.RuleName, disposition.Category,
				disposition.Reason, disposition.Severity, batch.AsOf))
			continue
		}

		row, err := domain.NewStagedRow(src, batch.ID, sourceFile, batch.AsOf)
		if err != nil {
			// The rules passed a row that does not parse; the rule set
			// is missing a format check. Quarantine, don't crash.
			quarantined = append(quarantined, domain.NewQuarantineRecord(
				src, batch.ID, "staging_parse", "format",
				fmt.Sprintf("row failed to parse after validation: %v", err),
				"error", batch.AsOf))
			continue
		}
		staged = append(staged, row.WithFlags(disposition.Flags))
	}
	return staged, quarantined
}

func (p *Pipeline) writeMetrics(ctx context.Context, engine *rules.Engine, batch domain.BatchContext) error {
	metrics := engine.Metrics(batch.ID, batch.AsOf)
	if len(metrics) == 0 {
		return nil
	}
	if err := p.metrics.Insert(ctx, metrics); err != nil {
		return fmt.Errorf("failed to write rule metrics: %w", err)
	}
	return nil
}

// applyWatermark keeps rows strictly newer than the last successful load.
// Rows whose timestamp does not parse pass through so the rule engine can
// quarantine them with a proper reason.
func (p *Pipeline) applyWatermark(ctx context.Context, sourceRows []domain.SourceRow) ([]domain.SourceRow, error) {
	watermark, ok, err := p.staging.LastLoadedTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read incremental watermark: %w", err)
	}
	if !ok {
		return sourceRows, nil
	}

	out := make([]domain.SourceRow, 0, len(sourceRows))
	for _, src := range sourceRows {
		ts, err := src.ParseTimestamp()
		if err != nil || ts.After(watermark) {
			out = append(out, src)
		}
	}
	return out, nil
}
