package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/retaildwh/internal/domain"
)

func TestLedgerBeginAndFinish(t *testing.T) {
	repo := newMemBatchLog()
	ledger := NewLedger(repo)
	ctx := context.Background()

	batch, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.ID == "" || batch.AsOf.IsZero() {
		t.Fatalf("incomplete batch context: %+v", batch)
	}
	if !strings.HasPrefix(batch.ID, batch.StartedAt.Format("20060102_150405")) {
		t.Fatalf("batch id %q must start with the start timestamp", batch.ID)
	}

	record, err := ledger.Finish(ctx, batch, domain.BatchStatusSuccess,
		domain.BatchCounts{Extracted: 10, Loaded: 7, Quarantined: 3}, "stale views: mv_top_products: refresh timed out", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.BatchStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", record.Status)
	}
	if record.RowsExtracted != 10 || record.RowsLoaded != 7 || record.RowsQuarantined != 3 {
		t.Fatalf("counts not recorded: %+v", record)
	}
	if !strings.Contains(record.ErrorDetail, "mv_top_products") {
		t.Fatalf("detail not recorded on a successful run: %q", record.ErrorDetail)
	}
	if record.FinishedAt == nil {
		t.Fatal("finished runs carry a finish timestamp")
	}

	// Finalizing twice is refused.
	if _, err := ledger.Finish(ctx, batch, domain.BatchStatusSuccess, domain.BatchCounts{}, "", nil); err == nil {
		t.Fatal("expected second finalize to fail")
	}
}

func TestLedgerRefusesSecondRun(t *testing.T) {
	ledger := NewLedger(newMemBatchLog())
	ctx := context.Background()

	first, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := ledger.Begin(ctx); !errors.Is(err, domain.ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight, got %v", err)
	}

	if _, err := ledger.Finish(ctx, first, domain.BatchStatusSuccess, domain.BatchCounts{}, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The slot frees up once the first run finalizes.
	if _, err := ledger.Begin(ctx); err != nil {
		t.Fatalf("expected a new run to start, got %v", err)
	}
}

func TestLedgerFinishWithErrorMarksFailed(t *testing.T) {
	ledger := NewLedger(newMemBatchLog())
	ctx := context.Background()

	batch, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := ledger.Finish(ctx, batch, domain.BatchStatusSuccess,
		domain.BatchCounts{Extracted: 4}, "", domain.ErrPartitionGap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.BatchStatusFailed {
		t.Fatalf("a run error forces FAILED, got %s", record.Status)
	}
	if record.ErrorDetail == "" {
		t.Fatal("failed records carry error detail")
	}
	if record.DurationSeconds < 0 {
		t.Fatalf("negative duration %d", record.DurationSeconds)
	}
}
