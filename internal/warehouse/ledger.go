package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// Ledger creates and finalizes batch run records. At most one run may be in
// flight against a store at a time.
type Ledger struct {
	repo repository.BatchLogRepository
	now  func() time.Time
}

func NewLedger(repo repository.BatchLogRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Begin opens a new run. It refuses to start while another run is recorded
// as running so two loaders never interleave on the same store.
func (l *Ledger) Begin(ctx context.Context) (domain.BatchContext, error) {
	running, err := l.repo.HasRunning(ctx)
	if err != nil {
		return domain.BatchContext{}, fmt.Errorf("failed to check ledger: %w", err)
	}
	if running {
		return domain.BatchContext{}, domain.ErrRunInFlight
	}

	start := l.now().UTC()
	batch := domain.BatchContext{
		ID:        domain.NewBatchID(start),
		StartedAt: start,
		AsOf:      start,
	}

	record := domain.BatchRecord{
		BatchID:   batch.ID,
		StartedAt: batch.StartedAt,
		Status:    domain.BatchStatusRunning,
	}
	if err := l.repo.Create(ctx, record); err != nil {
		return domain.BatchContext{}, fmt.Errorf("failed to open batch record: %w", err)
	}
	return batch, nil
}

// Finish finalizes the run record exactly once and returns it. detail is
// recorded verbatim for degraded runs (stale aggregates, partial refreshes).
// When runErr is non-nil the status is FAILED regardless of the status
// argument and runErr replaces detail.
func (l *Ledger) Finish(ctx context.Context, batch domain.BatchContext, status string, counts domain.BatchCounts, detail string, runErr error) (domain.BatchRecord, error) {
	finished := l.now().UTC()
	record := domain.BatchRecord{
		BatchID:         batch.ID,
		StartedAt:       batch.StartedAt,
		FinishedAt:      &finished,
		Status:          status,
		RowsExtracted:   counts.Extracted,
		RowsLoaded:      counts.Loaded,
		RowsQuarantined: counts.Quarantined,
		ErrorDetail:     detail,
		DurationSeconds: int(finished.Sub(batch.StartedAt).Seconds()),
	}
	if runErr != nil {
		record.Status = domain.BatchStatusFailed
		record.ErrorDetail = runErr.Error()
	}
	if err := l.repo.Finalize(ctx, record); err != nil {
		return domain.BatchRecord{}, fmt.Errorf("failed to finalize batch %s: %w", batch.ID, err)
	}
	return record, nil
}
