package status

import (
	"context"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// Service aggregates the read-only operational views of the store: the
// verification snapshot, the batch ledger and the quarantine sink.
type Service struct {
	status     repository.StatusRepository
	batches    repository.BatchLogRepository
	quarantine repository.QuarantineRepository
	metrics    repository.MetricsRepository
}

func NewService(
	status repository.StatusRepository,
	batches repository.BatchLogRepository,
	quarantine repository.QuarantineRepository,
	metrics repository.MetricsRepository,
) *Service {
	return &Service{
		status:     status,
		batches:    batches,
		quarantine: quarantine,
		metrics:    metrics,
	}
}

// Report is the full status payload: object counts plus the duplicate audit.
type Report struct {
	Store      domain.StoreStatus       `json:"store"`
	Uniqueness []domain.TableUniqueness `json:"uniqueness"`
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	snapshot, err := s.status.Snapshot(ctx)
	if err != nil {
		return Report{}, err
	}
	audit, err := s.status.DuplicateAudit(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Store: snapshot, Uniqueness: audit}, nil
}

func (s *Service) RecentBatches(ctx context.Context, limit int) ([]domain.BatchRecord, error) {
	return s.batches.ListRecent(ctx, limit)
}

// BatchDetail is one ledger entry with its rule metrics.
type BatchDetail struct {
	Batch   domain.BatchRecord  `json:"batch"`
	Metrics []domain.RuleMetric `json:"metrics"`
}

func (s *Service) BatchDetail(ctx context.Context, batchID string) (BatchDetail, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return BatchDetail{}, err
	}
	metrics, err := s.metrics.ListByBatch(ctx, batchID)
	if err != nil {
		return BatchDetail{}, fmt.Errorf("failed to load metrics for %s: %w", batchID, err)
	}
	return BatchDetail{Batch: batch, Metrics: metrics}, nil
}

func (s *Service) Quarantine(ctx context.Context, filter domain.QuarantineFilter) ([]domain.QuarantineRecord, error) {
	return s.quarantine.List(ctx, filter)
}
