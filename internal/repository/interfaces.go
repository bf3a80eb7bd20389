package repository

import (
	"context"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
)

// StagingRepository persists accepted rows and serves the aggregate reads
// dimension merging recomputes attributes from.
type StagingRepository interface {
	InsertRows(ctx context.Context, rows []domain.StagedRow) (int, error)

	// Aggregates over the current full valid-row population.
	ProductAggregates(ctx context.Context) ([]domain.ProductEntity, error)
	CustomerAggregates(ctx context.Context) ([]domain.CustomerEntity, error)
	GuestAggregate(ctx context.Context) (*domain.CustomerEntity, error)
	ObservedDateRange(ctx context.Context) (min, max time.Time, ok bool, err error)

	RowsForBatch(ctx context.Context, batchID string) ([]domain.StagedRow, error)

	// LastLoadedTimestamp is the incremental watermark: the max transaction
	// timestamp among rows staged by successful batches.
	LastLoadedTimestamp(ctx context.Context) (time.Time, bool, error)
}

// QuarantineRepository is the append-only sink for rejected rows.
type QuarantineRepository interface {
	Insert(ctx context.Context, records []domain.QuarantineRecord) error
	List(ctx context.Context, filter domain.QuarantineFilter) ([]domain.QuarantineRecord, error)
	CountByBatch(ctx context.Context, batchID string) (int64, error)
}

// MetricsRepository stores per-rule, per-batch execution metrics.
type MetricsRepository interface {
	Insert(ctx context.Context, metrics []domain.RuleMetric) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.RuleMetric, error)
}

// DimensionRepository owns dimension identity. Upserts are atomic against
// the natural-key hash uniqueness constraint; the store, not the caller, is
// the authority on surrogate keys.
type DimensionRepository interface {
	UpsertProduct(ctx context.Context, entity domain.ProductEntity) (int64, error)
	UpsertCustomer(ctx context.Context, entity domain.CustomerEntity) (int64, error)
	EnsureDates(ctx context.Context, dates []domain.DateEntity) error

	ProductKeys(ctx context.Context) (map[string]int64, error)
	CustomerKeys(ctx context.Context) (map[string]int64, error)
	DateKeys(ctx context.Context) (map[string]int64, error)
}

// FactRepository owns fact-row uniqueness.
type FactRepository interface {
	Insert(ctx context.Context, row domain.FactRow) (domain.LoadResult, error)
	Count(ctx context.Context) (int64, error)
	CountByBatch(ctx context.Context, batchID string) (int64, error)
}

// PartitionedStore abstracts the range-partitioning primitives of the fact
// store so a non-relational backend can satisfy the same contract.
type PartitionedStore interface {
	Partitions(ctx context.Context) ([]domain.Partition, error)
	CreatePartition(ctx context.Context, p domain.Partition) error

	// WithPartitionLock serializes partition creation for one time range
	// against concurrent writers.
	WithPartitionLock(ctx context.Context, p domain.Partition, fn func(context.Context) error) error

	// Flat-table migration primitives.
	FlatTableExists(ctx context.Context, table string) (bool, error)
	FlatRowCount(ctx context.Context, table string) (int64, error)
	FlatTimestampRange(ctx context.Context, table string) (min, max time.Time, ok bool, err error)
	CopyFlatIntoPartitioned(ctx context.Context, table string) (int64, error)
	DropFlatTable(ctx context.Context, table string) error
}

// RefreshableView abstracts one rebuildable aggregate view. Refresh swaps in
// the new version on completion and never exposes a half-written aggregate.
type RefreshableView interface {
	Name() string
	Refresh(ctx context.Context) error
}

// BatchLogRepository is the append-only run ledger.
type BatchLogRepository interface {
	Create(ctx context.Context, record domain.BatchRecord) error
	Finalize(ctx context.Context, record domain.BatchRecord) error
	HasRunning(ctx context.Context) (bool, error)
	GetByID(ctx context.Context, batchID string) (domain.BatchRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.BatchRecord, error)
}

// StatusRepository serves the verification snapshot and duplicate audit.
type StatusRepository interface {
	Snapshot(ctx context.Context) (domain.StoreStatus, error)
	DuplicateAudit(ctx context.Context) ([]domain.TableUniqueness, error)
}

// MaintenanceRepository performs destructive store maintenance. Callers are
// expected to gate these behind explicit operator confirmation.
type MaintenanceRepository interface {
	// DropWarehouse removes every warehouse relation, views and data
	// included. The schema migrations must be re-applied afterwards.
	DropWarehouse(ctx context.Context) error
}
