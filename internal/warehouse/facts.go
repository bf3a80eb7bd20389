package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"

	"github.com/google/uuid"
)

// LoadCounts reports the fact-load outcome for one batch.
type LoadCounts struct {
	Inserted   int
	Duplicates int
	Unresolved int
}

// FactLoader resolves staged rows against the dimensions and inserts them
// into the partitioned fact store. Duplicate business keys are skipped; rows
// whose dimension keys cannot be resolved are quarantined, never dropped.
type FactLoader struct {
	staging    repository.StagingRepository
	dims       repository.DimensionRepository
	facts      repository.FactRepository
	quarantine repository.QuarantineRepository
	partitions *PartitionManager
}

func NewFactLoader(
	staging repository.StagingRepository,
	dims repository.DimensionRepository,
	facts repository.FactRepository,
	quarantine repository.QuarantineRepository,
	partitions *PartitionManager,
) *FactLoader {
	return &FactLoader{
		staging:    staging,
		dims:       dims,
		facts:      facts,
		quarantine: quarantine,
		partitions: partitions,
	}
}

// Load moves every row staged by the batch into the fact store.
func (l *FactLoader) Load(ctx context.Context, batch domain.BatchContext) (LoadCounts, error) {
	rows, err := l.staging.RowsForBatch(ctx, batch.ID)
	if err != nil {
		return LoadCounts{}, fmt.Errorf("failed to read staged rows: %w", err)
	}
	if len(rows) == 0 {
		return LoadCounts{}, nil
	}

	productKeys, err := l.dims.ProductKeys(ctx)
	if err != nil {
		return LoadCounts{}, fmt.Errorf("failed to load product keys: %w", err)
	}
	customerKeys, err := l.dims.CustomerKeys(ctx)
	if err != nil {
		return LoadCounts{}, fmt.Errorf("failed to load customer keys: %w", err)
	}
	dateKeys, err := l.dims.DateKeys(ctx)
	if err != nil {
		return LoadCounts{}, fmt.Errorf("failed to load date keys: %w", err)
	}

	// Partition coverage is structural: verify every month the batch
	// touches before the first insert, so a gap aborts the run with zero
	// fact rows committed.
	months := map[string]time.Time{}
	for _, row := range rows {
		months[domain.MonthPartitionFor(row.InvoiceDate).Name] = row.InvoiceDate
	}
	for _, ts := range months {
		if err := l.partitions.EnsurePartition(ctx, ts); err != nil {
			return LoadCounts{}, err
		}
	}

	var counts LoadCounts
	for _, row := range rows {
		fact, resolveErr := resolveFact(row, productKeys, customerKeys, dateKeys)
		if resolveErr != nil {
			counts.Unresolved++
			if qErr := l.quarantineUnresolved(ctx, batch, row, resolveErr); qErr != nil {
				return counts, qErr
			}
			continue
		}

		result, err := l.facts.Insert(ctx, fact)
		if err != nil {
			return counts, fmt.Errorf("failed to insert fact row: %w", err)
		}
		switch result {
		case domain.LoadInserted:
			counts.Inserted++
		case domain.LoadSkippedDuplicate:
			counts.Duplicates++
		}
	}

	log.Printf("fact load for batch %s: %d inserted, %d duplicates skipped, %d unresolved",
		batch.ID, counts.Inserted, counts.Duplicates, counts.Unresolved)
	return counts, nil
}

func resolveFact(row domain.StagedRow, products, customers, dates map[string]int64) (domain.FactRow, error) {
	productKey, ok := products[row.ProductNaturalKey()]
	if !ok {
		return domain.FactRow{}, fmt.Errorf("%w: product %s", domain.ErrUnresolvedDimension, row.StockCode)
	}
	customerKey, ok := customers[row.CustomerNaturalKey()]
	if !ok {
		return domain.FactRow{}, fmt.Errorf("%w: customer for invoice %s", domain.ErrUnresolvedDimension, row.InvoiceNo)
	}
	dateKey, ok := dates[domain.DateNaturalKey(row.InvoiceDate)]
	if !ok {
		return domain.FactRow{}, fmt.Errorf("%w: date %s", domain.ErrUnresolvedDimension,
			row.InvoiceDate.Format("2006-01-02"))
	}

	return domain.FactRow{
		DateKey:          dateKey,
		ProductKey:       productKey,
		CustomerKey:      customerKey,
		BusinessKey:      row.BusinessKey(),
		InvoiceNo:        row.InvoiceNo,
		StockCode:        row.StockCode,
		InvoiceTimestamp: row.InvoiceDate,
		Quantity:         row.Quantity,
		UnitPrice:        row.UnitPrice,
		LineTotal:        row.LineTotal,
		IsCancellation:   row.IsCancellation,
		IsReturn:         row.IsReturn,
		IsValidSale:      row.IsValidSale,
		IsGuest:          row.IsGuestPurchase,
		BatchID:          row.BatchID,
		LoadedAt:         row.LoadedAt,
	}, nil
}

func (l *FactLoader) quarantineUnresolved(ctx context.Context, batch domain.BatchContext, row domain.StagedRow, cause error) error {
	raw, err := json.Marshal(row)
	if err != nil {
		raw = []byte("{}")
	}
	customerID := ""
	if row.CustomerID != nil {
		customerID = strconv.FormatInt(*row.CustomerID, 10)
	}
	record := domain.QuarantineRecord{
		ID:            uuid.New(),
		BatchID:       batch.ID,
		RuleName:      "unresolved_dimension",
		RuleCategory:  "business",
		Reason:        cause.Error(),
		Severity:      "error",
		QuarantinedAt: batch.AsOf,
		InvoiceNo:     row.InvoiceNo,
		StockCode:     row.StockCode,
		Description:   row.Description,
		Quantity:      strconv.Itoa(row.Quantity),
		Timestamp:     row.InvoiceDate.Format("2006-01-02 15:04:05"),
		UnitPrice:     strconv.FormatFloat(row.UnitPrice, 'f', 2, 64),
		CustomerID:    customerID,
		Country:       row.Country,
		RawRowJSON:    raw,
	}
	if err := l.quarantine.Insert(ctx, []domain.QuarantineRecord{record}); err != nil {
		return fmt.Errorf("failed to quarantine unresolved row: %w", err)
	}
	return nil
}
