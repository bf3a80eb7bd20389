package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stagingRepository struct {
	pool *pgxpool.Pool
}

// NewStagingRepository wires a staging repository backed by pgxpool.
func NewStagingRepository(pool *pgxpool.Pool) StagingRepository {
	return &stagingRepository{pool: pool}
}

var stagingColumns = []string{
	"invoice_no", "stock_code", "description", "quantity", "invoice_date",
	"unit_price", "customer_id", "country", "line_total",
	"is_cancellation", "is_adjustment", "is_guest_purchase", "is_valid_sale",
	"is_return", "flags", "loaded_at", "batch_id", "source_file",
}

func (r *stagingRepository) InsertRows(ctx context.Context, rows []domain.StagedRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	copied, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"retail_dwh", "stg_retail_sales"},
		stagingColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			row := rows[i]
			var customerID any
			if row.CustomerID != nil {
				customerID = *row.CustomerID
			}
			return []any{
				row.InvoiceNo, row.StockCode, row.Description, row.Quantity,
				row.InvoiceDate, row.UnitPrice, customerID, row.Country,
				row.LineTotal, row.IsCancellation, row.IsAdjustment,
				row.IsGuestPurchase, row.IsValidSale, row.IsReturn,
				row.Flags, row.LoadedAt, row.BatchID, row.SourceFile,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy staged rows: %w", err)
	}

	return int(copied), nil
}

// dedupValidSales collapses line items re-staged by an idempotent re-run to
// a single contribution, keyed on the same fields as the fact business key.
// The newest staged copy wins.
const dedupValidSales = `
	SELECT DISTINCT ON (invoice_no, stock_code, invoice_date, quantity, unit_price)
	       invoice_no, stock_code, description, quantity, invoice_date,
	       unit_price, customer_id, country, line_total
	FROM retail_dwh.stg_retail_sales
	WHERE is_valid_sale
	ORDER BY invoice_no, stock_code, invoice_date, quantity, unit_price, loaded_at DESC`

func (r *stagingRepository) ProductAggregates(ctx context.Context) ([]domain.ProductEntity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT stock_code,
		       (array_agg(description ORDER BY invoice_date DESC))[1] AS description,
		       COUNT(*)            AS times_sold,
		       SUM(quantity)       AS total_quantity,
		       SUM(line_total)     AS total_revenue,
		       MIN(unit_price)     AS min_unit_price,
		       MAX(unit_price)     AS max_unit_price,
		       AVG(unit_price)     AS avg_unit_price,
		       MIN(invoice_date)   AS first_sold_at,
		       MAX(invoice_date)   AS last_sold_at
		FROM (`+dedupValidSales+`
		) sales
		GROUP BY stock_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate products: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductEntity
	for rows.Next() {
		var e domain.ProductEntity
		if err := rows.Scan(
			&e.StockCode, &e.Description, &e.TimesSold, &e.TotalQuantity,
			&e.TotalRevenue, &e.MinUnitPrice, &e.MaxUnitPrice, &e.AvgUnitPrice,
			&e.FirstSoldAt, &e.LastSoldAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product aggregate: %w", err)
		}
		e.NaturalKeyHash = domain.NaturalKeyHash("product", e.StockCode)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product aggregates: %w", err)
	}
	return out, nil
}

func (r *stagingRepository) CustomerAggregates(ctx context.Context) ([]domain.CustomerEntity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT customer_id,
		       (array_agg(country ORDER BY invoice_date DESC))[1] AS country,
		       COUNT(DISTINCT invoice_no) AS total_orders,
		       SUM(quantity)              AS total_items,
		       SUM(line_total)            AS total_spent,
		       MIN(invoice_date)          AS first_purchase_at,
		       MAX(invoice_date)          AS last_purchase_at
		FROM (`+dedupValidSales+`
		) sales
		WHERE customer_id IS NOT NULL
		GROUP BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate customers: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomerEntity
	for rows.Next() {
		var (
			e  domain.CustomerEntity
			id int64
		)
		if err := rows.Scan(
			&id, &e.Country, &e.TotalOrders, &e.TotalItems, &e.TotalSpent,
			&e.FirstPurchaseAt, &e.LastPurchaseAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer aggregate: %w", err)
		}
		e.CustomerID = &id
		e.NaturalKeyHash = domain.CustomerNaturalKey(id)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customer aggregates: %w", err)
	}
	return out, nil
}

func (r *stagingRepository) GuestAggregate(ctx context.Context) (*domain.CustomerEntity, error) {
	var e domain.CustomerEntity
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT invoice_no),
		       COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(line_total), 0),
		       MIN(invoice_date),
		       MAX(invoice_date)
		FROM (`+dedupValidSales+`
		) sales
		WHERE customer_id IS NULL`).Scan(
		&e.TotalOrders, &e.TotalItems, &e.TotalSpent,
		&firstTS{&e.FirstPurchaseAt}, &firstTS{&e.LastPurchaseAt},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate guest customer: %w", err)
	}
	if e.TotalOrders == 0 {
		return nil, nil
	}

	e.IsGuest = true
	e.Country = domain.UnknownCountry
	e.NaturalKeyHash = domain.GuestCustomerHash()
	return &e, nil
}

// firstTS scans a nullable timestamp into a plain time.Time, leaving the
// zero value for NULL.
type firstTS struct {
	dst *time.Time
}

func (f *firstTS) ScanTimestamp(v pgtype.Timestamp) error {
	if v.Valid {
		*f.dst = v.Time
	}
	return nil
}

func (r *stagingRepository) ObservedDateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var min, max pgtype.Timestamp
	err := r.pool.QueryRow(ctx, `
		SELECT MIN(invoice_date), MAX(invoice_date)
		FROM retail_dwh.stg_retail_sales`).Scan(&min, &max)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to read observed date range: %w", err)
	}
	if !min.Valid || !max.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return min.Time, max.Time, true, nil
}

func (r *stagingRepository) RowsForBatch(ctx context.Context, batchID string) ([]domain.StagedRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT invoice_no, stock_code, description, quantity, invoice_date,
		       unit_price, customer_id, country, line_total,
		       is_cancellation, is_adjustment, is_guest_purchase,
		       is_valid_sale, is_return, flags, loaded_at, batch_id,
		       COALESCE(source_file, '')
		FROM retail_dwh.stg_retail_sales
		WHERE batch_id = $1
		ORDER BY invoice_date, invoice_no, stock_code`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged rows: %w", err)
	}
	defer rows.Close()

	var out []domain.StagedRow
	for rows.Next() {
		var (
			row        domain.StagedRow
			customerID pgtype.Int8
		)
		if err := rows.Scan(
			&row.InvoiceNo, &row.StockCode, &row.Description, &row.Quantity,
			&row.InvoiceDate, &row.UnitPrice, &customerID, &row.Country,
			&row.LineTotal, &row.IsCancellation, &row.IsAdjustment,
			&row.IsGuestPurchase, &row.IsValidSale, &row.IsReturn,
			&row.Flags, &row.LoadedAt, &row.BatchID, &row.SourceFile,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", err)
		}
		if customerID.Valid {
			id := customerID.Int64
			row.CustomerID = &id
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged rows: %w", err)
	}
	return out, nil
}

func (r *stagingRepository) LastLoadedTimestamp(ctx context.Context) (time.Time, bool, error) {
	var max pgtype.Timestamp
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(stg.invoice_date)
		FROM retail_dwh.stg_retail_sales stg
		JOIN retail_dwh.meta_etl_batch_log log ON stg.batch_id = log.batch_id
		WHERE log.status IN ($1, $2)`,
		domain.BatchStatusSuccess, domain.BatchStatusNoData).Scan(&max)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read incremental watermark: %w", err)
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return max.Time, true, nil
}
