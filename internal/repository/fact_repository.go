package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type factRepository struct {
	pool *pgxpool.Pool
}

// NewFactRepository wires the fact store. The business-key hash embeds the
// transaction timestamp, so a duplicate always routes to the same partition
// and the per-partition unique constraint is equivalent to a global one.
func NewFactRepository(pool *pgxpool.Pool) FactRepository {
	return &factRepository{pool: pool}
}

func (r *factRepository) Insert(ctx context.Context, row domain.FactRow) (domain.LoadResult, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO retail_dwh.fct_retail_sales (
			date_key, product_key, customer_key, business_key_hash,
			invoice_no, stock_code, invoice_timestamp, quantity, unit_price,
			line_total, is_cancellation, is_return, is_valid_sale, is_guest,
			batch_id, loaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (business_key_hash, invoice_timestamp) DO NOTHING`,
		row.DateKey, row.ProductKey, row.CustomerKey, row.BusinessKey,
		row.InvoiceNo, row.StockCode, row.InvoiceTimestamp, row.Quantity,
		row.UnitPrice, row.LineTotal, row.IsCancellation, row.IsReturn,
		row.IsValidSale, row.IsGuest, row.BatchID, row.LoadedAt,
	)
	if err != nil {
		return domain.LoadSkippedDuplicate, fmt.Errorf("failed to insert fact row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.LoadSkippedDuplicate, nil
	}
	return domain.LoadInserted, nil
}

func (r *factRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retail_dwh.fct_retail_sales`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fact rows: %w", err)
	}
	return count, nil
}

func (r *factRepository) CountByBatch(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM retail_dwh.fct_retail_sales WHERE batch_id = $1`,
		batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fact rows for batch: %w", err)
	}
	return count, nil
}
