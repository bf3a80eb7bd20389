package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type quarantineRepository struct {
	pool *pgxpool.Pool
}

// NewQuarantineRepository wires the append-only quarantine sink.
func NewQuarantineRepository(pool *pgxpool.Pool) QuarantineRepository {
	return &quarantineRepository{pool: pool}
}

var quarantineColumns = []string{
	"id", "batch_id", "rule_name", "rule_category", "dq_reason", "severity",
	"quarantined_at", "original_invoice_no", "original_stock_code",
	"original_description", "original_quantity", "original_invoice_date",
	"original_unit_price", "original_customer_id", "original_country",
	"raw_row_json",
}

func (r *quarantineRepository) Insert(ctx context.Context, records []domain.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"retail_dwh", "dq_quarantine_sales"},
		quarantineColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{
				rec.ID, rec.BatchID, rec.RuleName, rec.RuleCategory,
				rec.Reason, rec.Severity, rec.QuarantinedAt,
				rec.InvoiceNo, rec.StockCode, rec.Description, rec.Quantity,
				rec.Timestamp, rec.UnitPrice, rec.CustomerID, rec.Country,
				rec.RawRowJSON,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quarantine records: %w", err)
	}
	return nil
}

func (r *quarantineRepository) List(ctx context.Context, filter domain.QuarantineFilter) ([]domain.QuarantineRecord, error) {
	builder := sq.Select(
		"id", "batch_id", "rule_name", "rule_category", "dq_reason",
		"severity", "quarantined_at", "original_invoice_no",
		"original_stock_code", "original_description", "original_quantity",
		"original_invoice_date", "original_unit_price",
		"original_customer_id", "original_country", "raw_row_json",
	).
		From("retail_dwh.dq_quarantine_sales").
		OrderBy("quarantined_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.BatchID != "" {
		builder = builder.Where(sq.Eq{"batch_id": filter.BatchID})
	}
	if filter.RuleName != "" {
		builder = builder.Where(sq.Eq{"rule_name": filter.RuleName})
	}
	if filter.Reason != "" {
		builder = builder.Where(sq.ILike{"dq_reason": "%" + filter.Reason + "%"})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	builder = builder.Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build quarantine query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine records: %w", err)
	}
	defer rows.Close()

	var out []domain.QuarantineRecord
	for rows.Next() {
		var rec domain.QuarantineRecord
		if err := rows.Scan(
			&rec.ID, &rec.BatchID, &rec.RuleName, &rec.RuleCategory,
			&rec.Reason, &rec.Severity, &rec.QuarantinedAt,
			&rec.InvoiceNo, &rec.StockCode, &rec.Description, &rec.Quantity,
			&rec.Timestamp, &rec.UnitPrice, &rec.CustomerID, &rec.Country,
			&rec.RawRowJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantine records: %w", err)
	}
	return out, nil
}

func (r *quarantineRepository) CountByBatch(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM retail_dwh.dq_quarantine_sales WHERE batch_id = $1`,
		batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count quarantine records: %w", err)
	}
	return count, nil
}
