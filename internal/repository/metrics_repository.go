package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository wires the data-quality metrics store.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) Insert(ctx context.Context, metrics []domain.RuleMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO retail_dwh.dq_metrics (
				batch_id, rule_name, rule_category, rows_processed,
				rows_passed, rows_quarantined, rows_dropped, rows_flagged,
				execution_timestamp, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			m.BatchID, m.RuleName, m.RuleCategory, m.RowsProcessed,
			m.RowsPassed, m.RowsQuarantined, m.RowsDropped, m.RowsFlagged,
			m.ExecutedAt, m.Notes,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range metrics {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert rule metric: %w", err)
		}
	}
	return nil
}

func (r *metricsRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.RuleMetric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT batch_id, rule_name, rule_category, rows_processed,
		       rows_passed, rows_quarantined, rows_dropped, rows_flagged,
		       execution_timestamp, COALESCE(notes, '')
		FROM retail_dwh.dq_metrics
		WHERE batch_id = $1
		ORDER BY metric_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.RuleMetric
	for rows.Next() {
		var m domain.RuleMetric
		if err := rows.Scan(
			&m.BatchID, &m.RuleName, &m.RuleCategory, &m.RowsProcessed,
			&m.RowsPassed, &m.RowsQuarantined, &m.RowsDropped, &m.RowsFlagged,
			&m.ExecutedAt, &m.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule metrics: %w", err)
	}
	return out, nil
}
