package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type batchLogRepository struct {
	pool *pgxpool.Pool
}

func NewBatchLogRepository(pool *pgxpool.Pool) BatchLogRepository {
	return &batchLogRepository{pool: pool}
}

func (r *batchLogRepository) Create(ctx context.Context, record domain.BatchRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO retail_dwh.meta_etl_batch_log (
			batch_id, started_at, status, rows_extracted, rows_loaded,
			rows_quarantined, error_detail, duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.BatchID, record.StartedAt, record.Status,
		record.RowsExtracted, record.RowsLoaded, record.RowsQuarantined,
		record.ErrorDetail, record.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch log entry: %w", err)
	}
	return nil
}

func (r *batchLogRepository) Finalize(ctx context.Context, record domain.BatchRecord) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE retail_dwh.meta_etl_batch_log
		SET finished_at = $2,
		    status = $3,
		    rows_extracted = $4,
		    rows_loaded = $5,
		    rows_quarantined = $6,
		    error_detail = $7,
		    duration_seconds = $8
		WHERE batch_id = $1 AND status = $9`,
		record.BatchID, record.FinishedAt, record.Status,
		record.RowsExtracted, record.RowsLoaded, record.RowsQuarantined,
		record.ErrorDetail, record.DurationSeconds,
		domain.BatchStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize batch %s: %w", record.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s is not running, refusing to finalize twice", record.BatchID)
	}
	return nil
}

func (r *batchLogRepository) HasRunning(ctx context.Context) (bool, error) {
	var running bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM retail_dwh.meta_etl_batch_log WHERE status = $1
		)`, domain.BatchStatusRunning).Scan(&running)
	if err != nil {
		return false, fmt.Errorf("failed to check for running batch: %w", err)
	}
	return running, nil
}

func (r *batchLogRepository) GetByID(ctx context.Context, batchID string) (domain.BatchRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT batch_id, started_at, finished_at, status, rows_extracted,
		       rows_loaded, rows_quarantined, error_detail, duration_seconds
		FROM retail_dwh.meta_etl_batch_log
		WHERE batch_id = $1`, batchID)

	record, err := scanBatchRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BatchRecord{}, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return domain.BatchRecord{}, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}
	return record, nil
}

func (r *batchLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT batch_id, started_at, finished_at, status, rows_extracted,
		       rows_loaded, rows_quarantined, error_detail, duration_seconds
		FROM retail_dwh.meta_etl_batch_log
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchRecord
	for rows.Next() {
		record, err := scanBatchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch records: %w", err)
	}
	return out, nil
}

func scanBatchRecord(row pgx.Row) (domain.BatchRecord, error) {
	var record domain.BatchRecord
	err := row.Scan(
		&record.BatchID, &record.StartedAt, &record.FinishedAt, &record.Status,
		&record.RowsExtracted, &record.RowsLoaded, &record.RowsQuarantined,
		&record.ErrorDetail, &record.DurationSeconds,
	)
	return record, err
}
