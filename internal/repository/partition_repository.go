package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rpattn/retaildwh/internal/db"
	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type partitionRepository struct {
	conn *db.Connection
	pool *pgxpool.Pool
}

// NewPartitionRepository wires the Postgres-backed PartitionedStore. Declared
// partitions are tracked in meta_partitions alongside the physical
// PARTITION OF tables so range arithmetic stays in one place.
func NewPartitionRepository(conn *db.Connection) PartitionedStore {
	return &partitionRepository{conn: conn, pool: conn.Pool}
}

func (r *partitionRepository) Partitions(ctx context.Context) ([]domain.Partition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT partition_name, range_start, range_end
		FROM retail_dwh.meta_partitions
		ORDER BY range_start`)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Partition
	for rows.Next() {
		var p domain.Partition
		if err := rows.Scan(&p.Name, &p.Start, &p.End); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		p.Start = p.Start.UTC()
		p.End = p.End.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate partitions: %w", err)
	}
	return out, nil
}

func (r *partitionRepository) CreatePartition(ctx context.Context, p domain.Partition) error {
	// DDL and registry insert commit together or not at all.
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS retail_dwh.%s PARTITION OF retail_dwh.fct_retail_sales
			 FOR VALUES FROM ('%s') TO ('%s')`,
			pgx.Identifier{p.Name}.Sanitize(),
			p.Start.UTC().Format("2006-01-02 15:04:05"),
			p.End.UTC().Format("2006-01-02 15:04:05"),
		)
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create partition %s: %w", p.Name, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO retail_dwh.meta_partitions (partition_name, range_start, range_end)
			VALUES ($1, $2, $3)
			ON CONFLICT (partition_name) DO NOTHING`,
			p.Name, p.Start.UTC(), p.End.UTC(),
		); err != nil {
			return fmt.Errorf("failed to register partition %s: %w", p.Name, err)
		}
		return nil
	})
}

// WithPartitionLock runs fn while holding a session advisory lock derived
// from the partition's time range, serializing creation across writers.
func (r *partitionRepository) WithPartitionLock(ctx context.Context, p domain.Partition, fn func(context.Context) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for partition lock: %w", err)
	}
	defer conn.Release()

	key := partitionLockKey(p)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return fmt.Errorf("failed to take partition lock: %w", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)

	return fn(ctx)
}

func partitionLockKey(p domain.Partition) int64 {
	h := fnv.New64a()
	h.Write([]byte("retaildwh.partition."))
	h.Write([]byte(p.Start.UTC().Format("2006-01")))
	return int64(h.Sum64())
}

func (r *partitionRepository) FlatTableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = 'retail_dwh' AND tablename = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check flat table: %w", err)
	}
	return exists, nil
}

func (r *partitionRepository) FlatRowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM retail_dwh.%s`, pgx.Identifier{table}.Sanitize())
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count flat table rows: %w", err)
	}
	return count, nil
}

func (r *partitionRepository) FlatTimestampRange(ctx context.Context, table string) (time.Time, time.Time, bool, error) {
	query := fmt.Sprintf(
		`SELECT MIN(invoice_timestamp), MAX(invoice_timestamp) FROM retail_dwh.%s`,
		pgx.Identifier{table}.Sanitize())

	var min, max pgtype.Timestamp
	if err := r.pool.QueryRow(ctx, query).Scan(&min, &max); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to read flat table range: %w", err)
	}
	if !min.Valid || !max.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return min.Time.UTC(), max.Time.UTC(), true, nil
}

func (r *partitionRepository) CopyFlatIntoPartitioned(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO retail_dwh.fct_retail_sales (
			date_key, product_key, customer_key, business_key_hash,
			invoice_no, stock_code, invoice_timestamp, quantity, unit_price,
			line_total, is_cancellation, is_return, is_valid_sale, is_guest,
			batch_id, loaded_at
		)
		SELECT date_key, product_key, customer_key, business_key_hash,
		       invoice_no, stock_code, invoice_timestamp, quantity,
		       unit_price, line_total, is_cancellation, is_return,
		       is_valid_sale, is_guest, batch_id, loaded_at
		FROM retail_dwh.%s
		ON CONFLICT (business_key_hash, invoice_timestamp) DO NOTHING`,
		pgx.Identifier{table}.Sanitize())

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to copy flat table into partitions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *partitionRepository) DropFlatTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS retail_dwh.%s`, pgx.Identifier{table}.Sanitize())
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop flat table: %w", err)
	}
	return nil
}
