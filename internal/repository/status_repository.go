package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type statusRepository struct {
	pool *pgxpool.Pool
}

func NewStatusRepository(pool *pgxpool.Pool) StatusRepository {
	return &statusRepository{pool: pool}
}

func (r *statusRepository) Snapshot(ctx context.Context) (domain.StoreStatus, error) {
	var status domain.StoreStatus
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pg_tables WHERE schemaname = 'retail_dwh'),
			(SELECT COUNT(*) FROM retail_dwh.meta_partitions),
			(SELECT COUNT(*) FROM pg_matviews WHERE schemaname = 'retail_dwh'),
			(SELECT COUNT(*) FROM retail_dwh.fct_retail_sales),
			(SELECT COUNT(*) FROM retail_dwh.dim_date),
			(SELECT COUNT(*) FROM retail_dwh.dim_product),
			(SELECT COUNT(*) FROM retail_dwh.dim_customer),
			(SELECT COUNT(*) FROM retail_dwh.dq_quarantine_sales)`).Scan(
		&status.Tables, &status.Partitions, &status.MaterializedViews,
		&status.FactRows, &status.DateEntities, &status.ProductEntities,
		&status.CustomerEntities, &status.QuarantineRows,
	)
	if err != nil {
		return domain.StoreStatus{}, fmt.Errorf("failed to snapshot store status: %w", err)
	}
	return status, nil
}

// DuplicateAudit compares row counts against distinct key counts for every
// relation that carries a uniqueness promise.
func (r *statusRepository) DuplicateAudit(ctx context.Context) ([]domain.TableUniqueness, error) {
	checks := []struct {
		table string
		query string
	}{
		{"dim_product", `SELECT COUNT(*), COUNT(DISTINCT natural_key_hash) FROM retail_dwh.dim_product`},
		{"dim_customer", `SELECT COUNT(*), COUNT(DISTINCT natural_key_hash) FROM retail_dwh.dim_customer`},
		{"dim_date", `SELECT COUNT(*), COUNT(DISTINCT date_value) FROM retail_dwh.dim_date`},
		{"fct_retail_sales", `SELECT COUNT(*), COUNT(DISTINCT business_key_hash) FROM retail_dwh.fct_retail_sales`},
	}

	out := make([]domain.TableUniqueness, 0, len(checks))
	for _, check := range checks {
		var total, unique int64
		if err := r.pool.QueryRow(ctx, check.query).Scan(&total, &unique); err != nil {
			return nil, fmt.Errorf("failed to audit %s: %w", check.table, err)
		}
		out = append(out, domain.TableUniqueness{
			Table:      check.table,
			TotalRows:  total,
			UniqueRows: unique,
			Duplicates: total - unique,
		})
	}
	return out, nil
}
