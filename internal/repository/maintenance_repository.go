package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type maintenanceRepository struct {
	pool *pgxpool.Pool
}

// NewMaintenanceRepository wires destructive store maintenance.
func NewMaintenanceRepository(pool *pgxpool.Pool) MaintenanceRepository {
	return &maintenanceRepository{pool: pool}
}

func (r *maintenanceRepository) DropWarehouse(ctx context.Context) error {
	// CASCADE takes the partitions, views and indexes with the schema. The
	// migration bookkeeping table lives in public and is dropped separately
	// so a rebuild starts from a clean slate.
	if _, err := r.pool.Exec(ctx, `DROP SCHEMA IF EXISTS retail_dwh CASCADE`); err != nil {
		return fmt.Errorf("failed to drop warehouse schema: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `DROP TABLE IF EXISTS public.schema_migrations`); err != nil {
		return fmt.Errorf("failed to drop migration bookkeeping: %w", err)
	}
	return nil
}
