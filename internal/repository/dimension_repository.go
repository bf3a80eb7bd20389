package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type dimensionRepository struct {
	pool *pgxpool.Pool
}

// NewDimensionRepository wires the dimension store. Upserts are atomic on
// the natural-key hash unique constraint; when two writers race, the row
// that reached the store first keeps its surrogate key and the loser's
// attributes win only through the DO UPDATE path.
func NewDimensionRepository(pool *pgxpool.Pool) DimensionRepository {
	return &dimensionRepository{pool: pool}
}

func (r *dimensionRepository) UpsertProduct(ctx context.Context, e domain.ProductEntity) (int64, error) {
	var key int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO retail_dwh.dim_product (
			natural_key_hash, stock_code, description, times_sold,
			total_quantity, total_revenue, min_unit_price, max_unit_price,
			avg_unit_price, first_sold_at, last_sold_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (natural_key_hash) DO UPDATE SET
			description    = EXCLUDED.description,
			times_sold     = EXCLUDED.times_sold,
			total_quantity = EXCLUDED.total_quantity,
			total_revenue  = EXCLUDED.total_revenue,
			min_unit_price = EXCLUDED.min_unit_price,
			max_unit_price = EXCLUDED.max_unit_price,
			avg_unit_price = EXCLUDED.avg_unit_price,
			first_sold_at  = EXCLUDED.first_sold_at,
			last_sold_at   = EXCLUDED.last_sold_at,
			updated_at     = NOW()
		RETURNING product_key`,
		e.NaturalKeyHash, e.StockCode, e.Description, e.TimesSold,
		e.TotalQuantity, e.TotalRevenue, e.MinUnitPrice, e.MaxUnitPrice,
		e.AvgUnitPrice, e.FirstSoldAt, e.LastSoldAt,
	).Scan(&key)
	if err != nil {
		return r.retryReadProduct(ctx, e.NaturalKeyHash, err)
	}
	return key, nil
}

// retryReadProduct resolves a lost uniqueness race by re-reading; the
// pre-existing row is authoritative.
func (r *dimensionRepository) retryReadProduct(ctx context.Context, hash string, cause error) (int64, error) {
	if !isUniqueViolation(cause) {
		return 0, fmt.Errorf("failed to upsert product: %w", cause)
	}
	var key int64
	err := r.pool.QueryRow(ctx,
		`SELECT product_key FROM retail_dwh.dim_product WHERE natural_key_hash = $1`,
		hash).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("failed to re-read product after conflict: %w", err)
	}
	return key, nil
}

func (r *dimensionRepository) UpsertCustomer(ctx context.Context, e domain.CustomerEntity) (int64, error) {
	var customerID any
	if e.CustomerID != nil {
		customerID = *e.CustomerID
	}

	var key int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO retail_dwh.dim_customer (
			natural_key_hash, customer_id, is_guest, country, total_orders,
			total_items, total_spent, first_purchase_at, last_purchase_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (natural_key_hash) DO UPDATE SET
			country           = EXCLUDED.country,
			total_orders      = EXCLUDED.total_orders,
			total_items       = EXCLUDED.total_items,
			total_spent       = EXCLUDED.total_spent,
			first_purchase_at = EXCLUDED.first_purchase_at,
			last_purchase_at  = EXCLUDED.last_purchase_at,
			updated_at        = NOW()
		RETURNING customer_key`,
		e.NaturalKeyHash, customerID, e.IsGuest, e.Country, e.TotalOrders,
		e.TotalItems, e.TotalSpent, e.FirstPurchaseAt, e.LastPurchaseAt,
	).Scan(&key)
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to upsert customer: %w", err)
		}
		readErr := r.pool.QueryRow(ctx,
			`SELECT customer_key FROM retail_dwh.dim_customer WHERE natural_key_hash = $1`,
			e.NaturalKeyHash).Scan(&key)
		if readErr != nil {
			return 0, fmt.Errorf("failed to re-read customer after conflict: %w", readErr)
		}
	}
	return key, nil
}

func (r *dimensionRepository) EnsureDates(ctx context.Context, dates []domain.DateEntity) error {
	if len(dates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range dates {
		batch.Queue(`
			INSERT INTO retail_dwh.dim_date (
				natural_key_hash, date_value, year, quarter, month,
				month_name, day_of_month, day_of_week, day_name, is_weekend
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (date_value) DO NOTHING`,
			d.NaturalKeyHash, d.DateValue, d.Year, d.Quarter, d.Month,
			d.MonthName, d.DayOfMonth, d.DayOfWeek, d.DayName, d.IsWeekend,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range dates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to ensure date dimension row: %w", err)
		}
	}
	return nil
}

func (r *dimensionRepository) ProductKeys(ctx context.Context) (map[string]int64, error) {
	return r.keyMap(ctx, `SELECT natural_key_hash, product_key FROM retail_dwh.dim_product`)
}

func (r *dimensionRepository) CustomerKeys(ctx context.Context) (map[string]int64, error) {
	return r.keyMap(ctx, `SELECT natural_key_hash, customer_key FROM retail_dwh.dim_customer`)
}

func (r *dimensionRepository) DateKeys(ctx context.Context) (map[string]int64, error) {
	return r.keyMap(ctx, `SELECT natural_key_hash, date_key FROM retail_dwh.dim_date`)
}

func (r *dimensionRepository) keyMap(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load dimension keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			hash string
			key  int64
		)
		if err := rows.Scan(&hash, &key); err != nil {
			return nil, fmt.Errorf("failed to scan dimension key: %w", err)
		}
		out[hash] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dimension keys: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
