package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// materializedView refreshes a single materialized view. Views carrying a
// unique index refresh CONCURRENTLY so readers are never blocked.
type materializedView struct {
	pool       *pgxpool.Pool
	name       string
	concurrent bool
}

func NewMaterializedView(pool *pgxpool.Pool, name string, concurrent bool) RefreshableView {
	return &materializedView{pool: pool, name: name, concurrent: concurrent}
}

func (v *materializedView) Name() string {
	return v.name
}

func (v *materializedView) Refresh(ctx context.Context) error {
	stmt := "REFRESH MATERIALIZED VIEW"
	if v.concurrent {
		stmt += " CONCURRENTLY"
	}
	query := fmt.Sprintf("%s retail_dwh.%s", stmt, pgx.Identifier{v.name}.Sanitize())
	if _, err := v.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to refresh %s: %w", v.name, err)
	}
	return nil
}

// defaultCategoryPrefixLen matches the migration's view definition.
const defaultCategoryPrefixLen = 3

// categoryAnalysisView is the one view whose definition depends on
// configuration. When the configured prefix length differs from the
// migration default the view is rebuilt in place before refreshing.
type categoryAnalysisView struct {
	pool      *pgxpool.Pool
	prefixLen int
}

func NewCategoryAnalysisView(pool *pgxpool.Pool, prefixLen int) RefreshableView {
	if prefixLen < 1 {
		prefixLen = defaultCategoryPrefixLen
	}
	return &categoryAnalysisView{pool: pool, prefixLen: prefixLen}
}

func (v *categoryAnalysisView) Name() string {
	return "mv_product_category_analysis"
}

func (v *categoryAnalysisView) Refresh(ctx context.Context) error {
	if v.prefixLen != defaultCategoryPrefixLen {
		return v.rebuild(ctx)
	}
	if _, err := v.pool.Exec(ctx,
		`REFRESH MATERIALIZED VIEW CONCURRENTLY retail_dwh.mv_product_category_analysis`); err != nil {
		return fmt.Errorf("failed to refresh mv_product_category_analysis: %w", err)
	}
	return nil
}

func (v *categoryAnalysisView) rebuild(ctx context.Context) error {
	stmts := []string{
		`DROP MATERIALIZED VIEW IF EXISTS retail_dwh.mv_product_category_analysis`,
		fmt.Sprintf(`
			CREATE MATERIALIZED VIEW retail_dwh.mv_product_category_analysis AS
			SELECT LEFT(f.stock_code, %d) AS category,
			       COUNT(*) AS line_items,
			       SUM(f.quantity) AS total_quantity,
			       SUM(f.line_total) AS total_revenue,
			       AVG(f.unit_price) AS avg_unit_price,
			       COUNT(DISTINCT f.product_key) AS distinct_products
			FROM retail_dwh.fct_retail_sales f
			WHERE f.is_valid_sale
			GROUP BY LEFT(f.stock_code, %d)`, v.prefixLen, v.prefixLen),
		`CREATE UNIQUE INDEX idx_mv_category_analysis
		 ON retail_dwh.mv_product_category_analysis (category)`,
	}
	for _, stmt := range stmts {
		if _, err := v.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild mv_product_category_analysis: %w", err)
		}
	}
	return nil
}

// AnalyticsViews returns every warehouse view in refresh order. Summaries go
// first so downstream dashboards converge before the heavier breakdowns.
func AnalyticsViews(pool *pgxpool.Pool, categoryPrefixLen int) []RefreshableView {
	names := []string{
		"mv_monthly_sales_summary",
		"mv_daily_sales_trend",
		"mv_top_products",
		"mv_customer_segments",
		"mv_country_performance",
	}
	views := make([]RefreshableView, 0, len(names)+1)
	for _, name := range names {
		views = append(views, NewMaterializedView(pool, name, true))
	}
	views = append(views, NewCategoryAnalysisView(pool, categoryPrefixLen))
	return views
}
