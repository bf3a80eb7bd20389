package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/retaildwh/internal/config"
	"github.com/rpattn/retaildwh/internal/db"
	"github.com/rpattn/retaildwh/internal/repository"
	"github.com/rpattn/retaildwh/internal/rules"
	"github.com/rpattn/retaildwh/internal/source"
	"github.com/rpattn/retaildwh/internal/status"
	"github.com/rpattn/retaildwh/internal/warehouse"
	"github.com/rpattn/retaildwh/migrations"
)

const usage = `usage: etl <command> [flags]

commands:
  run                load a source file into the warehouse
  migrate            apply pending schema migrations
  partition-migrate  move a legacy flat fact table into the partitioned store
  refresh            rebuild the analytics views
  status             print the store verification snapshot
  serve              run the read-only status API
  cleanup            drop every warehouse relation (requires -yes)
`

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "run":
		err = runLoad(ctx, args)
	case "migrate":
		err = runMigrate(args)
	case "partition-migrate":
		err = runPartitionMigrate(ctx, args)
	case "refresh":
		err = runRefresh(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "cleanup":
		err = runCleanup(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func loadConfig(fs *flag.FlagSet) (config.Config, error) {
	configPath := fs.Lookup("config").Value.String()
	return config.Load(configPath)
}

func commonFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("config", ".", "directory containing config.yaml")
	return fs
}

func connect(ctx context.Context, cfg config.Config) (*db.Connection, error) {
	return db.NewConnection(ctx, cfg.DB)
}

func loadRules(cfg config.Config) (rules.RuleSet, error) {
	if cfg.Pipeline.RulesPath == "" {
		return rules.Default(), nil
	}
	set, err := rules.LoadFile(cfg.Pipeline.RulesPath)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("failed to load rules from %s: %w", cfg.Pipeline.RulesPath, err)
	}
	return set, nil
}

func buildPipeline(cfg config.Config, conn *db.Connection, set rules.RuleSet) *warehouse.Pipeline {
	pool := conn.Pool
	staging := repository.NewStagingRepository(pool)
	quarantine := repository.NewQuarantineRepository(pool)
	metrics := repository.NewMetricsRepository(pool)
	dims := repository.NewDimensionRepository(pool)
	facts := repository.NewFactRepository(pool)
	partitions := warehouse.NewPartitionManager(
		repository.NewPartitionRepository(conn), cfg.Pipeline.AutoExtendPartitions)

	return warehouse.NewPipeline(
		set,
		warehouse.NewLedger(repository.NewBatchLogRepository(pool)),
		staging,
		quarantine,
		metrics,
		warehouse.NewDimensionMerger(staging, dims),
		warehouse.NewFactLoader(staging, dims, facts, quarantine, partitions),
		warehouse.NewAggregateRefresher(
			repository.AnalyticsViews(pool, cfg.Pipeline.CategoryPrefixLen)),
	)
}

func runLoad(ctx context.Context, args []string) error {
	fs := commonFlags("run")
	sourcePath := fs.String("source", "", "path to the CSV or XLSX source file")
	incremental := fs.Bool("incremental", false, "only load rows newer than the last successful run")
	fs.Parse(args)

	if *sourcePath == "" {
		return fmt.Errorf("-source is required")
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	set, err := loadRules(cfg)
	if err != nil {
		return err
	}

	rows, err := source.ReadFile(*sourcePath)
	if err != nil {
		return err
	}

	pipeline := buildPipeline(cfg, conn, set)
	record, err := pipeline.Run(ctx, rows, warehouse.RunOptions{
		SourceFile:  *sourcePath,
		Incremental: *incremental,
	})
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runMigrate(args []string) error {
	fs := commonFlags("migrate")
	fs.Parse(args)

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	return db.RunMigrations(migrations.FS, cfg.DB)
}

func runPartitionMigrate(ctx context.Context, args []string) error {
	fs := commonFlags("partition-migrate")
	flatTable := fs.String("flat-table", "fct_retail_sales_flat", "legacy unpartitioned fact table")
	fs.Parse(args)

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	manager := warehouse.NewPartitionManager(
		repository.NewPartitionRepository(conn), true)
	return manager.MigrateUnpartitioned(ctx, *flatTable)
}

func runRefresh(ctx context.Context, args []string) error {
	fs := commonFlags("refresh")
	fs.Parse(args)

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	refresher := warehouse.NewAggregateRefresher(
		repository.AnalyticsViews(conn.Pool, cfg.Pipeline.CategoryPrefixLen))
	results, err := refresher.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(results); err != nil {
		return err
	}
	if failed := warehouse.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d views failed to refresh", len(failed), len(results))
	}
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := commonFlags("status")
	fs.Parse(args)

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	service := statusService(conn)
	report, err := service.Report(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runServe(ctx context.Context, args []string) error {
	fs := commonFlags("serve")
	fs.Parse(args)

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	server := &http.Server{
		Addr:         cfg.Pipeline.ServerAddr,
		Handler:      status.NewHandler(statusService(conn)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("status API listening on %s", cfg.Pipeline.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down status API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runCleanup(ctx context.Context, args []string) error {
	fs := commonFlags("cleanup")
	yes := fs.Bool("yes", false, "confirm dropping every warehouse relation")
	fs.Parse(args)

	if !*yes {
		return fmt.Errorf("cleanup drops the entire warehouse; rerun with -yes to confirm")
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := repository.NewMaintenanceRepository(conn.Pool).DropWarehouse(ctx); err != nil {
		return err
	}
	log.Println("warehouse dropped; run 'etl migrate' to rebuild the schema")
	return nil
}

func statusService(conn *db.Connection) *status.Service {
	pool := conn.Pool
	return status.NewService(
		repository.NewStatusRepository(pool),
		repository.NewBatchLogRepository(pool),
		repository.NewQuarantineRepository(pool),
		repository.NewMetricsRepository(pool),
	)
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
