package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/database"

	"github.com/rs/zerolog"
)

// Синхронизирует столы, типы столов и промокоды из config.yaml в базу без запуска API.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		dbPath     = flag.String("db", "", "path to sqlite db (overrides database.path)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if len(cfg.Tables) == 0 {
		return fmt.Errorf("no tables in config")
	}

	promos, err := cfg.PromoModels()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncCatalog(ctx, cfg.TableTypes, cfg.Tables); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	for _, p := range promos {
		if err = db.UpsertPromo(ctx, p); err != nil {
			return fmt.Errorf("upsert promo %s: %w", p.Code, err)
		}
	}

	logger.Info().
		Int("table_types", len(cfg.TableTypes)).
		Int("tables", len(cfg.Tables)).
		Int("promos", len(promos)).
		Str("db", cfg.Database.Path).
		Msg("Catalog synced")
	return nil
}
