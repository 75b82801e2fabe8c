package cmd

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/catalogsync/backend/config"
	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/dummyjson"
	"github.com/catalogsync/backend/internal/infrastructure/store/memory"
	"github.com/catalogsync/backend/internal/infrastructure/store/postgres"
	"github.com/catalogsync/backend/internal/usecase"
)

// app bundles the wired dependencies shared by every subcommand
type app struct {
	source     *dummyjson.Client
	products   domain.ProductStore
	categories domain.CategoryStore
	service    *usecase.SyncService
	db         *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		source: dummyjson.NewClient(dummyjson.ClientConfig{
			BaseURL:    cfg.Source.BaseURL,
			Timeout:    cfg.Source.Timeout,
			MaxRetries: cfg.Source.MaxRetries,
			RateLimit:  cfg.Source.RateLimit,
			Burst:      cfg.Source.Burst,
		}, logger),
	}

	switch cfg.Store.Type {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.products = postgres.NewProductStore(db)
		a.categories = postgres.NewCategoryStore(db)
	default:
		a.products = memory.NewProductStore()
		a.categories = memory.NewCategoryStore()
	}
	logger.Info("store ready", zap.String("type", cfg.Store.Type))

	a.service = usecase.NewSyncService(a.source, a.products, a.categories, syncConfig(cfg), logger)
	return a, nil
}

func syncConfig(cfg *config.Config) usecase.SyncConfig {
	return usecase.SyncConfig{
		SourceName:               cfg.Source.Name,
		PageLimit:                cfg.Source.PageLimit,
		PageDelay:                cfg.Source.PageDelay,
		BatchSize:                cfg.Sync.BatchSize,
		MaxRetries:               cfg.Sync.MaxRetries,
		DryRun:                   cfg.Sync.DryRun,
		Verbose:                  cfg.Sync.Verbose,
		Currency:                 cfg.Sync.Currency,
		ExportDir:                cfg.Sync.ExportDir,
		AssumeNewOnLookupFailure: cfg.Sync.AssumeNewOnLookupFailure,
	}
}
