package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/billfold-ai/invoice-engine/internal/cleanup"
	"github.com/billfold-ai/invoice-engine/internal/config"
	"github.com/billfold-ai/invoice-engine/internal/extract"
	"github.com/billfold-ai/invoice-engine/internal/lease"
	"github.com/billfold-ai/invoice-engine/internal/llm"
	"github.com/billfold-ai/invoice-engine/internal/observability"
	"github.com/billfold-ai/invoice-engine/internal/pdf"
	"github.com/billfold-ai/invoice-engine/internal/pipeline"
	"github.com/billfold-ai/invoice-engine/internal/storage"
	"github.com/billfold-ai/invoice-engine/internal/validate"
)

// app bundles the wired pipeline dependencies behind one constructor so
// every command builds the same stack.
type app struct {
	cfg          *config.Config
	logger       *observability.Logger
	db           *sql.DB
	repo         *storage.InvoiceRepository
	leases       lease.Store
	orchestrator *pipeline.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "invoice-engine",
	})

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	leases, err := openLeaseStore(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	repo := storage.NewInvoiceRepository(db)

	renderer := pdf.NewRenderer(pdf.Options{
		DPI:     cfg.Rendering.DPI,
		Quality: cfg.Rendering.Quality,
		TempDir: cfg.Storage.TempDir,
	}, logger)

	client := llm.NewClient(llm.Config{
		APIKey:           cfg.Extraction.APIKey,
		BaseURL:          cfg.Extraction.BaseURL,
		Model:            cfg.Extraction.Model,
		MaxTokens:        cfg.Extraction.MaxTokens,
		BreakerThreshold: cfg.Extraction.BreakerThreshold,
		BreakerWindow:    cfg.Extraction.BreakerWindow,
		BreakerCooldown:  cfg.Extraction.BreakerCooldown,
	}, logger)

	orchestrator := pipeline.NewOrchestrator(
		cfg.Pipeline,
		cfg.Storage.TempDir,
		repo,
		leases,
		renderer,
		extract.NewExtractor(client, logger),
		validate.NewValidator(logger),
		cleanup.NewJanitor(cfg.Storage.TempDir, logger),
		logger,
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		repo:         repo,
		leases:       leases,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) Close() {
	a.leases.Close()
	a.db.Close()
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	driver := cfg.Database.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch cfg.Database.Driver {
	case "sqlite":
		db.SetMaxOpenConns(cfg.Database.SQLite.MaxOpenConns)
	case "postgres":
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func openLeaseStore(cfg *config.Config) (lease.Store, error) {
	if !cfg.Redis.Enabled {
		return lease.NewMemoryStore(), nil
	}

	store, err := lease.NewRedisStore(lease.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect lease store: %w", err)
	}

	return store, nil
}
