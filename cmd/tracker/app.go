package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"game-price-tracker/internal/cheapshark"
	"game-price-tracker/internal/config"
	"game-price-tracker/internal/metrics"
	"game-price-tracker/internal/pkg/db"
	"game-price-tracker/internal/pkg/lock"
	"game-price-tracker/internal/pkg/logger"
	"game-price-tracker/internal/repository"
	"game-price-tracker/internal/service"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	pool    *db.Pool
	metrics *metrics.Registry
	monitor *service.MonitorService
	tracker *service.TrackerService
}

// loadConfig reads and validates configuration, then installs the global logger.
func loadConfig(configDir string) (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	log.Info().Msg("Configuration loaded successfully")
	return cfg, nil
}

// openDatabase connects to PostgreSQL and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*db.Pool, error) {
	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pool, nil
}

// newApp builds the full dependency graph. The caller must call close.
func newApp(ctx context.Context, configDir string) (*app, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}

	pool, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	source, err := cheapshark.New(cfg.CheapShark)
	if err != nil {
		pool.Close()
		return nil, err
	}

	stores := service.Stores{
		Games:   repository.NewGameRepository(pool.Pool),
		Deals:   repository.NewDealRepository(pool.Pool),
		History: repository.NewPriceHistoryRepository(pool.Pool),
		Alerts:  repository.NewPriceAlertRepository(pool.Pool),
	}

	reg := metrics.NewRegistry()
	monitor := service.NewMonitorService(stores, source, lock.NewKeyLock(), reg, cfg.Monitor.MaxGames)
	tracker := service.NewTrackerService(stores, source, monitor)

	return &app{
		cfg:     cfg,
		pool:    pool,
		metrics: reg,
		monitor: monitor,
		tracker: tracker,
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}
