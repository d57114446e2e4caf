package main

import (
	"context"
	"fmt"

	"worldview/internal/core/services"
	"worldview/internal/infrastructure/monitoring"
	"worldview/internal/infrastructure/repositories"
	transport "worldview/internal/infrastructure/transport/memory"
	"worldview/pkg/config"
	"worldview/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app is everything a command needs to host devices.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	zap     *zap.Logger
	stores  *repositories.RepositoryFactory
	hub     *transport.Hub
	studio  *services.Studio
	metrics *monitoring.PrometheusCollector
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := zapLogger.Sugar()

	stores, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	metrics := monitoring.NewPrometheusCollector(reg)
	hub := transport.NewHub(cfg.Transport.BufferSize, metrics, log.Named("transport"))
	if err := monitoring.RegisterHubStats(reg, hub); err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to register hub metrics: %w", err)
	}

	opts, err := services.DeviceOptionsFromConfig(cfg, metrics, log.Named("device"))
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		zap:     zapLogger,
		stores:  stores,
		hub:     hub,
		studio:  services.NewStudio(stores, hub, opts),
		metrics: metrics,
	}, nil
}

// Close stops every device before the transport and storage go away.
func (a *app) Close() {
	if err := a.studio.Close(); err != nil {
		a.log.Errorw("Error closing studio", "error", err)
	}
	if err := a.hub.Close(); err != nil {
		a.log.Errorw("Error closing transport", "error", err)
	}
	if err := a.stores.Close(); err != nil {
		a.log.Errorw("Error closing storage", "error", err)
	}
	_ = a.zap.Sync()
}
