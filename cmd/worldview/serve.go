package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httphandlers "worldview/internal/handlers/http"
	"worldview/internal/infrastructure/middleware"
	"worldview/internal/infrastructure/monitoring"
	"worldview/pkg/logger"
	"worldview/pkg/tracing"
	"worldview/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API",
	Long: `Serve the device control API over HTTP. Devices are started per
profile under /api/v1/devices and their snapshots are streamed over
/api/v1/devices/:profile/watch.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "override server.address")
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error flushing traces", "error", err)
		}
	}()

	health := monitoring.NewHealthChecker(log.Named("health"))
	health.AddStoreCheck(a.stores.Backend(), a.stores.Store(), cfg.Monitoring.HealthInterval, 2*time.Second)
	health.AddStudioCheck(a.studio.Accepting, cfg.Monitoring.HealthInterval, time.Second)
	health.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(a.zap), a.metrics))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	api := router.Group("/api/v1")
	httphandlers.NewDeviceHandler(a.studio, cfg.Server.ActionTimeout, log.Named("http")).SetupRoutes(api)
	httphandlers.NewWatchHandler(a.studio, cfg.Server.PingInterval, log.Named("watch")).
		SetupRoutes(api, middleware.NewWebSocketRateLimitMiddleware(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    utils.FormatDuration(time.Since(startTime)),
			"backend":   a.stores.Backend(),
			"devices":   len(a.studio.List()),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.GetReadinessStatus(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting worldview server", "address", cfg.Server.Address, "storage", a.stores.Backend())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	log.Info("Shutting down worldview server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	log.Info("worldview server stopped")
	return nil
}
