package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/api"
	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/database"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/scheduler"
	"github.com/alexivanou/cityweather-api/internal/seeder"
	"github.com/alexivanou/cityweather-api/internal/service"
	"github.com/alexivanou/cityweather-api/internal/stats"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Application stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database", zap.String("type", string(cfg.DB.Type)))

	if err := database.Migrate(db, cfg.DB.Type); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	clk := clock.NewClock()
	repos := repository.NewRepositories(db, cfg.DB.Type)
	provider := weather.NewOpenMeteoProvider(weather.OpenMeteoConfig{
		BaseURL: cfg.Weather.BaseURL,
		Timeout: cfg.Weather.Timeout,
	}, clk)
	svc := service.NewService(repos.City, provider, clk)

	if cfg.Seeder.File != "" {
		autoSeed(ctx, repos.City, svc, cfg.Seeder.File, logger)
	}

	refresher := scheduler.New(repos.City, provider, scheduler.Config{
		Interval:       cfg.Refresh.Interval,
		ListAttempts:   cfg.Refresh.ListAttempts,
		ListBackoff:    cfg.Refresh.ListBackoff,
		ListBackoffMax: cfg.Refresh.ListBackoffMax,
	}, clk, logger.Named("refresh"))

	// Observations older than two intervals mean refreshes are failing
	statsCollector := stats.NewCollector(db, cfg.DB, refresher, 2*cfg.Refresh.Interval, clk)

	var telemetry appinsights.TelemetryClient
	if cfg.Telemetry.InstrumentationKey != "" {
		telemetryConfig := appinsights.NewTelemetryConfiguration(cfg.Telemetry.InstrumentationKey)
		telemetryConfig.MaxBatchInterval = 2 * time.Second
		telemetry = appinsights.NewTelemetryClientFromConfig(telemetryConfig)
		telemetry.Context().Tags.Cloud().SetRole("cityweather-api")
		defer func() {
			select {
			case <-telemetry.Channel().Close(10 * time.Second):
			case <-time.After(15 * time.Second):
			}
		}()
		logger.Info("Application Insights telemetry enabled")
	}

	router := api.NewRouter(svc, statsCollector, logger, telemetry)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Weather.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return refresher.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// autoSeed registers the cities of a list file when nothing is registered yet.
// Seeding problems are logged; the service starts regardless.
func autoSeed(ctx context.Context, repo repository.CityRepository, svc *service.Service, path string, logger *zap.Logger) {
	isEmpty, err := repository.IsDatabaseEmpty(ctx, repo)
	if err != nil {
		logger.Warn("Failed to check if database is empty", zap.Error(err))
		return
	}
	if !isEmpty {
		return
	}

	logger.Info("Database is empty, auto-seeding cities...", zap.String("file", path))
	entries, skipped, err := seeder.ParseFile(path)
	if err != nil {
		logger.Warn("Failed to read seed file", zap.Error(err))
		return
	}

	res, err := seeder.Seed(ctx, svc, entries, logger)
	if err != nil {
		logger.Warn("Seeding interrupted", zap.Error(err))
	}
	logger.Info("Seeding finished",
		zap.Int("registered", res.Registered),
		zap.Int("failed", res.Failed),
		zap.Int("skipped_lines", skipped))
}
