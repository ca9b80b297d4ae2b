package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/database"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/seeder"
	"github.com/alexivanou/cityweather-api/internal/service"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	file := flag.String("file", cfg.Seeder.File, "City list: name<TAB>latitude<TAB>longitude per line, optionally zipped")
	flag.Parse()
	if *file == "" {
		logger.Fatal("No city list given, set -file or SEED_FILE")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database", zap.String("type", string(cfg.DB.Type)))

	if err := database.Migrate(db, cfg.DB.Type); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Parsing city list...", zap.String("file", *file))
	entries, skipped, err := seeder.ParseFile(*file)
	if err != nil {
		logger.Fatal("Failed to parse city list", zap.Error(err))
	}
	logger.Info("Parsed city list", zap.Int("cities", len(entries)), zap.Int("skipped_lines", skipped))

	clk := clock.NewClock()
	repos := repository.NewRepositories(db, cfg.DB.Type)
	provider := weather.NewOpenMeteoProvider(weather.OpenMeteoConfig{
		BaseURL: cfg.Weather.BaseURL,
		Timeout: cfg.Weather.Timeout,
	}, clk)
	svc := service.NewService(repos.City, provider, clk)

	logger.Info("Registering cities...")
	res, err := seeder.Seed(ctx, svc, entries, logger)
	if err != nil {
		logger.Warn("Seeding interrupted", zap.Error(err))
	}

	logger.Info("Seeding completed",
		zap.Int("registered", res.Registered),
		zap.Int("failed", res.Failed))
}
