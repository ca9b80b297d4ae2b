package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/database"
	"github.com/alexivanou/cityweather-api/internal/stats"
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

	defaultFormat := os.Getenv("OUTPUT_FORMAT")
	if defaultFormat == "" {
		defaultFormat = "json"
	}
	format := flag.String("format", defaultFormat, "output format: json or text")
	staleAfter := flag.Duration("stale-after", 2*cfg.Refresh.Interval, "age past which a stored observation counts as stale")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Collecting statistics...",
		zap.String("db_type", string(cfg.DB.Type)),
		zap.Duration("stale_after", *staleAfter))

	clk := clock.NewClock()
	// No scheduler runs in this process, so refresh status is omitted
	collector := stats.NewCollector(db, cfg.DB, nil, *staleAfter, clk)

	statistics, err := collector.Collect(ctx)
	if err != nil {
		logger.Fatal("Failed to collect statistics", zap.Error(err))
	}

	switch *format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(statistics); err != nil {
			logger.Fatal("Failed to encode statistics", zap.Error(err))
		}
	case "text", "human":
		printHumanReadable(statistics, *staleAfter, cfg.Refresh.Interval)
	default:
		logger.Fatal("Unknown output format", zap.String("format", *format))
	}

	if statistics.Database.StaleCities > 0 {
		logger.Warn("Some cities have not been refreshed recently",
			zap.Int64("stale", statistics.Database.StaleCities),
			zap.Int64("cities", statistics.Database.Cities))
	}
}

func printHumanReadable(s *stats.Stats, staleAfter, interval time.Duration) {
	fmt.Println("=== City Weather Statistics ===")
	fmt.Printf("Timestamp: %s\n", weather.FormatTimestamp(s.Timestamp))
	fmt.Println()

	fmt.Println("--- Refresh Freshness ---")
	fmt.Printf("Refresh Interval: %s\n", interval)
	fmt.Printf("Stale After:      %s\n", staleAfter)
	fmt.Printf("Cities:           %d\n", s.Database.Cities)
	fmt.Printf("Stale Cities:     %d (%s)\n", s.Database.StaleCities, percent(s.Database.StaleCities, s.Database.Cities))
	if s.Database.OldestData != "" {
		fmt.Printf("Oldest Update:    %s", s.Database.OldestData)
		if age, ok := observationAge(s.Database.OldestData, s.Timestamp); ok {
			fmt.Printf(" (%s ago)", age)
		}
		fmt.Println()
	}
	fmt.Println()

	fmt.Println("--- Database ---")
	fmt.Printf("Type:             %s\n", s.Database.Type)
	fmt.Printf("Size:             %s\n", formatBytes(uint64(s.Database.SizeBytes)))
	for _, ts := range s.Database.TableStats {
		fmt.Printf("  %-15s: %10d rows", ts.Name, ts.RowCount)
		if ts.SizeBytes > 0 {
			fmt.Printf(" (%s)", formatBytes(uint64(ts.SizeBytes)))
		}
		fmt.Println()
	}
	fmt.Println()

	fmt.Println("--- Process ---")
	fmt.Printf("Allocated:        %s\n", formatBytes(s.Memory.Alloc))
	fmt.Printf("Goroutines:       %d\n", s.Runtime.NumGoroutines)
}

// observationAge parses a stored local timestamp and returns its age at now
func observationAge(stamp string, now time.Time) (time.Duration, bool) {
	t, err := time.ParseInLocation(weather.TimestampLayout, stamp, time.Local)
	if err != nil {
		return 0, false
	}
	return now.Sub(t).Truncate(time.Second), true
}

func percent(part, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
