package stats

import (
	"context"
	"runtime"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/scheduler"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"github.com/jmoiron/sqlx"
)

type Stats struct {
	Timestamp time.Time         `json:"timestamp"`
	Memory    MemoryStats       `json:"memory"`
	Database  DatabaseStats     `json:"database"`
	Runtime   RuntimeStats      `json:"runtime"`
	Refresh   *scheduler.Status `json:"refresh,omitempty"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapInuse  uint64 `json:"heap_inuse"`
}

type DatabaseStats struct {
	Type        string      `json:"type"`
	SizeBytes   int64       `json:"size_bytes"`
	Cities      int64       `json:"cities"`
	StaleCities int64       `json:"stale_cities"`
	OldestData  string      `json:"oldest_update,omitempty"`
	TableStats  []TableStat `json:"table_stats"`
}

type TableStat struct {
	Name      string `json:"name"`
	RowCount  int64  `json:"row_count"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

type RuntimeStats struct {
	NumGoroutines int   `json:"num_goroutines"`
	NumCPU        int   `json:"num_cpu"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// RefreshStatus is implemented by the refresh scheduler
type RefreshStatus interface {
	Status() scheduler.Status
}

type Collector struct {
	db         *sqlx.DB
	config     config.DBConfig
	refresh    RefreshStatus
	staleAfter time.Duration
	clock      clock.Clock
	startTime  time.Time
	cachedMem  *MemoryStats
	cacheTime  time.Time
	cacheMutex sync.RWMutex
}

var (
	memStatsCacheDuration = 5 * time.Second
)

// NewCollector creates a collector. refresh may be nil when no scheduler runs in
// this process; staleAfter is the age past which a stored observation counts as stale.
func NewCollector(db *sqlx.DB, cfg config.DBConfig, refresh RefreshStatus, staleAfter time.Duration, clk clock.Clock) *Collector {
	return &Collector{
		db:         db,
		config:     cfg,
		refresh:    refresh,
		staleAfter: staleAfter,
		clock:      clk,
		startTime:  clk.Now(),
	}
}

func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Timestamp: c.clock.Now(),
	}

	stats.Memory = c.collectMemoryStats()

	dbStats, err := c.collectDatabaseStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Database = *dbStats
	stats.Runtime = c.collectRuntimeStats()

	if c.refresh != nil {
		status := c.refresh.Status()
		stats.Refresh = &status
	}

	return stats, nil
}

func (c *Collector) collectMemoryStats() MemoryStats {
	c.cacheMutex.RLock()
	if c.cachedMem != nil && c.clock.Since(c.cacheTime) < memStatsCacheDuration {
		mem := *c.cachedMem
		c.cacheMutex.RUnlock()
		return mem
	}
	c.cacheMutex.RUnlock()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mem := MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
	}

	c.cachedMem = &mem
	c.cacheTime = c.clock.Now()

	return mem
}

func (c *Collector) collectDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{
		Type: string(c.config.Type),
	}

	if totalSize, err := c.getDatabaseSize(ctx); err == nil {
		stats.SizeBytes = totalSize
	}

	stat, err := c.getTableStat(ctx, "cities")
	if err != nil {
		return nil, err
	}
	stats.TableStats = []TableStat{*stat}
	stats.Cities = stat.RowCount

	if err := c.collectFreshness(ctx, stats); err != nil {
		return nil, err
	}

	return stats, nil
}

// collectFreshness counts rows whose observation is older than staleAfter.
// Timestamps are fixed-width local ISO strings, so text comparison orders them.
func (c *Collector) collectFreshness(ctx context.Context, stats *DatabaseStats) error {
	var oldest *string
	if err := c.db.GetContext(ctx, &oldest, "SELECT MIN(last_update_time) FROM cities"); err != nil {
		return err
	}
	if oldest != nil {
		stats.OldestData = *oldest
	}

	if c.staleAfter <= 0 {
		return nil
	}
	cutoff := weather.FormatTimestamp(c.clock.Now().Add(-c.staleAfter))
	query := c.db.Rebind("SELECT COUNT(*) FROM cities WHERE last_update_time < ?")
	return c.db.GetContext(ctx, &stats.StaleCities, query, cutoff)
}

func (c *Collector) getDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	var err error

	if c.config.Type == config.DBTypePostgreSQL {
		err = c.db.GetContext(ctx, &size, "SELECT pg_database_size(current_database())")
	} else {
		err = c.db.GetContext(ctx, &size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	}

	if err != nil {
		return 0, err
	}
	return size, nil
}

func (c *Collector) getTableStat(ctx context.Context, tableName string) (*TableStat, error) {
	stat := &TableStat{Name: tableName}

	countQuery := "SELECT COUNT(*) FROM " + tableName
	var count int64
	err := c.db.GetContext(ctx, &count, countQuery)
	if err != nil {
		return nil, err
	}
	stat.RowCount = count

	if c.config.Type == config.DBTypePostgreSQL {
		sizeQuery := `SELECT COALESCE(pg_total_relation_size($1::regclass), 0)`
		var size int64
		err = c.db.GetContext(ctx, &size, sizeQuery, tableName)
		if err == nil {
			stat.SizeBytes = size
		}
	} else {
		// dbstat is only compiled into some sqlite builds
		sizeQuery := `SELECT SUM(pgsize) FROM dbstat WHERE name = ?`
		var size int64
		_ = c.db.GetContext(ctx, &size, sizeQuery, tableName)
		stat.SizeBytes = size
	}

	return stat, nil
}

func (c *Collector) collectRuntimeStats() RuntimeStats {
	uptime := c.clock.Since(c.startTime).Seconds()
	return RuntimeStats{
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		UptimeSeconds: int64(uptime),
	}
}
