package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Config holds refresh settings
type Config struct {
	Interval time.Duration
	// ListAttempts bounds how often the city snapshot is retried within one cycle
	ListAttempts   int
	ListBackoff    time.Duration
	ListBackoffMax time.Duration
}

// CycleResult summarises one refresh cycle
type CycleResult struct {
	Started   time.Time
	Finished  time.Time
	Cities    int
	Refreshed int
	Failed    int
	// ListErr is set when the city snapshot could not be taken and the cycle was skipped
	ListErr error
}

// Status is a point-in-time view of the scheduler for statistics
type Status struct {
	Running           bool      `json:"running"`
	Interval          string    `json:"interval"`
	CyclesRun         int64     `json:"cycles_run"`
	LastCycleStarted  time.Time `json:"last_cycle_started,omitempty"`
	LastCycleFinished time.Time `json:"last_cycle_finished,omitempty"`
	LastRefreshed     int       `json:"last_refreshed"`
	LastFailed        int       `json:"last_failed"`
	LastListError     string    `json:"last_list_error,omitempty"`
}

// Scheduler keeps the stored observation of every city fresh
type Scheduler struct {
	repo     repository.CityRepository
	provider weather.Provider
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *gocron.Scheduler
	cancel  context.CancelFunc
	running bool
	status  Status
}

// New creates a new Scheduler
func New(repo repository.CityRepository, provider weather.Provider, cfg Config, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if cfg.ListAttempts < 1 {
		cfg.ListAttempts = 1
	}
	if cfg.ListBackoffMax < cfg.ListBackoff {
		cfg.ListBackoffMax = cfg.ListBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		repo:     repo,
		provider: provider,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		status:   Status{Interval: cfg.Interval.String()},
	}
}

// Start schedules the first cycle to run immediately and starts the scheduler
// asynchronously. Each following cycle runs one interval after the previous
// one finished, so cycles never overlap and a slow cycle never shortens the pause.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("invalid refresh interval %s", s.cfg.Interval)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	cron := gocron.NewScheduler(time.UTC)
	if err := s.scheduleCycle(jobCtx, cron, true); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule refresh job: %w", err)
	}

	cron.StartAsync()
	s.cron = cron
	s.cancel = cancel
	s.running = true
	s.status.Running = true

	s.logger.Info("refresh scheduler started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// scheduleCycle adds a one-shot job. When the cycle is done the job queues the
// next one a full interval later.
func (s *Scheduler) scheduleCycle(ctx context.Context, cron *gocron.Scheduler, immediately bool) error {
	cron.Every(s.cfg.Interval)
	if immediately {
		cron.StartImmediately()
	} else {
		cron.WaitForSchedule()
	}

	_, err := cron.LimitRunsTo(1).Do(func() {
		s.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err := s.scheduleCycle(ctx, cron, false); err != nil {
			s.logger.Error("failed to schedule next refresh cycle", zap.Error(err))
		}
	})
	return err
}

// Stop cancels the in-flight cycle and stops future ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cron, cancel := s.cron, s.cancel
	s.running = false
	s.status.Running = false
	s.mu.Unlock()

	// The lock is released first: an in-flight cycle records its result under it
	cancel()
	cron.Stop()
	s.logger.Info("refresh scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Status returns a copy of the current status
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RunCycle refreshes every registered city once, one after another.
// A failing city is logged and keeps its previous observation.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{Started: s.clock.Now()}
	s.logger.Info("refresh cycle started")

	cities, err := s.listWithBackoff(ctx)
	if err != nil {
		res.ListErr = err
		res.Finished = s.clock.Now()
		s.logger.Error("refresh cycle skipped, cannot list cities", zap.Error(err))
		s.record(res)
		return res
	}
	res.Cities = len(cities)

	for _, city := range cities {
		if ctx.Err() != nil {
			break
		}
		if err := s.refreshCity(ctx, city); err != nil {
			res.Failed++
			s.logger.Warn("failed to refresh city",
				zap.Int64("city_id", city.ID),
				zap.String("city_name", city.Name),
				zap.Error(err))
			continue
		}
		res.Refreshed++
	}

	res.Finished = s.clock.Now()
	s.logger.Info("refresh cycle finished",
		zap.Int("cities", res.Cities),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Finished.Sub(res.Started)))
	s.record(res)
	return res
}

func (s *Scheduler) refreshCity(ctx context.Context, city model.City) error {
	obs, err := s.provider.Fetch(ctx, city.Latitude, city.Longitude, weather.CurrentWindow(s.clock.Now()))
	if err != nil {
		return err
	}
	return s.repo.UpdateObservation(ctx, city.ID, *obs)
}

// listWithBackoff retries ListCities with exponential backoff, capped by ListBackoffMax
func (s *Scheduler) listWithBackoff(ctx context.Context) ([]model.City, error) {
	delay := s.cfg.ListBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.ListAttempts; attempt++ {
		cities, err := s.repo.ListCities(ctx)
		if err == nil {
			return cities, nil
		}
		lastErr = err
		if attempt == s.cfg.ListAttempts {
			break
		}

		s.logger.Warn("listing cities failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}

		delay *= 2
		if delay > s.cfg.ListBackoffMax {
			delay = s.cfg.ListBackoffMax
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.cfg.ListAttempts, lastErr)
}

func (s *Scheduler) record(res CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.CyclesRun++
	s.status.LastCycleStarted = res.Started
	s.status.LastCycleFinished = res.Finished
	s.status.LastRefreshed = res.Refreshed
	s.status.LastFailed = res.Failed
	s.status.LastListError = ""
	if res.ListErr != nil {
		s.status.LastListError = res.ListErr.Error()
	}
}
