package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/database"
	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/service"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var startTime = time.Date(2026, 10, 18, 6, 0, 0, 0, time.Local)

// stubProvider stamps observations with its clock and fails for listed latitudes
type stubProvider struct {
	clock   clock.Clock
	mu      sync.Mutex
	failFor map[float64]bool
	calls   int32
}

func (p *stubProvider) Fetch(_ context.Context, lat, lon float64, _ weather.Window) (*model.Observation, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	fail := p.failFor[lat]
	p.mu.Unlock()
	if fail {
		return nil, weather.ErrServiceUnavailable
	}
	return &model.Observation{
		Latitude:       lat,
		Longitude:      lon,
		Temperature:    lat / 10,
		Pressure:       1000 + lon,
		WindSpeed:      2.5,
		LastUpdateTime: weather.FormatTimestamp(p.clock.Now()),
	}, nil
}

type fetchSpan struct {
	start, end time.Time
}

// timedProvider records wall-clock spans of each call; the first call is slow
type timedProvider struct {
	stubProvider
	firstDelay time.Duration
	spanMu     sync.Mutex
	recorded   []fetchSpan
}

func (p *timedProvider) Fetch(ctx context.Context, lat, lon float64, w weather.Window) (*model.Observation, error) {
	span := fetchSpan{start: time.Now()}
	p.spanMu.Lock()
	first := len(p.recorded) == 0
	p.spanMu.Unlock()
	if first {
		time.Sleep(p.firstDelay)
	}
	obs, err := p.stubProvider.Fetch(ctx, lat, lon, w)
	span.end = time.Now()

	p.spanMu.Lock()
	p.recorded = append(p.recorded, span)
	p.spanMu.Unlock()
	return obs, err
}

func (p *timedProvider) spans() []fetchSpan {
	p.spanMu.Lock()
	defer p.spanMu.Unlock()
	return append([]fetchSpan(nil), p.recorded...)
}

// flakyListRepo fails ListCities a fixed number of times before delegating
type flakyListRepo struct {
	repository.CityRepository
	failures  int32
	listCalls int32
}

func (r *flakyListRepo) ListCities(ctx context.Context) ([]model.City, error) {
	n := atomic.AddInt32(&r.listCalls, 1)
	if n <= atomic.LoadInt32(&r.failures) {
		return nil, fmt.Errorf("%w: database is locked", repository.ErrStorage)
	}
	if r.CityRepository == nil {
		return []model.City{}, nil
	}
	return r.CityRepository.ListCities(ctx)
}

func setupRepo(t *testing.T) repository.CityRepository {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	cfg := config.DBConfig{Type: config.DBTypeMemory, Name: fmt.Sprintf("sched_%d", rng.Int())}

	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, cfg.Type))
	t.Cleanup(func() { db.Close() })

	return repository.NewRepositories(db, cfg.Type).City
}

func seed(t *testing.T, repo repository.CityRepository, name string, lat, lon float64) int64 {
	id, err := repo.InsertCity(context.Background(), name, model.Observation{
		Latitude:       lat,
		Longitude:      lon,
		Temperature:    -1,
		Pressure:       990,
		WindSpeed:      1,
		LastUpdateTime: "2026-10-17T23:00:00",
	})
	require.NoError(t, err)
	return id
}

func testConfig() Config {
	return Config{
		Interval:       15 * time.Minute,
		ListAttempts:   3,
		ListBackoff:    time.Second,
		ListBackoffMax: 1500 * time.Millisecond,
	}
}

func TestScheduler_RunCycleRefreshesEveryCity(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &stubProvider{clock: clk}
	s := New(repo, provider, testConfig(), clk, zap.NewNop())
	ctx := context.Background()

	seed(t, repo, "Moscow", 56, 38)
	seed(t, repo, "Berlin", 52.52, 13.4)

	res := s.RunCycle(ctx)
	assert.NoError(t, res.ListErr)
	assert.Equal(t, 2, res.Cities)
	assert.Equal(t, 2, res.Refreshed)
	assert.Equal(t, 0, res.Failed)

	cities, err := repo.ListCities(ctx)
	require.NoError(t, err)
	first := map[int64]string{}
	for _, c := range cities {
		assert.Equal(t, "2026-10-18T06:00:00", c.LastUpdateTime)
		assert.Equal(t, c.Latitude/10, c.Temperature)
		first[c.ID] = c.LastUpdateTime
	}

	clk.Increment(15 * time.Minute)
	s.RunCycle(ctx)

	cities, err = repo.ListCities(ctx)
	require.NoError(t, err)
	for _, c := range cities {
		// Fixed-width timestamps compare chronologically as strings
		assert.Greater(t, c.LastUpdateTime, first[c.ID])
	}

	status := s.Status()
	assert.Equal(t, int64(2), status.CyclesRun)
	assert.Equal(t, 2, status.LastRefreshed)
	assert.Empty(t, status.LastListError)
}

func TestScheduler_FailedCityKeepsPreviousObservation(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &stubProvider{clock: clk, failFor: map[float64]bool{56: true}}
	s := New(repo, provider, testConfig(), clk, zap.NewNop())
	ctx := context.Background()

	moscowID := seed(t, repo, "Moscow", 56, 38)
	berlinID := seed(t, repo, "Berlin", 52.52, 13.4)

	res := s.RunCycle(ctx)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))

	cities, err := repo.ListCities(ctx)
	require.NoError(t, err)
	require.Len(t, cities, 2)

	byID := map[int64]model.City{}
	for _, c := range cities {
		byID[c.ID] = c
	}
	assert.Equal(t, -1.0, byID[moscowID].Temperature)
	assert.Equal(t, "2026-10-17T23:00:00", byID[moscowID].LastUpdateTime)
	assert.Equal(t, "2026-10-18T06:00:00", byID[berlinID].LastUpdateTime)
}

func TestScheduler_FailingLocationsDoNotBlockHealthyOne(t *testing.T) {
	var healthyHits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "80" {
			atomic.AddInt32(&healthyHits, 1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"current":{"temperature_2m":-12.5,"surface_pressure":1011.2,"wind_speed_10m":3.1}}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := weather.NewOpenMeteoProvider(weather.OpenMeteoConfig{BaseURL: upstream.URL, Timeout: 5 * time.Second}, clk)
	s := New(repo, provider, testConfig(), clk, zap.NewNop())

	for i := 1; i <= 5; i++ {
		seed(t, repo, fmt.Sprintf("Outage-%d", i), float64(i), 10)
	}
	healthyID := seed(t, repo, "Longyearbyen", 80, 15.6)

	res := s.RunCycle(context.Background())
	assert.Equal(t, 6, res.Cities)
	assert.Equal(t, 5, res.Failed)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthyHits))

	cities, err := repo.ListCities(context.Background())
	require.NoError(t, err)
	for _, c := range cities {
		if c.ID == healthyID {
			assert.Equal(t, -12.5, c.Temperature)
			assert.Equal(t, "2026-10-18T06:00:00", c.LastUpdateTime)
			continue
		}
		assert.Equal(t, "2026-10-17T23:00:00", c.LastUpdateTime)
	}
}

func TestScheduler_CycleRunsAlongsideRequests(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &stubProvider{clock: clk}
	svc := service.NewService(repo, provider, clk)
	s := New(repo, provider, testConfig(), clk, zap.NewNop())
	ctx := context.Background()

	seeded := map[int64]bool{}
	for i := 0; i < 20; i++ {
		seeded[seed(t, repo, fmt.Sprintf("Seeded-%d", i), float64(i), float64(i))] = true
	}

	var (
		wg         sync.WaitGroup
		res        CycleResult
		errMu      sync.Mutex
		errs       []error
		registered = make(chan *model.RegisteredCityResponse, 20)
	)
	report := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		res = s.RunCycle(ctx)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			resp, err := svc.RegisterCity(ctx, fmt.Sprintf("Fresh-%d", i), 40+float64(i)/10, 20)
			if err != nil {
				report(err)
				continue
			}
			registered <- resp
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := svc.ListCityNames(ctx); err != nil {
				report(err)
			}
		}
	}()
	wg.Wait()
	close(registered)

	assert.Empty(t, errs)
	assert.NoError(t, res.ListErr)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, res.Cities, res.Refreshed)
	assert.GreaterOrEqual(t, res.Cities, 20)

	cities, err := repo.ListCities(ctx)
	require.NoError(t, err)
	require.Len(t, cities, 40)
	byID := map[int64]model.City{}
	for _, c := range cities {
		byID[c.ID] = c
		if seeded[c.ID] {
			// Every seeded row was in the snapshot and moved forward
			assert.Equal(t, "2026-10-18T06:00:00", c.LastUpdateTime)
			assert.Equal(t, c.Latitude/10, c.Temperature)
		}
	}

	count := 0
	for resp := range registered {
		count++
		c, ok := byID[resp.ID]
		require.True(t, ok)
		assert.Equal(t, resp.CityName, c.Name)
		assert.Equal(t, resp.Temperature, c.Temperature)
		assert.Equal(t, resp.Pressure, c.Pressure)
		assert.Equal(t, resp.LastUpdateTime, c.LastUpdateTime)
	}
	assert.Equal(t, 20, count)
}

func TestScheduler_EmptyStore(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &stubProvider{clock: clk}
	s := New(repo, provider, testConfig(), clk, zap.NewNop())

	res := s.RunCycle(context.Background())
	assert.NoError(t, res.ListErr)
	assert.Equal(t, 0, res.Cities)
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
}

func TestScheduler_ListFailureRecoversAfterBackoff(t *testing.T) {
	clk := fakeclock.NewFakeClock(startTime)
	repo := &flakyListRepo{CityRepository: setupRepo(t), failures: 2}
	seed(t, repo, "Moscow", 56, 38)
	provider := &stubProvider{clock: clk}
	s := New(repo, provider, testConfig(), clk, zap.NewNop())

	done := make(chan CycleResult, 1)
	go func() { done <- s.RunCycle(context.Background()) }()

	clk.WaitForWatcherAndIncrement(time.Second)
	clk.WaitForWatcherAndIncrement(1500 * time.Millisecond)

	select {
	case res := <-done:
		assert.NoError(t, res.ListErr)
		assert.Equal(t, 1, res.Refreshed)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.listCalls))
}

func TestScheduler_ListFailureSkipsCycleAfterBoundedAttempts(t *testing.T) {
	clk := fakeclock.NewFakeClock(startTime)
	repo := &flakyListRepo{failures: 100}
	provider := &stubProvider{clock: clk}
	s := New(repo, provider, testConfig(), clk, zap.NewNop())

	done := make(chan CycleResult, 1)
	go func() { done <- s.RunCycle(context.Background()) }()

	// Each wait blocks until a backoff timer exists, so the loop cannot spin
	clk.WaitForWatcherAndIncrement(time.Second)
	clk.WaitForWatcherAndIncrement(1500 * time.Millisecond)

	select {
	case res := <-done:
		assert.ErrorIs(t, res.ListErr, repository.ErrStorage)
		assert.Equal(t, 0, res.Cities)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.listCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls))
	assert.NotEmpty(t, s.Status().LastListError)
}

func TestScheduler_ListBackoffHonoursCancellation(t *testing.T) {
	clk := fakeclock.NewFakeClock(startTime)
	repo := &flakyListRepo{failures: 100}
	s := New(repo, &stubProvider{clock: clk}, testConfig(), clk, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan CycleResult, 1)
	go func() { done <- s.RunCycle(ctx) }()

	require.Eventually(t, func() bool { return clk.WatcherCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.True(t, errors.Is(res.ListErr, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("cycle ignored cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.listCalls))
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &stubProvider{clock: clk}
	s := New(repo, provider, Config{Interval: time.Hour, ListAttempts: 1}, clk, zap.NewNop())

	seed(t, repo, "Moscow", 56, 38)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.True(t, s.Status().Running)

	assert.Eventually(t, func() bool {
		return s.Status().CyclesRun == 1
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Status().Running)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestScheduler_WaitsFullIntervalAfterCycleFinishes(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	provider := &timedProvider{stubProvider: stubProvider{clock: clk}, firstDelay: 300 * time.Millisecond}
	s := New(repo, provider, Config{Interval: 200 * time.Millisecond, ListAttempts: 1}, clk, zap.NewNop())

	seed(t, repo, "Moscow", 56, 38)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(provider.spans()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	spans := provider.spans()
	// A fixed-rate schedule would start the second cycle 100ms after the slow one
	pause := spans[1].start.Sub(spans[0].end)
	assert.GreaterOrEqual(t, pause, 180*time.Millisecond)
}

func TestScheduler_RunReturnsOnCancel(t *testing.T) {
	repo := setupRepo(t)
	clk := fakeclock.NewFakeClock(startTime)
	s := New(repo, &stubProvider{clock: clk}, Config{Interval: time.Hour}, clk, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Status().Running }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.Status().Running)
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	clk := fakeclock.NewFakeClock(startTime)
	s := New(&flakyListRepo{}, &stubProvider{clock: clk}, Config{}, clk, nil)
	assert.Error(t, s.Start(context.Background()))
}
