package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the Open-Meteo forecast endpoint
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// currentParams are the measurements requested for the "current" slot
var currentParams = []string{"temperature_2m", "surface_pressure", "wind_speed_10m"}

// OpenMeteoConfig configures the Open-Meteo provider
type OpenMeteoConfig struct {
	BaseURL string
	// Timeout bounds one upstream call; zero means no timeout
	Timeout time.Duration
}

// OpenMeteoProvider implements Provider for Open-Meteo
type OpenMeteoProvider struct {
	baseURL string
	client  *resty.Client
	clock   clock.Clock

	mu       sync.Mutex
	circuits map[string]*gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider creates a provider. Every coordinate pair gets its own
// circuit breaker: it opens after five consecutive unavailability failures for
// that location and fails fast for a minute. Calls are never retried.
func NewOpenMeteoProvider(cfg OpenMeteoConfig, clk clock.Clock) *OpenMeteoProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &OpenMeteoProvider{
		baseURL:  baseURL,
		client:   client,
		clock:    clk,
		circuits: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// circuitFor returns the breaker of one location, creating it on first use
func (p *OpenMeteoProvider) circuitFor(key string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.circuits[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo " + key,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     1 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	p.circuits[key] = cb
	return cb
}

// release forgets a healthy breaker so lookups of arbitrary coordinates do not
// accumulate. Only locations that are currently failing keep state.
func (p *OpenMeteoProvider) release(key string, cb *gobreaker.CircuitBreaker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.circuits[key] == cb && cb.State() == gobreaker.StateClosed && cb.Counts().ConsecutiveFailures == 0 {
		delete(p.circuits, key)
	}
}

// trackedCircuits reports how many locations currently hold breaker state
func (p *OpenMeteoProvider) trackedCircuits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.circuits)
}

type openMeteoResponse struct {
	Current *struct {
		Temperature *float64 `json:"temperature_2m"`
		Pressure    *float64 `json:"surface_pressure"`
		WindSpeed   *float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Fetch queries the current temperature, surface pressure and wind speed.
// The observation is stamped with the invocation time, not the upstream one.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, lat, lon float64, window Window) (*model.Observation, error) {
	invokedAt := p.clock.Now()
	latParam, lonParam := formatCoordinate(lat), formatCoordinate(lon)
	key := latParam + "," + lonParam
	circuit := p.circuitFor(key)

	result, err := circuit.Execute(func() (interface{}, error) {
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"latitude":       latParam,
				"longitude":      lonParam,
				"current":        strings.Join(currentParams, ","),
				"start_minutely": window.Start,
				"end_minutely":   window.End,
			}).
			Get(p.baseURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	p.release(key, circuit)

	resp := result.(*resty.Response)
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrMalformedResponse, resp.StatusCode(), truncate(resp.String(), 200))
	}

	var payload openMeteoResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	cur := payload.Current
	if cur == nil || cur.Temperature == nil || cur.Pressure == nil || cur.WindSpeed == nil {
		return nil, fmt.Errorf("%w: missing current measurements", ErrMalformedResponse)
	}

	return &model.Observation{
		Latitude:       lat,
		Longitude:      lon,
		Temperature:    *cur.Temperature,
		Pressure:       *cur.Pressure,
		WindSpeed:      *cur.WindSpeed,
		LastUpdateTime: FormatTimestamp(invokedAt),
	}, nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
