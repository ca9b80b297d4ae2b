package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/alexivanou/cityweather-api/internal/weather"
)

const clockTimeLayout = "15:04"

// CurrentWeather returns the current observation at a coordinate. Nothing is persisted.
func (s *Service) CurrentWeather(ctx context.Context, lat, lon float64) (*model.Observation, error) {
	obs, err := s.provider.Fetch(ctx, lat, lon, weather.CurrentWindow(s.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	return obs, nil
}

// RegisterCity fetches the current observation and stores a new city row with it.
// If the insert fails the observation is discarded.
func (s *Service) RegisterCity(ctx context.Context, name string, lat, lon float64) (*model.RegisteredCityResponse, error) {
	obs, err := s.CurrentWeather(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	id, err := s.cityRepo.InsertCity(ctx, name, *obs)
	if err != nil {
		return nil, fmt.Errorf("failed to add city: %w", err)
	}

	return &model.RegisteredCityResponse{
		Observation: *obs,
		ID:          id,
		CityName:    name,
	}, nil
}

// ListCityNames returns the names of all registered cities, duplicates included
func (s *Service) ListCityNames(ctx context.Context) ([]string, error) {
	cities, err := s.cityRepo.ListCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}

	names := make([]string, 0, len(cities))
	for _, c := range cities {
		names = append(names, c.Name)
	}
	return names, nil
}

// CityWeatherAtTime queries the upstream for a registered city at today's date
// combined with clockTime (HH:MM). The stored observation is neither read nor written.
func (s *Service) CityWeatherAtTime(ctx context.Context, name, clockTime string) (*model.CityWeatherResponse, error) {
	if _, err := time.Parse(clockTimeLayout, clockTime); err != nil || len(clockTime) != len(clockTimeLayout) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, clockTime)
	}

	city, err := s.cityRepo.GetCityByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get city: %w", err)
	}
	if city == nil {
		return nil, fmt.Errorf("%w: %s", ErrCityNotFound, name)
	}

	scanTime := s.clock.Now().Format("2006-01-02") + "T" + clockTime

	obs, err := s.provider.Fetch(ctx, city.Latitude, city.Longitude, weather.Window{Start: scanTime, End: scanTime})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	obs.LastUpdateTime = scanTime

	return &model.CityWeatherResponse{
		Observation: *obs,
		CityName:    name,
	}, nil
}
