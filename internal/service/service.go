package service

import (
	"errors"

	"code.cloudfoundry.org/clock"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/weather"
)

var (
	// ErrCityNotFound is returned when no registered city has the requested name
	ErrCityNotFound = errors.New("city not found")
	// ErrInvalidTime is returned for a time of day that is not HH:MM
	ErrInvalidTime = errors.New("invalid time of day, expected HH:MM")
)

// Service composes the weather provider and the city store for request handling
type Service struct {
	cityRepo repository.CityRepository
	provider weather.Provider
	clock    clock.Clock
}

// NewService creates a new service instance
func NewService(cityRepo repository.CityRepository, provider weather.Provider, clk clock.Clock) *Service {
	return &Service{
		cityRepo: cityRepo,
		provider: provider,
		clock:    clk,
	}
}
