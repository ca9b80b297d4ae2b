package service

import (
	"context"

	"github.com/alexivanou/cityweather-api/internal/model"
)

// ServiceInterface defines the service interface for testing
type ServiceInterface interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*model.Observation, error)
	RegisterCity(ctx context.Context, name string, lat, lon float64) (*model.RegisteredCityResponse, error)
	ListCityNames(ctx context.Context) ([]string, error)
	CityWeatherAtTime(ctx context.Context, name, clockTime string) (*model.CityWeatherResponse, error)
}
