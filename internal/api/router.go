package api

import (
	"github.com/alexivanou/cityweather-api/internal/service"
	"github.com/alexivanou/cityweather-api/internal/stats"
	"github.com/gorilla/mux"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"go.uber.org/zap"
)

// Path values may not contain '/' or '&'
const segment = `[^/&]+`

// NewRouter creates a new HTTP router. telemetry may be nil.
func NewRouter(service service.ServiceInterface, statsCollector *stats.Collector, logger *zap.Logger, telemetry appinsights.TelemetryClient) *mux.Router {
	handler := NewHandler(service, logger)

	router := mux.NewRouter()
	router.Use(requestIDMiddleware, accessLogMiddleware(logger), recoveryMiddleware(logger))
	if telemetry != nil {
		router.Use(telemetryMiddleware(telemetry))
	}

	router.HandleFunc("/", handler.Home).Methods("GET")
	router.HandleFunc("/docs", handler.Docs).Methods("GET")
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if statsCollector != nil {
		router.HandleFunc("/stats", NewStatsHandler(statsCollector, logger).GetStats).Methods("GET")
	}
	router.HandleFunc("/cities", handler.ListCities).Methods("GET")

	// Registration has to win over the time lookup, both take two segments
	router.HandleFunc("/{latitude:"+segment+"}&{longitude:"+segment+"}", handler.CurrentWeather).Methods("GET")
	router.HandleFunc("/{city_name:"+segment+"}/{latitude:"+segment+"}&{longitude:"+segment+"}", handler.RegisterCity).Methods("GET")
	router.HandleFunc("/{city_name:"+segment+"}/{scan_time:"+segment+"}", handler.CityWeatherAtTime).Methods("GET")

	return router
}
