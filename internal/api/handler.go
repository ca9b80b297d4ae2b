package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/alexivanou/cityweather-api/internal/repository"
	"github.com/alexivanou/cityweather-api/internal/service"
	"github.com/alexivanou/cityweather-api/internal/weather"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	service service.ServiceInterface
	logger  *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(service service.ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Home handles GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
}

// CurrentWeather handles GET /{latitude}&{longitude}
func (h *Handler) CurrentWeather(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	coords, err := parseCoordinates(vars["latitude"], vars["longitude"])
	if err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	obs, err := h.service.CurrentWeather(r.Context(), coords.Latitude, coords.Longitude)
	if err != nil {
		h.fail(w, r, "Failed to fetch weather data.", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, obs)
}

// RegisterCity handles GET /{city_name}/{latitude}&{longitude}
func (h *Handler) RegisterCity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	city := cityParams{CityName: vars["city_name"]}
	if err := validate.Struct(city); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, validationMessage(err).Error())
		return
	}
	coords, err := parseCoordinates(vars["latitude"], vars["longitude"])
	if err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := h.service.RegisterCity(r.Context(), city.CityName, coords.Latitude, coords.Longitude)
	if err != nil {
		h.fail(w, r, "Failed to add city to the database.", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// ListCities handles GET /cities
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListCityNames(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to fetch cities from the database.", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, names)
}

// CityWeatherAtTime handles GET /{city_name}/{scan_time}
func (h *Handler) CityWeatherAtTime(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	params := scanParams{CityName: vars["city_name"], ScanTime: vars["scan_time"]}
	if err := validate.Struct(params); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, validationMessage(err).Error())
		return
	}

	resp, err := h.service.CityWeatherAtTime(r.Context(), params.CityName, params.ScanTime)
	if err != nil {
		h.fail(w, r, "Failed to fetch weather data.", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// fail maps a service error to its status code. storageDetail is reported for
// storage faults and unexpected errors so internals never leak into the body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, storageDetail string, err error) {
	status := http.StatusInternalServerError
	detail := storageDetail

	switch {
	case errors.Is(err, weather.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
		detail = "Weather service is unavailable."
	case errors.Is(err, service.ErrCityNotFound):
		status = http.StatusNotFound
		detail = "City " + mux.Vars(r)["city_name"] + " not found."
	case errors.Is(err, service.ErrInvalidTime):
		status = http.StatusUnprocessableEntity
		detail = "scan_time: must be a time of day as HH:MM"
	case errors.Is(err, weather.ErrMalformedResponse):
		detail = "Unexpected response from the weather service."
	case !errors.Is(err, repository.ErrStorage):
		detail = "internal server error"
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestIDFromContext(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}

	writeError(w, h.logger, status, detail)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, detail string) {
	writeJSON(w, logger, status, model.ErrorResponse{Detail: detail})
}
