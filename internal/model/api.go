package model

// RegisteredCityResponse is returned after a city has been registered
type RegisteredCityResponse struct {
	Observation
	ID       int64  `json:"id"`
	CityName string `json:"city_name"`
}

// CityWeatherResponse is the weather for a named city at a requested time of day.
// LastUpdateTime holds the resolved scan timestamp.
type CityWeatherResponse struct {
	Observation
	CityName string `json:"city_name"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Detail string `json:"detail"`
}
