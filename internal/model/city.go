package model

// City represents a registered city row with its most recent observation
type City struct {
	ID             int64   `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Latitude       float64 `db:"latitude" json:"latitude"`
	Longitude      float64 `db:"longitude" json:"longitude"`
	Temperature    float64 `db:"temperature" json:"temperature"`
	Pressure       float64 `db:"pressure" json:"pressure"`
	WindSpeed      float64 `db:"wind_speed" json:"wind_speed"`
	LastUpdateTime string  `db:"last_update_time" json:"last_update_time"`
}

// Observation is a single point-in-time weather reading for a coordinate.
// LastUpdateTime is an ISO-8601 local timestamp without fractional seconds.
type Observation struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Temperature    float64 `json:"temperature"`
	Pressure       float64 `json:"pressure"`
	WindSpeed      float64 `json:"wind_speed"`
	LastUpdateTime string  `json:"last_update_time"`
}

// WithObservation returns a copy of the city carrying the observation's
// measurements. Coordinates and identity are kept.
func (c City) WithObservation(obs Observation) City {
	c.Temperature = obs.Temperature
	c.Pressure = obs.Pressure
	c.WindSpeed = obs.WindSpeed
	c.LastUpdateTime = obs.LastUpdateTime
	return c
}
