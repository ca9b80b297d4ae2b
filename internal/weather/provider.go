package weather

import (
	"context"
	"errors"
	"time"

	"github.com/alexivanou/cityweather-api/internal/model"
)

// TimestampLayout is the ISO-8601 form used for observation timestamps:
// local time, second precision, no zone suffix.
const TimestampLayout = "2006-01-02T15:04:05"

var (
	// ErrServiceUnavailable means the upstream provider could not be reached
	ErrServiceUnavailable = errors.New("weather provider unavailable")
	// ErrMalformedResponse means the upstream answered with something we cannot read
	ErrMalformedResponse = errors.New("malformed weather provider response")
)

// Window bounds the upstream query. Both ends are ISO-8601 timestamps.
type Window struct {
	Start string
	End   string
}

// CurrentWindow returns a window whose bounds are both now
func CurrentWindow(now time.Time) Window {
	ts := FormatTimestamp(now)
	return Window{Start: ts, End: ts}
}

// FormatTimestamp formats t with TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Provider abstracts the upstream weather data source.
// One call issues exactly one upstream request; there is no retry and no cache.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64, window Window) (*model.Observation, error)
}
