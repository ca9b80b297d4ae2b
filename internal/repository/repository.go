package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexivanou/cityweather-api/internal/config"
	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrStorage wraps every database failure reported by the repositories
var ErrStorage = errors.New("storage failure")

// CityRepository defines operations for registered cities
type CityRepository interface {
	// InsertCity stores a new row and returns its id. Names are not unique.
	InsertCity(ctx context.Context, name string, obs model.Observation) (int64, error)
	// ListCities returns a snapshot of every row ordered by id
	ListCities(ctx context.Context) ([]model.City, error)
	// GetCityByName returns the lowest-id row with that exact name, or nil if none
	GetCityByName(ctx context.Context, name string) (*model.City, error)
	// UpdateObservation overwrites the measurements of a row; unknown ids are ignored
	UpdateObservation(ctx context.Context, id int64, obs model.Observation) error
	CountCities(ctx context.Context) (int, error)
}

// Container holds all repositories
type Container struct {
	City CityRepository
}

// NewRepositories creates repository implementations based on DB type
func NewRepositories(db *sqlx.DB, dbType config.DBType) *Container {
	if dbType == config.DBTypePostgreSQL {
		return &Container{
			City: &pgCityRepository{db: db},
		}
	}

	// Default to SQLite
	return &Container{
		City: &sqliteCityRepository{db: db},
	}
}

// IsDatabaseEmpty reports whether no city has been registered yet
func IsDatabaseEmpty(ctx context.Context, repo CityRepository) (bool, error) {
	count, err := repo.CountCities(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
