package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/jmoiron/sqlx"
)

// --- PostgreSQL Implementation ---

type pgCityRepository struct {
	db *sqlx.DB
}

func (r *pgCityRepository) InsertCity(ctx context.Context, name string, obs model.Observation) (int64, error) {
	city := model.City{
		Name:      name,
		Latitude:  obs.Latitude,
		Longitude: obs.Longitude,
	}.WithObservation(obs)

	// Postgres reports no LastInsertId, the id comes back through RETURNING
	q, args, err := sqlx.Named(`
		INSERT INTO cities (name, latitude, longitude, temperature, pressure, wind_speed, last_update_time)
		VALUES (:name, :latitude, :longitude, :temperature, :pressure, :wind_speed, :last_update_time)
		RETURNING id`, city)
	if err != nil {
		return 0, storageError("insert city", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, r.db.Rebind(q), args...); err != nil {
		return 0, storageError("insert city", err)
	}
	return id, nil
}

func (r *pgCityRepository) ListCities(ctx context.Context) ([]model.City, error) {
	cities := []model.City{}
	if err := r.db.SelectContext(ctx, &cities, "SELECT * FROM cities ORDER BY id"); err != nil {
		return nil, storageError("list cities", err)
	}
	return cities, nil
}

func (r *pgCityRepository) GetCityByName(ctx context.Context, name string) (*model.City, error) {
	var city model.City
	err := r.db.GetContext(ctx, &city, "SELECT * FROM cities WHERE name = $1 ORDER BY id LIMIT 1", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("get city by name", err)
	}
	return &city, nil
}

func (r *pgCityRepository) UpdateObservation(ctx context.Context, id int64, obs model.Observation) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cities
		SET temperature = $1, pressure = $2, wind_speed = $3, last_update_time = $4
		WHERE id = $5`,
		obs.Temperature, obs.Pressure, obs.WindSpeed, obs.LastUpdateTime, id)
	if err != nil {
		return storageError("update observation", err)
	}
	return nil
}

func (r *pgCityRepository) CountCities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM cities"); err != nil {
		return 0, storageError("count cities", err)
	}
	return count, nil
}
