package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/alexivanou/cityweather-api/internal/model"
	"github.com/jmoiron/sqlx"
)

type sqliteCityRepository struct {
	db *sqlx.DB
}

func (r *sqliteCityRepository) InsertCity(ctx context.Context, name string, obs model.Observation) (int64, error) {
	city := model.City{
		Name:      name,
		Latitude:  obs.Latitude,
		Longitude: obs.Longitude,
	}.WithObservation(obs)

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO cities (name, latitude, longitude, temperature, pressure, wind_speed, last_update_time)
		VALUES (:name, :latitude, :longitude, :temperature, :pressure, :wind_speed, :last_update_time)`,
		city)
	if err != nil {
		return 0, storageError("insert city", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("insert city", err)
	}
	return id, nil
}

func (r *sqliteCityRepository) ListCities(ctx context.Context) ([]model.City, error) {
	cities := []model.City{}
	if err := r.db.SelectContext(ctx, &cities, "SELECT * FROM cities ORDER BY id"); err != nil {
		return nil, storageError("list cities", err)
	}
	return cities, nil
}

func (r *sqliteCityRepository) GetCityByName(ctx context.Context, name string) (*model.City, error) {
	var city model.City
	err := r.db.GetContext(ctx, &city, "SELECT * FROM cities WHERE name = ? ORDER BY id LIMIT 1", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("get city by name", err)
	}
	return &city, nil
}

func (r *sqliteCityRepository) UpdateObservation(ctx context.Context, id int64, obs model.Observation) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cities
		SET temperature = ?, pressure = ?, wind_speed = ?, last_update_time = ?
		WHERE id = ?`,
		obs.Temperature, obs.Pressure, obs.WindSpeed, obs.LastUpdateTime, id)
	if err != nil {
		return storageError("update observation", err)
	}
	return nil
}

func (r *sqliteCityRepository) CountCities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM cities"); err != nil {
		return 0, storageError("count cities", err)
	}
	return count, nil
}
