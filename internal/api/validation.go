package api

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("param")
	})
	// Time of day with minute precision, e.g. 07:45
	_ = v.RegisterValidation("clocktime", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})
	return v
}

type coordinateParams struct {
	Latitude  float64 `param:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `param:"longitude" validate:"gte=-180,lte=180"`
}

type cityParams struct {
	CityName string `param:"city_name" validate:"min=1,max=30"`
}

type scanParams struct {
	CityName string `param:"city_name" validate:"min=1,max=30"`
	ScanTime string `param:"scan_time" validate:"len=5,clocktime"`
}

// parseCoordinates converts the raw path values and checks their ranges
func parseCoordinates(rawLat, rawLon string) (coordinateParams, error) {
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return coordinateParams{}, fmt.Errorf("latitude: %q is not a number", rawLat)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return coordinateParams{}, fmt.Errorf("longitude: %q is not a number", rawLon)
	}

	p := coordinateParams{Latitude: lat, Longitude: lon}
	if err := validate.Struct(p); err != nil {
		return coordinateParams{}, validationMessage(err)
	}
	return p, nil
}

// validationMessage flattens validator errors into one readable line
func validationMessage(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "gte":
			parts = append(parts, fmt.Sprintf("%s: must be greater than or equal to %s", field, fe.Param()))
		case "lte":
			parts = append(parts, fmt.Sprintf("%s: must be less than or equal to %s", field, fe.Param()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s: must have at least %s characters", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s: must have at most %s characters", field, fe.Param()))
		case "len":
			parts = append(parts, fmt.Sprintf("%s: must have exactly %s characters", field, fe.Param()))
		case "clocktime":
			parts = append(parts, fmt.Sprintf("%s: must be a time of day as HH:MM", field))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
