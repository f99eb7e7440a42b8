// Package gps abstracts the device position source used when no location is
// selected.
package gps

import (
	"context"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/models"
)

// Provider requests location permission and returns the device position.
// A denied permission is reported as *apperr.PermissionError.
type Provider interface {
	Position(ctx context.Context) (models.Coordinates, error)
}

// StaticProvider serves a fixed position. With Granted false it behaves like a
// device where the user refused location access.
type StaticProvider struct {
	Granted bool
	Coords  models.Coordinates
}

// Position returns the configured coordinates or a PermissionError.
func (p StaticProvider) Position(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if !p.Granted {
		return models.Coordinates{}, &apperr.PermissionError{Permission: "location"}
	}
	return p.Coords, nil
}

// Denied returns a provider that always refuses permission.
func Denied() StaticProvider { return StaticProvider{} }

// Fixed returns a provider that grants permission and reports lat/lon.
func Fixed(lat, lon float64) StaticProvider {
	return StaticProvider{Granted: true, Coords: models.Coordinates{Lat: lat, Lon: lon}}
}
