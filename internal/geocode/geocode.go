// Package geocode resolves coordinates into a city and country.
package geocode

import (
	"context"
	"errors"
)

// ErrNoResult is returned when a lookup yields no locality
var ErrNoResult = errors.New("no geocoding result")

// Geocoder performs reverse geocoding
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (city, country string, err error)
}

// Nop never resolves anything; callers fall back to their sentinels
type Nop struct{}

func (Nop) ReverseGeocode(context.Context, float64, float64) (string, string, error) {
	return "", "", ErrNoResult
}

// Func adapts a function to Geocoder
type Func func(ctx context.Context, lat, lng float64) (string, string, error)

func (f Func) ReverseGeocode(ctx context.Context, lat, lng float64) (string, string, error) {
	return f(ctx, lat, lng)
}
