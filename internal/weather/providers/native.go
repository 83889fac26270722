package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-locator/internal/common"
	"github.com/i474232898/weather-locator/internal/weather"
)

var errNativeNotConfigured = errors.New("native geocoder api key is not configured")

// NativeGeocoder is the platform address geocoder, backed by the Google
// Geocoding API. It implements weather.NativeGeocoder.
type NativeGeocoder struct {
	apiKey  string
	geocode func(geocoder.Address) (geocoder.Location, error)
}

// NewNativeGeocoder creates a geocoder using the given Google API key.
// geocoder keeps the key in a package variable, so there is one key per
// process and it is set here, before any lookup runs.
func NewNativeGeocoder(apiKey string) *NativeGeocoder {
	if apiKey != "" {
		geocoder.ApiKey = apiKey
	}
	return &NativeGeocoder{
		apiKey:  apiKey,
		geocode: geocoder.Geocoding,
	}
}

// GeocodeAddress resolves a free-text address. The underlying call is not
// cancellable; ctx only bounds how long the caller waits for it.
func (g *NativeGeocoder) GeocodeAddress(ctx context.Context, address string) (weather.Coordinate, error) {
	const op = "native geocode"
	address = strings.TrimSpace(address)
	if address == "" {
		return weather.Coordinate{}, weather.NewError(weather.ErrInvalidInput, op, errors.New("empty address"))
	}
	if g.apiKey == "" {
		return weather.Coordinate{}, weather.NewError(weather.ErrNoResult, op, errNativeNotConfigured)
	}

	addr := geocoder.Address{Street: address}
	if common.IsAllDigits(address) {
		addr = geocoder.Address{PostalCode: address}
	}

	type result struct {
		loc geocoder.Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		loc, err := g.geocode(addr)
		done <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return weather.Coordinate{}, weather.NewError(weather.ErrTransport, op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return weather.Coordinate{}, weather.NewError(weather.ErrNoResult, op, r.err)
		}
		return weather.Coordinate{Latitude: r.loc.Latitude, Longitude: r.loc.Longitude}, nil
	}
}
