package weather

import "context"

// ConditionsProvider abstracts the remote current-conditions endpoint.
type ConditionsProvider interface {
	Name() string
	CurrentByCoordinate(ctx context.Context, c Coordinate, units Units) (Snapshot, error)
	CurrentByPlace(ctx context.Context, place string, units Units) (Snapshot, error)
}

// GeocodingProvider abstracts the remote place and postal geocoding endpoints.
type GeocodingProvider interface {
	Direct(ctx context.Context, place string, limit int) ([]GeocodeResult, error)
	Postal(ctx context.Context, code, countryCode string) (PostalLookupResult, error)
}

// NativeGeocoder is the platform's own address-to-coordinate capability.
// Any failure, including "nothing found", is reported as an error.
type NativeGeocoder interface {
	GeocodeAddress(ctx context.Context, address string) (Coordinate, error)
}

// SettingsSource hands out a value snapshot of the current settings.
type SettingsSource interface {
	Snapshot() ResolutionSettings
}
