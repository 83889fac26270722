package weather

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Resolution is the outcome of a coordinate lookup. Found is false when the
// lookup produced no usable coordinate for any reason.
type Resolution struct {
	Coordinate Coordinate
	Found      bool
}

// Resolver turns free text and postal codes into coordinates, either via the
// remote geocoding API or via the platform's native geocoder.
type Resolver struct {
	remote GeocodingProvider
	native NativeGeocoder
	logger *slog.Logger
}

// NewResolver creates a Resolver. native may be nil, in which case the native
// strategy always yields no result.
func NewResolver(remote GeocodingProvider, native NativeGeocoder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		remote: remote,
		native: native,
		logger: logger.With("component", "resolver"),
	}
}

// ResolvePlace looks up a place by name. Results keep the provider's
// relevance order; an empty slice is a valid answer.
func (r *Resolver) ResolvePlace(ctx context.Context, name, stateCode, countryCode string, limit int) ([]GeocodeResult, error) {
	const op = "resolve place"
	if strings.TrimSpace(name) == "" {
		return nil, NewError(ErrInvalidInput, op, errors.New("empty place name"))
	}
	if limit <= 0 {
		limit = 1
	}

	q := ByPlace(name, stateCode, countryCode)
	return r.remote.Direct(ctx, q.PlaceString(), limit)
}

// ResolvePostal looks up a postal code. An empty country falls back to US.
func (r *Resolver) ResolvePostal(ctx context.Context, code, countryCode string) (PostalLookupResult, error) {
	const op = "resolve postal"
	if strings.TrimSpace(code) == "" {
		return PostalLookupResult{}, NewError(ErrInvalidInput, op, errors.New("empty postal code"))
	}
	if countryCode == "" {
		countryCode = DefaultPostalCountry
	}
	return r.remote.Postal(ctx, code, countryCode)
}

// ResolveCoordinate picks a geocoding strategy from settings and returns the
// first matching coordinate. It never fails: every error is logged and
// reported as not found.
//
// The native geocoder is used only when geocoding is enabled and API
// geocoding is not preferred. A native failure is not retried remotely.
func (r *Resolver) ResolveCoordinate(ctx context.Context, text string, settings ResolutionSettings) (Coordinate, bool) {
	if settings.GeocodingEnabled && !settings.PreferAPIGeocoding {
		return r.resolveNative(ctx, text)
	}
	return r.resolveRemote(ctx, text)
}

// ResolveCoordinateAsync runs ResolveCoordinate in the background. The
// returned channel receives exactly one Resolution and is then closed.
func (r *Resolver) ResolveCoordinateAsync(ctx context.Context, text string, settings ResolutionSettings) <-chan Resolution {
	out := make(chan Resolution, 1)
	go func() {
		defer close(out)
		c, ok := r.ResolveCoordinate(ctx, text, settings)
		out <- Resolution{Coordinate: c, Found: ok}
	}()
	return out
}

func (r *Resolver) resolveRemote(ctx context.Context, text string) (Coordinate, bool) {
	results, err := r.ResolvePlace(ctx, text, "", "", 1)
	if err != nil {
		r.logger.Warn("remote geocoding failed", "query", text, "error", err)
		return Coordinate{}, false
	}
	if len(results) == 0 {
		r.logger.Debug("remote geocoding returned no results", "query", text)
		return Coordinate{}, false
	}
	return results[0].Coordinate, true
}

func (r *Resolver) resolveNative(ctx context.Context, text string) (Coordinate, bool) {
	if r.native == nil {
		r.logger.Warn("native geocoder unavailable", "query", text)
		return Coordinate{}, false
	}
	c, err := r.native.GeocodeAddress(ctx, text)
	if err != nil {
		r.logger.Warn("native geocoding failed", "query", text, "error", err)
		return Coordinate{}, false
	}
	return c, true
}
