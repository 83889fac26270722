package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locator/internal/weather"
)

// DefaultOpenWeatherBaseURL is the public API root.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherProvider talks to the OpenWeather current-conditions and
// geocoding endpoints. It implements weather.ConditionsProvider and
// weather.GeocodingProvider.
type OpenWeatherProvider struct {
	name       string
	apiKey     string
	baseURL    string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
	geoCircuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherProvider creates a provider. An empty baseURL selects the public API.
func NewOpenWeatherProvider(cfg HTTPClientConfig, baseURL, apiKey string) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherBaseURL
	}
	return &OpenWeatherProvider{
		name:       "openweathermap",
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpCfg:    cfg,
		circuit:    newBreaker("openweather", cfg),
		geoCircuit: newBreaker("openweather-geo", cfg),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// CurrentByCoordinate requests current conditions at c.
func (p *OpenWeatherProvider) CurrentByCoordinate(ctx context.Context, c weather.Coordinate, units weather.Units) (weather.Snapshot, error) {
	values := url.Values{}
	values.Set("lat", formatDegrees(c.Latitude))
	values.Set("lon", formatDegrees(c.Longitude))
	return p.current(ctx, "current by coordinate", values, units)
}

// CurrentByPlace requests current conditions for a name[,state][,country] string.
func (p *OpenWeatherProvider) CurrentByPlace(ctx context.Context, place string, units weather.Units) (weather.Snapshot, error) {
	if place == "" {
		return weather.Snapshot{}, weather.NewError(weather.ErrInvalidInput, "current by place", errors.New("empty place"))
	}
	values := url.Values{}
	values.Set("q", place)
	return p.current(ctx, "current by place", values, units)
}

func (p *OpenWeatherProvider) current(ctx context.Context, op string, values url.Values, units weather.Units) (weather.Snapshot, error) {
	values.Set("units", string(units))
	body, err := doRequest(ctx, p.httpCfg, p.circuit, op, p.requestBuilder("/data/2.5/weather", values))
	if err != nil {
		return weather.Snapshot{}, err
	}
	return weather.DecodeSnapshot(body)
}

// Direct queries the place geocoding endpoint.
func (p *OpenWeatherProvider) Direct(ctx context.Context, place string, limit int) ([]weather.GeocodeResult, error) {
	values := url.Values{}
	values.Set("q", place)
	values.Set("limit", strconv.Itoa(limit))

	body, err := doRequest(ctx, p.httpCfg, p.geoCircuit, "geocode direct", p.requestBuilder("/geo/1.0/direct", values))
	if err != nil {
		return nil, err
	}
	return weather.DecodeGeocodeResults(body)
}

// Postal queries the postal geocoding endpoint.
func (p *OpenWeatherProvider) Postal(ctx context.Context, code, countryCode string) (weather.PostalLookupResult, error) {
	values := url.Values{}
	values.Set("zip", fmt.Sprintf("%s,%s", code, countryCode))

	body, err := doRequest(ctx, p.httpCfg, p.geoCircuit, "geocode postal", p.requestBuilder("/geo/1.0/zip", values))
	if err != nil {
		return weather.PostalLookupResult{}, err
	}
	return weather.DecodePostalResult(body)
}

func (p *OpenWeatherProvider) requestBuilder(path string, values url.Values) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		if p.apiKey == "" {
			return nil, fmt.Errorf("openweather api key is not configured")
		}
		u, err := url.Parse(p.baseURL + path)
		if err != nil {
			return nil, err
		}
		values.Set("appid", p.apiKey)
		u.RawQuery = values.Encode()
		return http.NewRequest(http.MethodGet, u.String(), nil)
	}
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
