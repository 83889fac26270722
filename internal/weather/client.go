package weather

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/i474232898/weather-locator/internal/common"
)

// Client fetches current conditions for a LocationQuery.
type Client struct {
	conditions ConditionsProvider
	resolver   *Resolver
	logger     *slog.Logger
}

// NewClient creates a new Client. Postal queries are resolved through resolver.
func NewClient(conditions ConditionsProvider, resolver *Resolver, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conditions: conditions,
		resolver:   resolver,
		logger:     logger.With("component", "weather_client"),
	}
}

// FetchWeather requests current conditions in the units selected by settings.
//
// Coordinate queries go straight to the provider. Postal queries are first
// resolved to a coordinate; a failed postal lookup fails the fetch. Place
// queries are sent as a single name[,state][,country] request.
func (c *Client) FetchWeather(ctx context.Context, q LocationQuery, settings ResolutionSettings) (Snapshot, error) {
	const op = "fetch weather"
	units := settings.Units()
	log := c.logger.With("fetch_id", uuid.NewString(), "query", q.String(), "kind", q.Kind().String(), "units", string(units))

	var (
		snap Snapshot
		err  error
	)
	switch q.Kind() {
	case QueryCoordinate:
		snap, err = c.conditions.CurrentByCoordinate(ctx, q.Coordinate(), units)

	case QueryPostal:
		country := q.CountryCode()
		if country == "" {
			country = DefaultPostalCountry
		}
		postal, perr := c.resolver.ResolvePostal(ctx, q.Name(), country)
		if perr != nil {
			log.Warn("postal lookup failed", "error", perr)
			return Snapshot{}, perr
		}
		log.Debug("postal code resolved", "coordinate", postal.Coordinate.String())
		snap, err = c.conditions.CurrentByCoordinate(ctx, postal.Coordinate, units)

	case QueryPlace:
		if strings.TrimSpace(q.Name()) == "" {
			return Snapshot{}, NewError(ErrInvalidInput, op, errors.New("empty place name"))
		}
		snap, err = c.conditions.CurrentByPlace(ctx, q.PlaceString(), units)

	default:
		return Snapshot{}, NewError(ErrInvalidInput, op, errors.New("unknown query kind"))
	}

	if err != nil {
		log.Warn("weather fetch failed", "provider", c.conditions.Name(), "error", err)
		return Snapshot{}, err
	}
	log.Debug("weather fetched", "name", snap.Name, "observed", snap.ObservedAt)
	return snap, nil
}

// Search runs a free-text search the way the search box does: digits are a
// US postal code, anything else is a place name.
func (c *Client) Search(ctx context.Context, text string, settings ResolutionSettings) (Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, NewError(ErrInvalidInput, "search", errors.New("search text is empty"))
	}
	if common.IsAllDigits(text) {
		return c.FetchWeather(ctx, ByPlace(text, "", DefaultPostalCountry), settings)
	}
	return c.FetchWeather(ctx, ByPlace(text, "", ""), settings)
}
