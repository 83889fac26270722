package httpapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-locator/internal/settings"
	"github.com/i474232898/weather-locator/internal/tracker"
	"github.com/i474232898/weather-locator/internal/weather"
)

var validate = validator.New()

// Tracker is the part of the location tracker the API drives.
type Tracker interface {
	State() tracker.State
	Search(ctx context.Context, text string) (weather.Snapshot, error)
	Recheck()
	RequestFix()
}

// Geocoder resolves free text to a coordinate.
type Geocoder interface {
	ResolveCoordinateAsync(ctx context.Context, text string, settings weather.ResolutionSettings) <-chan weather.Resolution
}

// Settings reads and commits user preferences.
type Settings interface {
	Snapshot() weather.ResolutionSettings
	Update(u settings.Update) (weather.ResolutionSettings, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Tracker  Tracker
	Geocoder Geocoder
	Settings Settings
	Logger   *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v1 := app.Group("/api/v1")

	v1.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(deps.Tracker.State())
	})

	v1.Get("/weather/search", func(c *fiber.Ctx) error {
		q, err := parseTextQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snap, err := deps.Tracker.Search(c.UserContext(), q.Text)
		if err != nil {
			logger.Warn("search failed", "query", q.Text, "error", err)
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	v1.Get("/geocode", func(c *fiber.Ctx) error {
		q, err := parseTextQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var res weather.Resolution
		select {
		case res = <-deps.Geocoder.ResolveCoordinateAsync(c.UserContext(), q.Text, deps.Settings.Snapshot()):
		case <-c.UserContext().Done():
			return fiber.NewError(fiber.StatusServiceUnavailable, "request cancelled")
		}
		if !res.Found {
			return fiber.NewError(fiber.StatusNotFound, "no coordinate for requested place")
		}
		return c.JSON(fiber.Map{
			"query":      q.Text,
			"coordinate": res.Coordinate,
		})
	})

	v1.Get("/settings", func(c *fiber.Ctx) error {
		return c.JSON(deps.Settings.Snapshot())
	})

	v1.Put("/settings", func(c *fiber.Ctx) error {
		var u settings.Update
		if err := c.BodyParser(&u); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid settings body")
		}
		current, err := deps.Settings.Update(u)
		if err != nil {
			logger.Error("settings update failed", "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save settings")
		}
		return c.JSON(current)
	})

	v1.Post("/location/recheck", func(c *fiber.Ctx) error {
		deps.Tracker.Recheck()
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/location/refresh", func(c *fiber.Ctx) error {
		deps.Tracker.RequestFix()
		return c.SendStatus(fiber.StatusAccepted)
	})
}

// textQuery holds the free-text q parameter.
type textQuery struct {
	Text string `validate:"required,max=256"`
}

func parseTextQuery(c *fiber.Ctx) (textQuery, error) {
	q := textQuery{Text: c.Query("q")}
	if err := validate.Struct(q); err != nil {
		return q, errors.New("query parameter q is required")
	}
	return q, nil
}

// toHTTPError maps a failure kind onto a status code.
func toHTTPError(err error) error {
	switch weather.KindOf(err) {
	case weather.ErrInvalidInput:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case weather.ErrNoResult:
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case weather.ErrPermissionDenied:
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case weather.ErrTransport, weather.ErrDecode:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}
