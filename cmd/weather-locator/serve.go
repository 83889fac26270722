package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/weather-locator/internal/api/http"
	"github.com/i474232898/weather-locator/internal/device"
	"github.com/i474232898/weather-locator/internal/tracker"
	"github.com/i474232898/weather-locator/internal/weather"
)

func runServe(cmd *cobra.Command, _ []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()
	log := svc.logger

	status, err := device.ParseAuthorizationStatus(svc.cfg.DeviceAuthorization)
	if err != nil {
		return err
	}
	var position *weather.Coordinate
	if svc.cfg.DeviceLatitude != nil && svc.cfg.DeviceLongitude != nil {
		position = &weather.Coordinate{Latitude: *svc.cfg.DeviceLatitude, Longitude: *svc.cfg.DeviceLongitude}
	}
	// An undetermined permission is granted when the tracker asks for it.
	dev := device.NewFixedDevice(status, device.StatusAuthorizedWhenInUse, position)
	defer dev.Close()

	changed, unsubscribe := svc.settings.Subscribe()
	defer unsubscribe()
	tr := tracker.New(dev, svc.client, svc.settings, changed, log)

	app := fiber.New(fiber.Config{
		AppName:               "weather-locator",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-locator",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Tracker:  tr,
		Geocoder: svc.resolver,
		Settings: svc.settings,
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tr.Run(gctx)
	})

	g.Go(func() error {
		log.Info("http server listening", "port", svc.cfg.Port)
		if err := app.Listen(":" + svc.cfg.Port); err != nil {
			return fmt.Errorf("fiber server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}
