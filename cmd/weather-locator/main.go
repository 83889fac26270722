package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i474232898/weather-locator/internal/config"
	"github.com/i474232898/weather-locator/internal/settings"
	"github.com/i474232898/weather-locator/internal/store"
	"github.com/i474232898/weather-locator/internal/weather"
	"github.com/i474232898/weather-locator/internal/weather/providers"
)

var (
	stateCode   string
	countryCode string
	metric      bool
)

var rootCmd = &cobra.Command{
	Use:           "weather-locator",
	Short:         "Resolve locations and fetch current weather",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the location tracker and the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search <place or postal code>",
	Short: "Fetch current weather for a place name or postal code",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <place>",
	Short: "Geocode free text to a coordinate using the stored settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	searchCmd.Flags().StringVarP(&stateCode, "state", "s", "", "State code qualifier")
	searchCmd.Flags().StringVarP(&countryCode, "country", "c", "", "Country code qualifier")
	searchCmd.Flags().BoolVarP(&metric, "metric", "m", false, "Use metric units (defaults to the stored setting)")

	rootCmd.AddCommand(serveCmd, searchCmd, resolveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services are the components shared by every command.
type services struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	kv       store.KV
	settings *settings.Store
	resolver *weather.Resolver
	client   *weather.Client
}

func newServices() (*services, error) {
	// Bootstrap logger until the configured level is known.
	cfg, err := config.Load(newLogger(slog.LevelInfo))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.SlogLevel())

	kv, err := store.NewSQLite(cfg.SettingsDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.DefaultHTTPClientConfig()
	httpCfg.Client = &http.Client{Timeout: cfg.HTTPTimeout}

	openWeather := providers.NewOpenWeatherProvider(httpCfg, cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey)
	native := providers.NewNativeGeocoder(cfg.GeocoderAPIKey)
	resolver := weather.NewResolver(openWeather, native, logger)

	return &services{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		settings: settings.New(kv, logger),
		resolver: resolver,
		client:   weather.NewClient(openWeather, resolver, logger),
	}, nil
}

func (s *services) Close() {
	if err := s.kv.Close(); err != nil {
		s.logger.Warn("closing settings store", "error", err)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rs := svc.settings.Snapshot()
	if cmd.Flags().Changed("metric") {
		rs.UseMetricUnits = metric
	}

	snap, err := svc.client.FetchWeather(ctx, weather.ByPlace(args[0], stateCode, countryCode), rs)
	if err != nil {
		return err
	}
	displaySnapshot(cmd, snap, rs.Units())
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, ok := svc.resolver.ResolveCoordinate(ctx, args[0], svc.settings.Snapshot())
	if !ok {
		return errors.New("no coordinate found for " + args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), c.String())
	return nil
}

func displaySnapshot(cmd *cobra.Command, s weather.Snapshot, units weather.Units) {
	out := cmd.OutOrStdout()
	tempUnit, speedUnit := "°F", "mph"
	if units == weather.UnitsMetric {
		tempUnit, speedUnit = "°C", "m/s"
	}

	header := fmt.Sprintf("Current weather for %s, %s:", s.Name, s.Sys.Country)
	fmt.Fprintln(out, header)
	cond := s.PrimaryCondition()
	fmt.Fprintf(out, "Conditions:  %s\n", cases.Title(language.English).String(cond.Description))
	fmt.Fprintf(out, "Temperature: %.1f%s (feels like %.1f%s)\n", s.Main.Temperature, tempUnit, s.Main.FeelsLike, tempUnit)
	fmt.Fprintf(out, "  Max:       %.1f%s\n", s.Main.TempMax, tempUnit)
	fmt.Fprintf(out, "  Min:       %.1f%s\n", s.Main.TempMin, tempUnit)
	fmt.Fprintf(out, "Humidity:    %d%%\n", s.Main.Humidity)
	fmt.Fprintf(out, "Pressure:    %.2f inHg\n", s.Main.PressureInHg())
	fmt.Fprintf(out, "Wind Speed:  %.1f %s\n", s.Wind.Speed, speedUnit)
	fmt.Fprintf(out, "Sunrise:     %s\n", s.LocalTime(s.SunriseTime()).Format(time.Kitchen))
	fmt.Fprintf(out, "Sunset:      %s\n", s.LocalTime(s.SunsetTime()).Format(time.Kitchen))
	if cond.Icon != "" {
		fmt.Fprintf(out, "Icon:        %s\n", cond.IconURL())
	}
}

// newLogger creates a structured slog.Logger for the given level.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
