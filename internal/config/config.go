package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	// OpenWeatherAPIKey is provisioned by the deployment; it is never compiled in.
	OpenWeatherAPIKey  string `envconfig:"OPENWEATHER_API_KEY" validate:"required"`
	OpenWeatherBaseURL string `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"required,url"`

	// GeocoderAPIKey backs the native geocoder. Without it native lookups
	// report no result.
	GeocoderAPIKey string `envconfig:"GOOGLE_GEOCODING_API_KEY"`

	SettingsDBPath string `envconfig:"SETTINGS_DB_PATH" default:"weather-locator.db" validate:"required"`

	// HTTPTimeout bounds outbound provider calls. Zero means no client timeout.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s" validate:"gte=0"`

	// Simulated device position and permission for the server build.
	DeviceLatitude      *float64 `envconfig:"DEVICE_LATITUDE" validate:"omitempty,latitude"`
	DeviceLongitude     *float64 `envconfig:"DEVICE_LONGITUDE" validate:"omitempty,longitude"`
	DeviceAuthorization string   `envconfig:"DEVICE_AUTHORIZATION" default:"authorized" validate:"oneof=not_determined restricted denied authorized authorized_when_in_use authorized_always"`

	Port     string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrParsing    ConfigErrorType = "PARSING_FAILED"
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads configuration from the environment, after a .env file if one
// exists, and validates it. Real environment variables take precedence over
// the .env file.
func Load(logger *slog.Logger) (*AppConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	if (cfg.DeviceLatitude == nil) != (cfg.DeviceLongitude == nil) {
		return nil, &ConfigError{Type: ErrValidation, Message: "DEVICE_LATITUDE and DEVICE_LONGITUDE must be set together"}
	}

	return &cfg, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
