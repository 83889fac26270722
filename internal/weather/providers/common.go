package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locator/internal/weather"
)

// HTTPClientConfig bundles the HTTP client and the breaker settings.
type HTTPClientConfig struct {
	Client *http.Client

	// BreakerMaxRequests is the number of probes allowed while half-open.
	BreakerMaxRequests uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	// BreakerFailures trips the breaker after this many consecutive failures.
	BreakerFailures uint32
}

// DefaultHTTPClientConfig uses http.DefaultClient, so no explicit timeout applies.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Client:             http.DefaultClient,
		BreakerMaxRequests: 1,
		BreakerTimeout:     30 * time.Second,
		BreakerFailures:    5,
	}
}

var (
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

func newBreaker(name string, cfg HTTPClientConfig) *gobreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    1 * time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
}

// doRequest performs exactly one attempt through the circuit breaker and
// returns the response body. Every failure is classified as a transport
// failure; an unbuildable request is invalid input.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	op string,
	buildRequest func() (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, weather.NewError(weather.ErrTransport, op, errNoHTTPClient)
	}

	req, err := buildRequest()
	if err != nil {
		return nil, weather.NewError(weather.ErrInvalidInput, op, err)
	}
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d: %s", errUnexpected, resp.StatusCode, truncate(body, 200))
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, weather.NewError(weather.ErrTransport, op, err)
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, weather.NewError(weather.ErrTransport, op, fmt.Errorf("unexpected result type from circuit breaker"))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
