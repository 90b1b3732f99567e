package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"dopahiyaa/pkg/logging"
)

// ErrCircuitOpen is returned when the breaker rejects a call without trying it.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// DefaultShouldRetry retries on network errors, 5xx and 429.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// BreakerConfig enables a circuit breaker in front of the retries.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint
	FailureWindow    uint
	Delay            time.Duration
	Logger           logging.Logger
}

// HTTPExecutorConfig configures the HTTP executor
type HTTPExecutorConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Breaker is optional; nil disables it.
	Breaker *BreakerConfig

	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultHTTPExecutorConfig returns sensible defaults
func DefaultHTTPExecutorConfig() HTTPExecutorConfig {
	return HTTPExecutorConfig{
		MaxRetries:  2,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		ShouldRetry: DefaultShouldRetry,
	}
}

func normalize(cfg HTTPExecutorConfig) HTTPExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	return cfg
}

// NewHTTPRetryPolicy creates a retry policy for HTTP requests
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewHTTPRetryPolicy(cfg HTTPExecutorConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = normalize(cfg)
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(cfg.ShouldRetry).
		ReturnLastFailure().
		Build()
}

//nolint:bodyclose // *http.Response is a type parameter here
func newHTTPBreaker(cfg BreakerConfig) circuitbreaker.CircuitBreaker[*http.Response] {
	if cfg.FailureWindow == 0 {
		cfg.FailureWindow = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.FailureWindow {
		cfg.FailureThreshold = cfg.FailureWindow / 2
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 15 * time.Second
	}

	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureWindow).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
		})

	if cfg.Logger != nil {
		name, logger := cfg.Name, cfg.Logger
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"circuit_breaker": name,
				"from_state":      stateName(event.OldState),
				"to_state":        stateName(event.NewState),
			}).Warn("circuit breaker state change")
		})
	}
	return builder.Build()
}

// NewHTTPExecutor combines the retry policy with the optional breaker. The
// breaker sits inside the retries so each attempt is counted.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	retry := NewHTTPRetryPolicy(cfg)
	if cfg.Breaker != nil {
		return failsafe.With[*http.Response](retry, newHTTPBreaker(*cfg.Breaker))
	}
	return failsafe.With[*http.Response](retry)
}

// ExecuteHTTP runs an HTTP request through the executor
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(fn)
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
