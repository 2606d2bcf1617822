package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
)

// CircuitBreaker wraps gobreaker and mirrors its state into Prometheus.
type CircuitBreaker struct {
	*gobreaker.CircuitBreaker
	name    string
	service string
}

type Options struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// IsSuccessful decides whether an error counts against the breaker.
	// Caller mistakes (4xx) should not open the circuit for everybody.
	IsSuccessful func(err error) bool
}

func DefaultOptions() Options {
	return Options{
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
	}
}

func NewCircuitBreaker(name, service string, opts Options) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(service, cbName).Set(stateValue(to))
			log.Warn().Str("circuit", cbName).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: opts.IsSuccessful,
	}

	metrics.CircuitBreakerState.WithLabelValues(service, name).Set(0)
	return &CircuitBreaker{
		CircuitBreaker: gobreaker.NewCircuitBreaker(settings),
		name:           name,
		service:        service,
	}
}

// Execute runs fn through the breaker and counts failures.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.CircuitBreaker.Execute(fn)
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(cb.service, cb.name).Inc()
		return result, FormatError(cb.name, err)
	}
	return result, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// FormatError turns breaker rejections into ErrCircuitOpen and passes other
// errors through untouched.
func FormatError(circuitName string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, circuitName)
	}
	return err
}
