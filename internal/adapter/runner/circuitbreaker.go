package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentmux/internal/domain"
)

// Default circuit breaker settings.
const (
	cbMaxFailures uint32        = 5
	cbTimeout     time.Duration = 30 * time.Second
	cbInterval    time.Duration = 60 * time.Second
)

// BreakerProvider wraps a Provider with circuit breaker protection. When the
// wrapped runner fails repeatedly the circuit opens and subsequent calls fail
// fast without spawning a subprocess, preventing retry storms against a CLI
// that is down or unauthenticated.
type BreakerProvider struct {
	inner   domain.Provider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
	logger  *slog.Logger
}

// WithCircuitBreaker wraps inner with a circuit breaker using default settings.
func WithCircuitBreaker(inner domain.Provider, logger *slog.Logger) *BreakerProvider {
	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
		Name:        "runner:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    cbInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cbMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Bad requests and caller cancellations say nothing about the
			// health of the wrapped CLI.
			if domain.KindOf(err) == domain.KindConfig {
				return true
			}
			return !errors.Is(err, context.Canceled)
		},
	})

	return &BreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Complete implements domain.Provider. Calls are routed through the breaker.
func (p *BreakerProvider) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Complete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &domain.RunnerError{
				Kind:   domain.KindExternalService,
				Op:     p.inner.Name(),
				Detail: "circuit open",
				Err:    err,
			}
		}
		return nil, err
	}
	return resp, nil
}

// CompleteStream implements domain.Provider. The breaker protects stream
// initiation; errors delivered through the channel after startup do not
// trip it.
func (p *BreakerProvider) CompleteStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var ch <-chan domain.StreamDelta
	_, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		var streamErr error
		ch, streamErr = p.inner.CompleteStream(ctx, req)
		return nil, streamErr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &domain.RunnerError{
				Kind:   domain.KindExternalService,
				Op:     p.inner.Name(),
				Detail: "circuit open",
				Err:    err,
			}
		}
		return nil, err
	}
	return ch, nil
}

// HealthCheck bypasses the breaker: probes must be able to observe recovery
// while the circuit is open.
func (p *BreakerProvider) HealthCheck(ctx context.Context) (domain.Readiness, error) {
	return p.inner.HealthCheck(ctx)
}

func (p *BreakerProvider) Name() string { return p.inner.Name() }
func (p *BreakerProvider) DisplayName() string { return p.inner.DisplayName() }
func (p *BreakerProvider) Capabilities() domain.Capability { return p.inner.Capabilities() }
func (p *BreakerProvider) DefaultModel() string { return p.inner.DefaultModel() }
func (p *BreakerProvider) AvailableModels() []string { return p.inner.AvailableModels() }

// State returns the current circuit breaker state for monitoring.
func (p *BreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

var _ domain.Provider = (*BreakerProvider)(nil)
