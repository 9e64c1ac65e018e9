// Package multiplex fans a single chat request out to several runners
// concurrently and collects per-target results without letting one target's
// failure abort its siblings.
package multiplex

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"agentmux/internal/domain"
	"agentmux/internal/infra/tracer"
)

// ProviderLookup resolves provider names to runners. Satisfied by the
// runner registry.
type ProviderLookup interface {
	Get(name string) (domain.Provider, error)
}

// Dispatcher runs the same request against multiple targets in parallel.
type Dispatcher struct {
	providers ProviderLookup
	logger    *slog.Logger
}

// New creates a dispatcher backed by the given provider lookup.
func New(providers ProviderLookup, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{providers: providers, logger: logger}
}

// Dispatch sends req to every target concurrently and returns one result per
// target, in target order. Individual failures are recorded in their result
// slot; siblings keep running. Streaming requests are rejected before any
// subprocess is spawned.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.ChatRequest, targets []domain.MultiplexTarget) ([]domain.MultiplexResult, error) {
	if req.Stream {
		return nil, domain.ConfigError("multiplex", "streaming is not supported for multiplexed requests")
	}
	if len(targets) == 0 {
		return nil, domain.ConfigError("multiplex", "at least one target is required")
	}

	ctx, span := tracer.StartSpan(ctx, "multiplex.dispatch",
		trace.WithAttributes(tracer.IntAttr("multiplex.targets", len(targets))),
	)
	defer span.End()

	results := make([]domain.MultiplexResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = d.runTarget(gctx, req, target)
			// Failures stay in their slot; never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	tracer.SetOK(span)
	return results, nil
}

func (d *Dispatcher) runTarget(ctx context.Context, req domain.ChatRequest, target domain.MultiplexTarget) domain.MultiplexResult {
	result := domain.MultiplexResult{
		Provider: target.Provider,
		Model:    target.Model,
	}

	provider, err := d.providers.Get(target.Provider)
	if err != nil {
		result.Err = err
		return result
	}

	targetReq := req
	targetReq.Model = target.Model
	if targetReq.Model == "" {
		targetReq.Model = provider.DefaultModel()
		result.Model = targetReq.Model
	}

	start := time.Now()
	resp, err := provider.Complete(ctx, targetReq)
	result.Duration = time.Since(start)

	if err != nil {
		d.logger.Warn("multiplex target failed",
			"provider", target.Provider,
			"model", targetReq.Model,
			"duration_ms", result.Duration.Milliseconds(),
			"error", err,
		)
		result.Err = err
		return result
	}

	d.logger.Debug("multiplex target completed",
		"provider", target.Provider,
		"model", targetReq.Model,
		"duration_ms", result.Duration.Milliseconds(),
	)
	result.Response = resp
	return result
}
