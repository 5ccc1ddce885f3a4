package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Gateway fronts an ordered list of interchangeable reasoning backends.
// Backends are tried in priority order; each gets up to Retries attempts with
// exponential backoff before the next one is tried. A backend that exhausts
// its retries is skipped for the remainder of that call only — the next call
// starts from a clean slate so a recovered backend is picked up again.
type Gateway struct {
	backends   []Provider
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// GatewayOption customizes gateway behavior.
type GatewayOption func(*Gateway)

// WithRetries overrides the per-backend retry count.
func WithRetries(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.retries = n
		}
	}
}

// WithRetryDelay overrides the base backoff delay.
func WithRetryDelay(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.retryDelay = d
		}
	}
}

// NewGateway creates a gateway over backends in priority order.
func NewGateway(backends []Provider, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		backends:   backends,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGatewayWithFallback probes each candidate backend and keeps only the
// healthy ones, preserving order. It fails if no backend passes the probe.
func NewGatewayWithFallback(ctx context.Context, candidates []Provider, logger *zap.Logger, opts ...GatewayOption) (*Gateway, error) {
	var healthy []Provider
	var probeErrs []string
	for _, c := range candidates {
		if err := c.HealthCheck(ctx); err != nil {
			logger.Warn("backend failed health probe",
				zap.String("backend", c.ID()), zap.Error(err))
			probeErrs = append(probeErrs, fmt.Sprintf("%s: %v", c.ID(), err))
			continue
		}
		healthy = append(healthy, c)
	}
	if len(healthy) == 0 {
		return nil, fmt.Errorf("no reasoning backends available: %s", strings.Join(probeErrs, "; "))
	}
	return NewGateway(healthy, logger, opts...), nil
}

// Backends returns the configured backends in priority order.
func (g *Gateway) Backends() []Provider { return g.backends }

// BackendFailure records the last error from one exhausted backend.
type BackendFailure struct {
	BackendID string
	Err       error
}

// ExhaustedError is returned when every backend fails every retry.
type ExhaustedError struct {
	Failures []BackendFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.BackendID, f.Err)
	}
	return "all reasoning backends failed: " + strings.Join(parts, "; ")
}

// Complete sends a completion request through the fallback chain.
func (g *Gateway) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if len(g.backends) == 0 {
		return nil, fmt.Errorf("no reasoning backends configured")
	}

	var failures []BackendFailure
	for _, backend := range g.backends {
		resp, err := g.completeOne(ctx, backend, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("backend exhausted retries, falling back",
			zap.String("backend", backend.ID()), zap.Error(err))
		failures = append(failures, BackendFailure{BackendID: backend.ID(), Err: err})
	}

	return nil, &ExhaustedError{Failures: failures}
}

// completeOne runs the retry loop for a single backend. The returned error is
// the last attempt's error once retries are exhausted.
func (g *Gateway) completeOne(ctx context.Context, backend Provider, req *CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt < g.retries; attempt++ {
		resp, err := backend.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		g.logger.Debug("backend attempt failed",
			zap.String("backend", backend.ID()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.retries-1 {
			delay := g.retryDelay * (1 << attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// Stream opens a streaming completion through the fallback chain. Fallback
// applies only to starting the stream; an established stream is not restarted.
func (g *Gateway) Stream(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error) {
	if len(g.backends) == 0 {
		return nil, fmt.Errorf("no reasoning backends configured")
	}

	var failures []BackendFailure
	for _, backend := range g.backends {
		ch, err := backend.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		g.logger.Warn("backend stream failed, falling back",
			zap.String("backend", backend.ID()), zap.Error(err))
		failures = append(failures, BackendFailure{BackendID: backend.ID(), Err: err})
	}

	return nil, &ExhaustedError{Failures: failures}
}

// HealthCheck reports whether at least one backend is reachable.
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	for _, backend := range g.backends {
		if err := backend.HealthCheck(ctx); err == nil {
			return true
		}
	}
	return false
}
