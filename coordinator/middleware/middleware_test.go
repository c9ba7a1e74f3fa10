package middleware_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/coordinator/middleware"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// totalCounter ignores labels so every call lands in one total.
type totalCounter struct {
	total float64
}

func (c *totalCounter) With(...string) metrics.Counter {
	return c
}

func (c *totalCounter) Add(delta float64) {
	c.total += delta
}

func TestMiddlewareStackDelegates(t *testing.T) {
	ctx := context.Background()
	cfg := fl.DefaultRunConfig()
	cfg.Rounds = 1

	svc, err := coordinator.NewStrategy(cfg, fl.ParameterVector{fl.Vector(0)})
	require.NoError(t, err)

	counter := &totalCounter{}
	latency := generic.NewHistogram("latency", 10)
	svc = middleware.Logging(slog.Default(), svc)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer("test"), svc)
	svc = middleware.Metrics(counter, latency, svc)

	_, err = svc.InitializeParameters(ctx)
	require.NoError(t, err)
	_, err = svc.ConfigureFit(ctx, 1, []string{"participant-0", "participant-1"})
	require.NoError(t, err)

	replies := []fl.FitReply{
		{ParticipantID: "participant-0", Result: fl.FitResult{Parameters: fl.ParameterVector{fl.Vector(2)}, SampleCount: 1}},
		{ParticipantID: "participant-1", Result: fl.FitResult{Parameters: fl.ParameterVector{fl.Vector(4)}, SampleCount: 3}},
	}
	global, _, err := svc.AggregateFit(ctx, 1, replies, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, global[0].Data[0], 1e-12)

	_, err = svc.ConfigureEvaluate(ctx, 1, []string{"participant-0"})
	require.NoError(t, err)
	_, err = svc.AggregateEvaluate(ctx, 1, nil, nil)
	require.NoError(t, err)

	_, err = svc.ConfigureFit(ctx, 2, nil)
	assert.ErrorIs(t, err, coordinator.ErrInvalidState)

	assert.Equal(t, 6.0, counter.total)
	assert.Len(t, svc.History(ctx), 2)
	assert.Equal(t, coordinator.Terminated, svc.State(ctx))
	assert.Equal(t, global, svc.Global(ctx))
	assert.Equal(t, fl.PrivacyBudget{}, svc.PrivacyBudget(ctx))
}
