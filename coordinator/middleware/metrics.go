package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Strategy = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Strategy
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Strategy) coordinator.Strategy {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) InitializeParameters(ctx context.Context) (fl.ParameterVector, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "initialize-parameters").Add(1)
		mm.latency.With("method", "initialize-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.InitializeParameters(ctx)
}

func (mm *metricsMiddleware) ConfigureFit(ctx context.Context, round int, participants []string) ([]fl.Instruction, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "configure-fit").Add(1)
		mm.latency.With("method", "configure-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ConfigureFit(ctx, round, participants)
}

func (mm *metricsMiddleware) AggregateFit(ctx context.Context, round int, replies []fl.FitReply, failures []error) (fl.ParameterVector, fl.RoundMetrics, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate-fit").Add(1)
		mm.latency.With("method", "aggregate-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AggregateFit(ctx, round, replies, failures)
}

func (mm *metricsMiddleware) ConfigureEvaluate(ctx context.Context, round int, participants []string) ([]fl.Instruction, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "configure-evaluate").Add(1)
		mm.latency.With("method", "configure-evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ConfigureEvaluate(ctx, round, participants)
}

func (mm *metricsMiddleware) AggregateEvaluate(ctx context.Context, round int, replies []fl.EvaluateReply, failures []error) (fl.RoundMetrics, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate-evaluate").Add(1)
		mm.latency.With("method", "aggregate-evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AggregateEvaluate(ctx, round, replies, failures)
}

func (mm *metricsMiddleware) History(ctx context.Context) []fl.RoundMetrics {
	return mm.svc.History(ctx)
}

func (mm *metricsMiddleware) PrivacyBudget(ctx context.Context) fl.PrivacyBudget {
	return mm.svc.PrivacyBudget(ctx)
}

func (mm *metricsMiddleware) Global(ctx context.Context) fl.ParameterVector {
	return mm.svc.Global(ctx)
}

func (mm *metricsMiddleware) State(ctx context.Context) coordinator.State {
	return mm.svc.State(ctx)
}
