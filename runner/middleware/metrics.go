package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
	"github.com/go-kit/kit/metrics"
)

var _ runner.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     runner.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc runner.Service) runner.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-run").Add(1)
		mm.latency.With("method", "start-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartRun(ctx, cfg)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, id string) (fl.RunRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-run").Add(1)
		mm.latency.With("method", "get-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRun(ctx, id)
}

func (mm *metricsMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (runner.RunPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-runs").Add(1)
		mm.latency.With("method", "list-runs").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRuns(ctx, offset, limit)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, id, phase)
}
