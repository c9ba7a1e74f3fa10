package middleware

import (
	"context"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ runner.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    runner.Service
}

func Tracing(tracer trace.Tracer, svc runner.Service) runner.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "start-run", trace.WithAttributes(
		attribute.String("model", cfg.Model),
		attribute.String("aggregation", string(cfg.Aggregation)),
		attribute.String("technique", string(cfg.Privacy.Technique)),
		attribute.Int("participants", cfg.Participants),
		attribute.Int("rounds", cfg.Rounds),
	))
	defer span.End()

	rec, err := tm.svc.StartRun(ctx, cfg)
	span.SetAttributes(attribute.String("run_id", rec.ID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return rec, err
}

func (tm *tracing) GetRun(ctx context.Context, id string) (fl.RunRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("run_id", id),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, id)
}

func (tm *tracing) ListRuns(ctx context.Context, offset, limit uint64) (runner.RunPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-runs", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRuns(ctx, offset, limit)
}

func (tm *tracing) ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.String("run_id", id),
		attribute.String("phase", string(phase)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, id, phase)
}
