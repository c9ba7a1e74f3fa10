package middleware

import (
	"context"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Strategy = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Strategy
}

func Tracing(tracer trace.Tracer, svc coordinator.Strategy) coordinator.Strategy {
	return &tracing{tracer, svc}
}

func (tm *tracing) InitializeParameters(ctx context.Context) (fl.ParameterVector, error) {
	ctx, span := tm.tracer.Start(ctx, "initialize-parameters")
	defer span.End()

	return tm.svc.InitializeParameters(ctx)
}

func (tm *tracing) ConfigureFit(ctx context.Context, round int, participants []string) ([]fl.Instruction, error) {
	ctx, span := tm.tracer.Start(ctx, "configure-fit", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("participants", len(participants)),
	))
	defer span.End()

	return tm.svc.ConfigureFit(ctx, round, participants)
}

func (tm *tracing) AggregateFit(ctx context.Context, round int, replies []fl.FitReply, failures []error) (fl.ParameterVector, fl.RoundMetrics, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate-fit", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("replies", len(replies)),
		attribute.Int("failures", len(failures)),
	))
	defer span.End()

	params, rm, err := tm.svc.AggregateFit(ctx, round, replies, failures)
	if rm.AggregationError != "" {
		span.SetStatus(codes.Error, rm.AggregationError)
	}

	return params, rm, err
}

func (tm *tracing) ConfigureEvaluate(ctx context.Context, round int, participants []string) ([]fl.Instruction, error) {
	ctx, span := tm.tracer.Start(ctx, "configure-evaluate", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("participants", len(participants)),
	))
	defer span.End()

	return tm.svc.ConfigureEvaluate(ctx, round, participants)
}

func (tm *tracing) AggregateEvaluate(ctx context.Context, round int, replies []fl.EvaluateReply, failures []error) (fl.RoundMetrics, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate-evaluate", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("replies", len(replies)),
		attribute.Int("failures", len(failures)),
	))
	defer span.End()

	return tm.svc.AggregateEvaluate(ctx, round, replies, failures)
}

func (tm *tracing) History(ctx context.Context) []fl.RoundMetrics {
	return tm.svc.History(ctx)
}

func (tm *tracing) PrivacyBudget(ctx context.Context) fl.PrivacyBudget {
	return tm.svc.PrivacyBudget(ctx)
}

func (tm *tracing) Global(ctx context.Context) fl.ParameterVector {
	return tm.svc.Global(ctx)
}

func (tm *tracing) State(ctx context.Context) coordinator.State {
	return tm.svc.State(ctx)
}
