package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/pkg/fl"
)

var _ coordinator.Strategy = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Strategy
}

func Logging(logger *slog.Logger, svc coordinator.Strategy) coordinator.Strategy {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) InitializeParameters(ctx context.Context) (params fl.ParameterVector, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("tensors", len(params)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Initialize parameters failed", args...)

			return
		}
		lm.logger.Info("Initialize parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.InitializeParameters(ctx)
}

func (lm *loggingMiddleware) ConfigureFit(ctx context.Context, round int, participants []string) (ins []fl.Instruction, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Int("index", round),
				slog.Int("participants", len(participants)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Configure fit failed", args...)

			return
		}
		lm.logger.Info("Configure fit completed successfully", args...)
	}(time.Now())

	return lm.svc.ConfigureFit(ctx, round, participants)
}

func (lm *loggingMiddleware) AggregateFit(ctx context.Context, round int, replies []fl.FitReply, failures []error) (params fl.ParameterVector, rm fl.RoundMetrics, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Int("index", round),
				slog.Int("replies", len(replies)),
				slog.Int("failures", len(failures)),
				slog.Int("degraded", rm.NumDegraded),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate fit failed", args...)

			return
		}
		if rm.AggregationError != "" {
			args = append(args, slog.String("aggregation_error", rm.AggregationError))
			lm.logger.Warn("Aggregate fit fell back to a single participant", args...)

			return
		}
		lm.logger.Info("Aggregate fit completed successfully", args...)
	}(time.Now())

	return lm.svc.AggregateFit(ctx, round, replies, failures)
}

func (lm *loggingMiddleware) ConfigureEvaluate(ctx context.Context, round int, participants []string) (ins []fl.Instruction, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Int("index", round),
				slog.Int("participants", len(participants)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Configure evaluate failed", args...)

			return
		}
		lm.logger.Info("Configure evaluate completed successfully", args...)
	}(time.Now())

	return lm.svc.ConfigureEvaluate(ctx, round, participants)
}

func (lm *loggingMiddleware) AggregateEvaluate(ctx context.Context, round int, replies []fl.EvaluateReply, failures []error) (rm fl.RoundMetrics, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Int("index", round),
				slog.Int("replies", len(replies)),
				slog.Int("failures", len(failures)),
				slog.Float64("loss", rm.Values[fl.AggregatedLossKey]),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate evaluate failed", args...)

			return
		}
		lm.logger.Info("Aggregate evaluate completed successfully", args...)
	}(time.Now())

	return lm.svc.AggregateEvaluate(ctx, round, replies, failures)
}

func (lm *loggingMiddleware) History(ctx context.Context) []fl.RoundMetrics {
	return lm.svc.History(ctx)
}

func (lm *loggingMiddleware) PrivacyBudget(ctx context.Context) fl.PrivacyBudget {
	return lm.svc.PrivacyBudget(ctx)
}

func (lm *loggingMiddleware) Global(ctx context.Context) fl.ParameterVector {
	return lm.svc.Global(ctx)
}

func (lm *loggingMiddleware) State(ctx context.Context) coordinator.State {
	return lm.svc.State(ctx)
}
